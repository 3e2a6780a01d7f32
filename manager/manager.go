// Package manager coordinates the fixed pool of worker execution units: it
// creates and initializes workers, routes correlated request/response
// traffic with per-call timeouts, discovers and moves transferable buffers,
// fans out broadcasts, and tracks latency statistics.
package manager

import (
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/msg"
	"github.com/openarcade/workermesh/worker"
)

const (
	defaultTimeout   = 5 * time.Second
	terminateTimeout = 500 * time.Millisecond

	// The global average response time is recomputed every this many
	// completed round trips. It is an observability metric, not a
	// correctness-relevant value.
	avgRecomputeEvery = 20
)

// A TraceRecorder persists one row per completed round trip. The recording
// package provides a sqlite-backed implementation.
type TraceRecorder interface {
	RecordRoundTrip(workerID string, msgType string, rtt time.Duration)
}

type pendingCall struct {
	workerID string
	msgType  msg.Type
	sentAt   time.Time
	timer    *time.Timer
	result   chan sendResult
}

type sendResult struct {
	rsp *msg.Message
	err error
}

// A Manager owns the worker pool, the pending-response table, and the
// statistics. All registries are explicit state of the instance; there are
// no package-level registries.
type Manager struct {
	logger   *log.Logger
	idGen    msg.IDGenerator
	loader   *modules.Loader
	emitter  *Emitter
	recorder TraceRecorder

	mu      sync.RWMutex
	workers map[string]*workerInfo

	pendingMu sync.Mutex
	pending   map[string]*pendingCall

	msgCount uint64

	avgMu       sync.Mutex
	rttSum      time.Duration
	rttCount    int
	avgResponse time.Duration
}

// New creates a manager over the given module loader.
func New(loader *modules.Loader, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(os.Stderr, "manager: ", log.LstdFlags)
	}

	return &Manager{
		logger:  logger,
		idGen:   msg.XIDGenerator{},
		loader:  loader,
		emitter: NewEmitter(),
		workers: make(map[string]*workerInfo),
		pending: make(map[string]*pendingCall),
	}
}

// WithIDGenerator replaces the correlation ID generator. Meant for tests
// that need deterministic IDs.
func (m *Manager) WithIDGenerator(gen msg.IDGenerator) *Manager {
	m.idGen = gen
	return m
}

// WithRecorder wires a trace recorder for completed round trips.
func (m *Manager) WithRecorder(r TraceRecorder) *Manager {
	m.recorder = r
	return m
}

// Events returns the manager's event emitter.
func (m *Manager) Events() *Emitter {
	return m.emitter
}

// Init initializes the module loader and creates the standard worker pool.
func (m *Manager) Init() error {
	if err := m.loader.Init(); err != nil {
		return err
	}

	pool := []struct {
		id      string
		program worker.Program
		config  WorkerConfig
	}{
		{
			id:      "game-logic",
			program: worker.NewGameLogic(),
			config: WorkerConfig{
				Capabilities: []string{"physics", "game-state"},
				Modules:      []string{"game-core"},
			},
		},
		{
			id:      "ai",
			program: worker.NewAI(),
			config: WorkerConfig{
				Capabilities: []string{"move-prediction"},
				Modules:      []string{"ai-strategy"},
			},
		},
		{
			id:      "analytics",
			program: worker.NewAnalytics(),
			config: WorkerConfig{
				Capabilities: []string{"metrics"},
				Modules:      []string{"metrics-agg"},
			},
		},
	}

	for _, p := range pool {
		if err := m.CreateWorker(p.id, p.program, p.config); err != nil {
			return fmt.Errorf("creating standard pool: %w", err)
		}
	}

	return nil
}

// CreateWorker instantiates a worker, wires its channels, and performs the
// synchronous INIT handshake. It fails on a duplicate ID.
func (m *Manager) CreateWorker(
	id string,
	program worker.Program,
	config WorkerConfig,
) error {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaultTimeout
	}

	info := &workerInfo{
		id:       id,
		config:   config,
		state:    StateCreated,
		pumpDone: make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.workers[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, id)
	}

	info.unit = worker.NewUnit(id, program, nil)
	m.workers[id] = info
	m.mu.Unlock()

	info.unit.Start()
	go m.pump(info)

	m.emitter.Emit(EventWorkerCreated, id)

	if err := m.initializeWorker(info); err != nil {
		m.setState(id, StateErrored)
		return fmt.Errorf("initializing worker %s: %w", id, err)
	}

	return nil
}

// initializeWorker sends INIT carrying configuration and module metadata
// only. Module bytes follow in the background once INIT_COMPLETE arrives, so
// readiness is not blocked on large transfers.
func (m *Manager) initializeWorker(info *workerInfo) error {
	m.setState(info.id, StateInitializing)

	index := m.loader.Index()
	metas := make([]msg.ModuleMeta, 0, len(info.config.Modules))
	for _, name := range info.config.Modules {
		_, available := index[name]
		metas = append(metas, msg.ModuleMeta{
			Name:         name,
			Available:    available,
			LoadOnDemand: true,
		})
	}

	var settings map[string]any
	if l := info.config.Limits; l != (ResourceLimits{}) {
		settings = map[string]any{
			"maxMemoryMB":    l.MaxMemoryMB,
			"maxModuleBytes": l.MaxModuleBytes,
		}
	}

	init := msg.MakeBuilder().
		WithType(msg.TypeInit).
		WithPriority(msg.PriorityCritical).
		WithPayload(&msg.InitPayload{
			WorkerID:     info.id,
			Capabilities: info.config.Capabilities,
			Modules:      metas,
			Settings:     settings,
		}).
		WithIDGenerator(m.idGen).
		Build()

	rsp, err := m.Send(info.id, init, info.config.DefaultTimeout)
	if err != nil {
		return err
	}
	if rsp.Type != msg.TypeInitComplete {
		return fmt.Errorf("expected INIT_COMPLETE, got %s", rsp.Type)
	}

	m.setState(info.id, StateReady)

	go m.deliverModules(info.id, info.config.Modules)

	return nil
}

// deliverModules ships the real module bytes after the handshake, one
// LOAD_MODULE message per module.
func (m *Manager) deliverModules(workerID string, names []string) {
	mods := m.loader.ModulesForWorker(workerID, names)

	ordered := make([]string, 0, len(mods))
	for name := range mods {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	for _, name := range ordered {
		payload := &msg.ModulePayload{
			Name: name,
			Data: msg.BufferOf(mods[name]),
		}

		load := msg.MakeBuilder().
			WithType(msg.TypeLoadModule).
			WithPriority(msg.PriorityLow).
			WithPayload(payload).
			WithIDGenerator(m.idGen).
			Build()

		rsp, err := m.Send(workerID, load, defaultTimeout)
		if err != nil {
			m.logger.Printf("delivering module %s to %s failed: %v",
				name, workerID, err)
			continue
		}

		switch rsp.Type {
		case msg.TypeModuleLoaded:
			m.emitter.Emit(EventModuleDelivered, workerID, name)
		case msg.TypeModuleError:
			m.logger.Printf("worker %s rejected module %s", workerID, name)
		}
	}
}

// Send delivers one message to a worker and waits for the correlated
// response or the timeout, whichever comes first. Transferable buffers found
// in the payload are merged, deduplicated, with the explicit transfer list
// and moved to the receiver.
func (m *Manager) Send(
	workerID string,
	message *msg.Message,
	timeout time.Duration,
	transfer ...*msg.Buffer,
) (*msg.Message, error) {
	return m.send(workerID, message, timeout, transfer, true)
}

// send is the common delivery path. Shared-transferable broadcasts pass
// moveTransfer=false so the payload's buffers stay owned by the caller
// instead of being moved once per recipient.
func (m *Manager) send(
	workerID string,
	message *msg.Message,
	timeout time.Duration,
	transfer []*msg.Buffer,
	moveTransfer bool,
) (*msg.Message, error) {
	m.mu.RLock()
	info, ok := m.workers[workerID]
	var state State
	if ok {
		state = info.state
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWorker, workerID)
	}

	// Errored workers stay addressable for diagnostics only.
	if state == StateErrored && message.Type != msg.TypePing {
		return nil, fmt.Errorf("%w: %s", ErrWorkerErrored, workerID)
	}

	if message.ID == "" {
		message.ID = m.idGen.Generate()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	message.Target = workerID

	if timeout <= 0 {
		timeout = info.config.DefaultTimeout
	}

	if moveTransfer {
		m.moveTransferables(message, transfer)
	}

	call := &pendingCall{
		workerID: workerID,
		msgType:  message.Type,
		sentAt:   time.Now(),
		result:   make(chan sendResult, 1),
	}

	// The timer is armed under pendingMu so everyone resolving the entry
	// sees it set.
	m.pendingMu.Lock()
	m.pending[message.ID] = call
	call.timer = time.AfterFunc(timeout, func() {
		m.expire(message.ID, workerID, timeout)
	})
	m.pendingMu.Unlock()

	if err := info.unit.Deliver(message); err != nil {
		m.removePending(message.ID)
		call.timer.Stop()
		return nil, err
	}

	if state == StateReady {
		m.setState(workerID, StateActive)
	}

	res := <-call.result
	return res.rsp, res.err
}

// moveTransferables discovers buffers inside the payload, merges them with
// the caller's list without duplicates, and moves each one. The payload is
// rebound to the post-move handles so the receiver keeps zero-copy access
// while the sender's handles become invalid.
func (m *Manager) moveTransferables(
	message *msg.Message,
	explicit []*msg.Buffer,
) {
	all := msg.MergeTransferables(message.Payload, explicit)
	if len(all) == 0 {
		return
	}

	repl := make(map[*msg.Buffer]*msg.Buffer, len(all))
	for _, b := range all {
		repl[b] = b.Transfer()
	}

	message.Payload = msg.ReattachPayload(message.Payload, repl)
}

// expire handles a pending-response timeout: the entry is removed so a late
// response is silently ignored, and the caller gets a timeout error.
func (m *Manager) expire(id, workerID string, timeout time.Duration) {
	call := m.removePending(id)
	if call == nil {
		return
	}

	m.logger.Printf("latency fault: no response from %s for %s within %v",
		workerID, call.msgType, timeout)

	call.result <- sendResult{err: &TimeoutError{
		WorkerID: workerID,
		Timeout:  timeout,
	}}
}

func (m *Manager) removePending(id string) *pendingCall {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()

	call, ok := m.pending[id]
	if !ok {
		return nil
	}
	delete(m.pending, id)

	return call
}

// pump forwards one worker's outbox and error channel into the manager's
// dispatch logic.
func (m *Manager) pump(info *workerInfo) {
	for {
		select {
		case <-info.pumpDone:
			return
		case message := <-info.unit.Outbox():
			m.handleWorkerMessage(info.id, message)
		case fault := <-info.unit.Faults():
			m.handleWorkerFault(info.id, fault)
		}
	}
}

// handleWorkerMessage is the single place where pending responses resolve,
// so resolution order follows arrival order.
func (m *Manager) handleWorkerMessage(workerID string, message *msg.Message) {
	if ok, diag := msg.ValidateMessage(message); !ok {
		m.logger.Printf("dropping malformed message from %s: %s",
			workerID, diag)
		return
	}

	atomic.AddUint64(&m.msgCount, 1)
	m.emitter.Emit(EventWorkerMessage, workerID, message)

	m.pendingMu.Lock()
	call, ok := m.pending[message.ID]
	if ok && call.workerID == workerID {
		delete(m.pending, message.ID)
	} else {
		// Unsolicited or late response; late responses are expected after
		// a timeout and are dropped without complaint.
		m.pendingMu.Unlock()
		return
	}
	m.pendingMu.Unlock()

	call.timer.Stop()

	rtt := time.Since(call.sentAt)
	m.recordRoundTrip(workerID, call.msgType, rtt)

	call.result <- sendResult{rsp: message}
}

func (m *Manager) handleWorkerFault(workerID string, fault error) {
	m.logger.Printf("worker %s fault: %v", workerID, fault)
	m.setState(workerID, StateErrored)
	m.emitter.Emit(EventWorkerError, workerID, fault)
}

func (m *Manager) recordRoundTrip(
	workerID string,
	msgType msg.Type,
	rtt time.Duration,
) {
	m.mu.Lock()
	if info, ok := m.workers[workerID]; ok {
		info.recordLatency(rtt)
	}
	m.mu.Unlock()

	m.avgMu.Lock()
	m.rttSum += rtt
	m.rttCount++
	if m.rttCount%avgRecomputeEvery == 0 || m.avgResponse == 0 {
		m.avgResponse = m.rttSum / time.Duration(m.rttCount)
	}
	m.avgMu.Unlock()

	if m.recorder != nil {
		m.recorder.RecordRoundTrip(workerID, msgType.String(), rtt)
	}
}

func (m *Manager) setState(workerID string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if info, ok := m.workers[workerID]; ok {
		info.state = s
	}
}

// TerminateWorker gracefully shuts one worker down: TERMINATE with a short
// timeout, failure to acknowledge ignored, then unconditional teardown.
func (m *Manager) TerminateWorker(id string) error {
	m.mu.RLock()
	info, ok := m.workers[id]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}

	m.setState(id, StateTerminating)

	terminate := msg.MakeBuilder().
		WithType(msg.TypeTerminate).
		WithPriority(msg.PriorityCritical).
		WithIDGenerator(m.idGen).
		Build()

	if _, err := m.Send(id, terminate, terminateTimeout); err != nil {
		m.logger.Printf("worker %s did not acknowledge TERMINATE: %v",
			id, err)
	}

	info.unit.Stop()
	close(info.pumpDone)

	m.mu.Lock()
	delete(m.workers, id)
	m.mu.Unlock()

	m.failPending(id)

	m.emitter.Emit(EventWorkerTerminated, id)

	return nil
}

// failPending fails every in-flight request addressed to a torn-down worker
// immediately instead of letting the callers ride out their timeouts.
func (m *Manager) failPending(workerID string) {
	m.pendingMu.Lock()
	var abandoned []*pendingCall
	for id, call := range m.pending {
		if call.workerID == workerID {
			delete(m.pending, id)
			abandoned = append(abandoned, call)
		}
	}
	m.pendingMu.Unlock()

	for _, call := range abandoned {
		call.timer.Stop()
		call.result <- sendResult{err: fmt.Errorf("%w: %s",
			ErrWorkerTerminated, workerID)}
	}
}

// TerminateAll terminates every registered worker concurrently and waits for
// all outcomes regardless of individual failures.
func (m *Manager) TerminateAll() {
	ids := m.workerIDs()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.TerminateWorker(id); err != nil {
				m.logger.Printf("terminating %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
}

func (m *Manager) workerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

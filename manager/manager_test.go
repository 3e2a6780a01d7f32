package manager

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/msg"
	"github.com/openarcade/workermesh/worker"
)

// echoProgram replies RESPONSE with the request payload.
type echoProgram struct{}

func (echoProgram) Name() string { return "echo" }

func (echoProgram) HandleMessage(
	_ *worker.Context,
	m *msg.Message,
) (*msg.Message, error) {
	return m.Response(msg.TypeResponse, m.Payload), nil
}

// slowProgram replies after a fixed delay.
type slowProgram struct {
	delay time.Duration
}

func (slowProgram) Name() string { return "slow" }

func (p slowProgram) HandleMessage(
	_ *worker.Context,
	m *msg.Message,
) (*msg.Message, error) {
	time.Sleep(p.delay)
	return m.Response(msg.TypeResponse, m.Payload), nil
}

// captureProgram records the buffers it receives.
type captureProgram struct {
	mu       sync.Mutex
	received []*msg.Buffer
}

func (*captureProgram) Name() string { return "capture" }

func (p *captureProgram) HandleMessage(
	_ *worker.Context,
	m *msg.Message,
) (*msg.Message, error) {
	if buffers := msg.CollectBuffers(m.Payload); len(buffers) > 0 {
		p.mu.Lock()
		p.received = append(p.received, buffers...)
		p.mu.Unlock()
	}

	return m.Response(msg.TypeResponse, nil), nil
}

// panickyProgram panics on everything, driving the worker to Errored.
type panickyProgram struct{}

func (panickyProgram) Name() string { return "panicky" }

func (panickyProgram) HandleMessage(
	_ *worker.Context,
	_ *msg.Message,
) (*msg.Message, error) {
	panic("boom")
}

type failingSource struct{}

func (failingSource) FetchIndex() (modules.Index, error) {
	return nil, errors.New("no index")
}

func (failingSource) FetchModule(string) ([]byte, error) {
	return nil, errors.New("no modules")
}

func quietLogger() *log.Logger {
	return log.New(bytes.NewBuffer(nil), "", 0)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	loader := modules.NewLoader(failingSource{}, quietLogger())
	require.NoError(t, loader.Init())

	m := New(loader, quietLogger())
	t.Cleanup(m.TerminateAll)

	return m
}

func createEchoWorker(t *testing.T, m *Manager, id string) {
	t.Helper()
	require.NoError(t, m.CreateWorker(id, echoProgram{}, WorkerConfig{}))
}

func TestCreateWorkerPerformsHandshake(t *testing.T) {
	m := newTestManager(t)

	createEchoWorker(t, m, "game-logic")

	status, err := m.WorkerStatus("game-logic")
	require.NoError(t, err)
	assert.Equal(t, "Ready", status.State)
}

func TestCreateWorkerRejectsDuplicate(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "game-logic")

	err := m.CreateWorker("game-logic", echoProgram{}, WorkerConfig{})
	assert.ErrorIs(t, err, ErrDuplicateWorker)
}

func TestSendToUnknownWorkerFailsSynchronously(t *testing.T) {
	m := newTestManager(t)

	done := make(chan error, 1)
	go func() {
		ping := msg.MakeBuilder().WithType(msg.TypePing).Build()
		_, err := m.Send("ghost", ping, time.Second)
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrUnknownWorker)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("unknown-worker send hung")
	}
}

func TestInitHandshakeCorrelation(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "game-logic")

	init := msg.MakeBuilder().
		WithID("init-probe").
		WithType(msg.TypeInit).
		WithPayload(&msg.InitPayload{WorkerID: "game-logic"}).
		Build()

	rsp, err := m.Send("game-logic", init, time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.TypeInitComplete, rsp.Type)
	assert.Equal(t, "init-probe", rsp.ID)
}

func TestConcurrentRequestsResolveTheirOwnPromises(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "game-logic")
	createEchoWorker(t, m, "ai")

	const inFlight = 32

	var wg sync.WaitGroup
	for i := 0; i < inFlight; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			target := "game-logic"
			if i%2 == 0 {
				target = "ai"
			}

			payload := fmt.Sprintf("request-%d", i)
			req := msg.MakeBuilder().
				WithType(msg.TypeMetricsUpdate).
				WithPayload(payload).
				Build()

			rsp, err := m.Send(target, req, time.Second)
			assert.NoError(t, err)
			assert.Equal(t, req.ID, rsp.ID)
			assert.Equal(t, payload, rsp.Payload)
		}(i)
	}
	wg.Wait()
}

func TestTimeoutIsolation(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.CreateWorker(
		"slow", slowProgram{delay: 200 * time.Millisecond}, WorkerConfig{}))
	createEchoWorker(t, m, "fast")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()

		req := msg.MakeBuilder().WithType(msg.TypeUpdateGameState).
			WithPayload(msg.NewGameStateRecord()).Build()

		start := time.Now()
		_, err := m.Send("slow", req, 50*time.Millisecond)
		elapsed := time.Since(start)

		var timeoutErr *TimeoutError
		if assert.ErrorAs(t, err, &timeoutErr) {
			assert.Equal(t, "slow", timeoutErr.WorkerID)
			assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
		}
		assert.Less(t, elapsed, 150*time.Millisecond)
	}()

	go func() {
		defer wg.Done()

		req := msg.MakeBuilder().WithType(msg.TypePing).Build()
		rsp, err := m.Send("fast", req, time.Second)
		assert.NoError(t, err)
		assert.Equal(t, msg.TypePong, rsp.Type)
	}()

	wg.Wait()

	// The late response from the slow worker must have no observable
	// effect: a follow-up request still resolves with its own ID.
	time.Sleep(250 * time.Millisecond)

	req := msg.MakeBuilder().WithType(msg.TypePing).Build()
	rsp, err := m.Send("slow", req, time.Second)
	require.NoError(t, err)
	assert.Equal(t, req.ID, rsp.ID)
}

func TestSendMovesDiscoveredAndExplicitBuffers(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "game-logic")

	inPayload := msg.NewBuffer(16)
	explicit := msg.NewBuffer(16)
	payload := map[string]any{"state": inPayload}

	req := msg.MakeBuilder().
		WithType(msg.TypeMetricsUpdate).
		WithPayload(payload).
		Build()

	_, err := m.Send("game-logic", req, time.Second, explicit, inPayload)
	require.NoError(t, err)

	// Union without duplicates: both moved exactly once, no panic from a
	// double transfer.
	assert.True(t, inPayload.Moved())
	assert.True(t, explicit.Moved())
}

func TestBroadcastDuplicatesTransferables(t *testing.T) {
	m := newTestManager(t)

	programs := map[string]*captureProgram{
		"w1": {}, "w2": {}, "w3": {},
	}
	for id, p := range programs {
		require.NoError(t, m.CreateWorker(id, p, WorkerConfig{}))
	}

	buffer := msg.BufferOf(bytes.Repeat([]byte{7}, 16))
	message := msg.MakeBuilder().
		WithType(msg.TypeMetricsUpdate).
		WithPayload(buffer).
		Build()

	result := m.Broadcast(message, nil, false)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	var delivered []*msg.Buffer
	for _, p := range programs {
		p.mu.Lock()
		require.Len(t, p.received, 1)
		delivered = append(delivered, p.received[0])
		p.mu.Unlock()
	}

	// Three independent buffers of the original length.
	for _, b := range delivered {
		assert.Equal(t, 16, b.Len())
	}
	assert.NotSame(t, delivered[0], delivered[1])
	assert.NotSame(t, delivered[1], delivered[2])
	assert.NotSame(t, delivered[0], delivered[2])

	// Mutation after delivery stays local to one buffer.
	delivered[0].Bytes()[0] = 99
	assert.Equal(t, byte(7), delivered[1].Bytes()[0])
	assert.Equal(t, byte(7), delivered[2].Bytes()[0])
}

func TestBroadcastSharedTransferablesMoveNothing(t *testing.T) {
	m := newTestManager(t)

	programs := map[string]*captureProgram{
		"w1": {}, "w2": {}, "w3": {},
	}
	for id, p := range programs {
		require.NoError(t, m.CreateWorker(id, p, WorkerConfig{}))
	}

	buffer := msg.BufferOf(bytes.Repeat([]byte{7}, 16))
	message := msg.MakeBuilder().
		WithType(msg.TypeMetricsUpdate).
		WithPayload(buffer).
		Build()

	result := m.Broadcast(message, nil, true)
	assert.Equal(t, 3, result.Succeeded)
	assert.Equal(t, 0, result.Failed)

	// Sharing moves nothing: the caller keeps ownership and every
	// recipient saw the very same handle.
	assert.False(t, buffer.Moved())
	for _, p := range programs {
		p.mu.Lock()
		require.Len(t, p.received, 1)
		assert.Same(t, buffer, p.received[0])
		p.mu.Unlock()
	}
}

func TestBroadcastDuplicatesCarrierPayloads(t *testing.T) {
	m := newTestManager(t)

	programs := map[string]*captureProgram{"w1": {}, "w2": {}}
	for id, p := range programs {
		require.NoError(t, m.CreateWorker(id, p, WorkerConfig{}))
	}

	payload := &msg.ModulePayload{
		Name: "physics",
		Data: msg.BufferOf(bytes.Repeat([]byte{3}, 16)),
	}
	message := msg.MakeBuilder().
		WithType(msg.TypeMetricsUpdate).
		WithPayload(payload).
		Build()

	result := m.Broadcast(message, nil, false)
	require.Equal(t, 2, result.Succeeded)

	var delivered []*msg.Buffer
	for _, p := range programs {
		p.mu.Lock()
		require.Len(t, p.received, 1)
		delivered = append(delivered, p.received[0])
		p.mu.Unlock()
	}

	require.NotSame(t, delivered[0], delivered[1])
	delivered[0].Bytes()[0] = 99
	assert.Equal(t, byte(3), delivered[1].Bytes()[0])
}

func TestBroadcastAssignsFreshIDs(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "w1")
	createEchoWorker(t, m, "w2")

	message := msg.MakeBuilder().
		WithType(msg.TypeMetricsUpdate).
		WithPayload("fan-out").
		Build()

	result := m.Broadcast(message, nil, false)
	require.Equal(t, 2, result.Succeeded)

	assert.NotEqual(t,
		result.Responses["w1"].ID, result.Responses["w2"].ID)
}

func TestBroadcastPartialFailure(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "healthy")

	require.NoError(t, m.CreateWorker(
		"doomed", panickyProgram{}, WorkerConfig{}))

	// Drive the doomed worker into the Errored state.
	poke := msg.MakeBuilder().WithType(msg.TypeStart).Build()
	_, _ = m.Send("doomed", poke, time.Second)
	require.Eventually(t, func() bool {
		status, err := m.WorkerStatus("doomed")
		return err == nil && status.State == "Errored"
	}, time.Second, 10*time.Millisecond)

	message := msg.MakeBuilder().
		WithType(msg.TypeMetricsUpdate).
		WithPayload("fan-out").
		Build()

	result := m.Broadcast(message, nil, false)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.ErrorIs(t, result.Errors["doomed"], ErrWorkerErrored)
}

func TestErroredWorkerRejectsRequestsButAnswersPing(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.CreateWorker(
		"doomed", panickyProgram{}, WorkerConfig{}))

	poke := msg.MakeBuilder().WithType(msg.TypeStart).Build()
	_, _ = m.Send("doomed", poke, time.Second)
	require.Eventually(t, func() bool {
		status, err := m.WorkerStatus("doomed")
		return err == nil && status.State == "Errored"
	}, time.Second, 10*time.Millisecond)

	req := msg.MakeBuilder().WithType(msg.TypeMetricsUpdate).Build()
	_, err := m.Send("doomed", req, time.Second)
	assert.ErrorIs(t, err, ErrWorkerErrored)

	ping := msg.MakeBuilder().WithType(msg.TypePing).Build()
	rsp, err := m.Send("doomed", ping, time.Second)
	require.NoError(t, err)
	assert.Equal(t, msg.TypePong, rsp.Type)
}

func TestTerminateWorkerRemovesDescriptor(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "game-logic")

	require.NoError(t, m.TerminateWorker("game-logic"))

	ping := msg.MakeBuilder().WithType(msg.TypePing).Build()
	_, err := m.Send("game-logic", ping, time.Second)
	assert.ErrorIs(t, err, ErrUnknownWorker)

	assert.ErrorIs(t, m.TerminateWorker("game-logic"), ErrUnknownWorker)
}

func TestTerminateWorkerFailsInFlightRequests(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.CreateWorker(
		"slow", slowProgram{delay: 2 * time.Second}, WorkerConfig{}))

	inFlight := make(chan error, 1)
	go func() {
		req := msg.MakeBuilder().WithType(msg.TypeMetricsUpdate).Build()
		_, err := m.Send("slow", req, 5*time.Second)
		inFlight <- err
	}()

	// Let the request reach the pending table before tearing down.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	require.NoError(t, m.TerminateWorker("slow"))

	select {
	case err := <-inFlight:
		assert.ErrorIs(t, err, ErrWorkerTerminated)
		assert.Less(t, time.Since(start), time.Second)
	case <-time.After(time.Second):
		t.Fatal("in-flight request survived worker teardown")
	}
}

func TestWorkerStatusReportsResourceLimits(t *testing.T) {
	m := newTestManager(t)

	limits := ResourceLimits{MaxMemoryMB: 256, MaxModuleBytes: 1 << 20}
	require.NoError(t, m.CreateWorker("game-logic", echoProgram{},
		WorkerConfig{Limits: limits}))

	status, err := m.WorkerStatus("game-logic")
	require.NoError(t, err)
	assert.Equal(t, limits, status.Limits)
}

func TestTerminateAll(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "w1")
	createEchoWorker(t, m, "w2")
	createEchoWorker(t, m, "w3")

	m.TerminateAll()

	assert.Equal(t, 0, m.Stats().ActiveWorkers)
}

func TestStandardPool(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Init())

	stats := m.Stats()
	assert.Equal(t, 3, stats.ActiveWorkers)
	assert.Contains(t, stats.Workers, "game-logic")
	assert.Contains(t, stats.Workers, "ai")
	assert.Contains(t, stats.Workers, "analytics")
}

func TestModuleDelivery(t *testing.T) {
	loader := modules.NewLoader(failingSource{}, quietLogger())
	require.NoError(t, loader.Init())

	m := New(loader, quietLogger())
	t.Cleanup(m.TerminateAll)

	delivered := make(chan string, 8)
	m.Events().On(EventModuleDelivered, func(args ...any) {
		delivered <- args[1].(string)
	})

	require.NoError(t, m.CreateWorker("game-logic", echoProgram{},
		WorkerConfig{Modules: []string{"game-core"}}))

	select {
	case name := <-delivered:
		assert.Equal(t, "game-core", name)
	case <-time.After(time.Second):
		t.Fatal("module was never delivered")
	}
}

func TestStatsTrackLatency(t *testing.T) {
	m := newTestManager(t)
	createEchoWorker(t, m, "game-logic")

	for i := 0; i < 25; i++ {
		ping := msg.MakeBuilder().WithType(msg.TypePing).Build()
		_, err := m.Send("game-logic", ping, time.Second)
		require.NoError(t, err)
	}

	stats := m.Stats()
	assert.GreaterOrEqual(t, stats.MessageCount, uint64(25))
	assert.Greater(t, stats.AvgResponseTime, time.Duration(0))

	status := stats.Workers["game-logic"]
	assert.Equal(t, latencyWindow, status.Samples)
	assert.Greater(t, status.AvgLatency, time.Duration(0))
	assert.Greater(t, status.LastLatency, time.Duration(0))
}

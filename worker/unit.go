package worker

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/msg"
)

const channelDepth = 64

// A Fault is an uncaught error escaping a worker. It surfaces on the unit's
// error channel, never as a message.
type Fault struct {
	WorkerID string
	Reason   string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("worker %s fault: %s", f.WorkerID, f.Reason)
}

// A Unit is one isolated execution unit. Messages delivered to the inbox are
// processed in delivery order; replies and unsolicited messages come out of
// the outbox; uncaught faults come out of the error channel.
type Unit struct {
	id      string
	program Program
	runtime *modules.Runtime
	logger  *log.Logger

	inbox  chan *msg.Message
	outbox chan *msg.Message
	faults chan error

	done     chan struct{}
	stopOnce sync.Once
}

// NewUnit creates a unit running the given program. Start must be called
// before delivering messages.
func NewUnit(id string, program Program, logger *log.Logger) *Unit {
	if logger == nil {
		logger = log.New(os.Stderr, "worker."+id+": ", log.LstdFlags)
	}

	return &Unit{
		id:      id,
		program: program,
		runtime: modules.NewRuntime(logger),
		logger:  logger,
		inbox:   make(chan *msg.Message, channelDepth),
		outbox:  make(chan *msg.Message, channelDepth),
		faults:  make(chan error, channelDepth),
		done:    make(chan struct{}),
	}
}

// ID returns the worker identifier.
func (u *Unit) ID() string {
	return u.id
}

// Runtime returns the unit's module runtime.
func (u *Unit) Runtime() *modules.Runtime {
	return u.runtime
}

// Outbox is the channel carrying messages from the worker to the
// coordinator.
func (u *Unit) Outbox() <-chan *msg.Message {
	return u.outbox
}

// Faults is the dedicated error channel, distinct from normal messages.
func (u *Unit) Faults() <-chan error {
	return u.faults
}

// Start launches the unit's processing goroutine.
func (u *Unit) Start() {
	go u.run()
}

// Stop destroys the unit. Stopping an already stopped unit is a no-op.
func (u *Unit) Stop() {
	u.stopOnce.Do(func() {
		close(u.done)
	})
}

// Deliver hands one message to the unit's FIFO inbox. It fails if the unit
// has been stopped.
func (u *Unit) Deliver(m *msg.Message) error {
	select {
	case <-u.done:
		return fmt.Errorf("worker %s is stopped", u.id)
	default:
	}

	select {
	case <-u.done:
		return fmt.Errorf("worker %s is stopped", u.id)
	case u.inbox <- m:
		return nil
	}
}

func (u *Unit) run() {
	for {
		select {
		case <-u.done:
			return
		case m := <-u.inbox:
			u.dispatch(m)
		}
	}
}

func (u *Unit) dispatch(m *msg.Message) {
	defer func() {
		if r := recover(); r != nil {
			u.reportFault(fmt.Sprintf("panic handling %s: %v", m.Type, r))
			u.send(m.Response(msg.TypeError,
				&msg.ErrorPayload{Reason: fmt.Sprint(r)}))
		}
	}()

	if ok, diag := msg.ValidateMessage(m); !ok {
		// Protocol error: dropped at the boundary, never dispatched.
		u.logger.Printf("dropping malformed message: %s", diag)
		return
	}

	switch m.Type {
	case msg.TypeInit:
		u.handleInit(m)
	case msg.TypeLoadModule:
		u.handleLoadModule(m)
	case msg.TypePing:
		u.send(m.Response(msg.TypePong, m.Payload))
	case msg.TypeTerminate:
		u.send(m.Response(msg.TypeSuccess, nil))
		u.Stop()
	default:
		u.dispatchToProgram(m)
	}
}

func (u *Unit) handleInit(m *msg.Message) {
	if init, ok := m.Payload.(*msg.InitPayload); ok {
		// INIT carries module metadata only; bytes arrive later via
		// LOAD_MODULE.
		for _, meta := range init.Modules {
			if !meta.Available {
				u.logger.Printf("module %s marked unavailable", meta.Name)
			}
		}
	}

	u.send(m.Response(msg.TypeInitComplete,
		&msg.InitCompletePayload{WorkerID: u.id}))
}

func (u *Unit) handleLoadModule(m *msg.Message) {
	payload, ok := m.Payload.(*msg.ModulePayload)
	if !ok || payload.Data == nil {
		u.send(m.Response(msg.TypeModuleError,
			&msg.ErrorPayload{Reason: "LOAD_MODULE without module payload"}))
		return
	}

	if err := u.runtime.Register(payload.Name, payload.Data.Bytes()); err != nil {
		u.logger.Printf("registering module %s failed: %v", payload.Name, err)
		u.send(m.Response(msg.TypeModuleError,
			&msg.ErrorPayload{Reason: err.Error()}))
		return
	}

	u.send(m.Response(msg.TypeModuleLoaded, payload.Name))
}

func (u *Unit) dispatchToProgram(m *msg.Message) {
	ctx := &Context{WorkerID: u.id, Runtime: u.runtime, Logger: u.logger}

	reply, err := u.program.HandleMessage(ctx, m)
	if err != nil {
		u.logger.Printf("program %s failed on %s: %v",
			u.program.Name(), m.Type, err)
		u.send(m.Response(msg.TypeError,
			&msg.ErrorPayload{Reason: err.Error()}))
		return
	}

	if reply != nil {
		u.send(reply)
	}
}

func (u *Unit) send(m *msg.Message) {
	m.Source = u.id

	select {
	case u.outbox <- m:
	case <-u.done:
	}
}

func (u *Unit) reportFault(reason string) {
	fault := &Fault{WorkerID: u.id, Reason: reason}

	select {
	case u.faults <- fault:
	default:
		u.logger.Printf("fault channel full, dropping: %s", reason)
	}
}

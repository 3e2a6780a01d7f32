// Package worker implements the isolated execution units the coordinator
// talks to. A Unit owns a FIFO inbox, an outbox, and a dedicated error
// channel; it handles system traffic itself and delegates application
// traffic to its Program. The three standard programs (game logic, AI,
// analytics) are message-driven state machines built on the protocol.
package worker

import (
	"log"

	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/msg"
)

// A Context gives a program access to its hosting unit.
type Context struct {
	WorkerID string
	Runtime  *modules.Runtime
	Logger   *log.Logger
}

// A Program is the state machine a unit runs. HandleMessage returns the
// reply to send back, or nil when the message needs no reply. Returning an
// error produces an ERROR reply correlated to the request.
type Program interface {
	Name() string
	HandleMessage(ctx *Context, m *msg.Message) (*msg.Message, error)
}

package msg

import (
	"strconv"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate correlation IDs. IDs only need to be unique within
// one coordinator lifetime.
type IDGenerator interface {
	// Generate an ID.
	Generate() string
}

// XIDGenerator generates globally unique, roughly time-ordered IDs. This is
// the generator used in production.
type XIDGenerator struct{}

// Generate returns a new xid token.
func (XIDGenerator) Generate() string {
	return xid.New().String()
}

// SequentialIDGenerator generates deterministic numeric IDs. Meant for tests
// where reproducible IDs matter.
type SequentialIDGenerator struct {
	nextID uint64
}

// Generate returns the next sequential ID.
func (g *SequentialIDGenerator) Generate() string {
	n := atomic.AddUint64(&g.nextID, 1)
	return strconv.FormatUint(n, 10)
}

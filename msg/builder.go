package msg

import "time"

var defaultIDGenerator IDGenerator = XIDGenerator{}

// Builder assembles messages. Fields can be set in any order; Build fills
// the timestamp and generates an ID when none was supplied.
type Builder struct {
	id       string
	msgType  Type
	payload  any
	priority Priority
	source   string
	target   string
	idGen    IDGenerator
}

// MakeBuilder creates a builder with NORMAL priority.
func MakeBuilder() Builder {
	return Builder{priority: PriorityNormal}
}

// WithID sets an explicit correlation ID.
func (b Builder) WithID(id string) Builder {
	b.id = id
	return b
}

// WithType sets the message type.
func (b Builder) WithType(t Type) Builder {
	b.msgType = t
	return b
}

// WithPayload sets the payload.
func (b Builder) WithPayload(payload any) Builder {
	b.payload = payload
	return b
}

// WithPriority sets the priority level.
func (b Builder) WithPriority(p Priority) Builder {
	b.priority = p
	return b
}

// WithSource sets the sending worker identifier.
func (b Builder) WithSource(source string) Builder {
	b.source = source
	return b
}

// WithTarget sets the destination worker identifier.
func (b Builder) WithTarget(target string) Builder {
	b.target = target
	return b
}

// WithIDGenerator sets the generator used when no explicit ID is given.
func (b Builder) WithIDGenerator(gen IDGenerator) Builder {
	b.idGen = gen
	return b
}

// Build creates the message.
func (b Builder) Build() *Message {
	id := b.id
	if id == "" {
		gen := b.idGen
		if gen == nil {
			gen = defaultIDGenerator
		}
		id = gen.Generate()
	}

	return &Message{
		ID:        id,
		Type:      b.msgType,
		Payload:   b.payload,
		Timestamp: time.Now(),
		Priority:  b.priority,
		Source:    b.source,
		Target:    b.target,
	}
}

package msg

import "time"

// A Message is the unit of communication between the coordinator and a
// worker. A response reuses the ID of the request it answers so the sender
// can correlate the two.
type Message struct {
	ID        string
	Type      Type
	Payload   any
	Timestamp time.Time
	Priority  Priority
	Source    string
	Target    string
}

// Response builds a reply to m. The reply carries m's ID and swaps source and
// target so it routes back to the requester.
func (m *Message) Response(t Type, payload any) *Message {
	return &Message{
		ID:        m.ID,
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
		Priority:  m.Priority,
		Source:    m.Target,
		Target:    m.Source,
	}
}

// Clone returns a copy of the message with a fresh ID. The payload is shared
// between the original and the clone.
func (m *Message) Clone(gen IDGenerator) *Message {
	c := *m
	c.ID = gen.Generate()
	return &c
}

// ErrorPayload is carried by ERROR and MODULE_ERROR messages.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// ModuleMeta describes a module without carrying its bytes. INIT messages
// list metadata only; module bytes follow later via LOAD_MODULE.
type ModuleMeta struct {
	Name         string `json:"name"`
	Available    bool   `json:"available"`
	LoadOnDemand bool   `json:"loadOnDemand"`
}

// InitPayload configures a worker during the INIT handshake.
type InitPayload struct {
	WorkerID     string         `json:"workerId"`
	Capabilities []string       `json:"capabilities"`
	Modules      []ModuleMeta   `json:"modules"`
	Settings     map[string]any `json:"settings,omitempty"`
}

// InitCompletePayload acknowledges the INIT handshake.
type InitCompletePayload struct {
	WorkerID string `json:"workerId"`
}

// ModulePayload carries the bytes of one module in a LOAD_MODULE message.
// Data is a transferable buffer so delivery does not copy the module.
type ModulePayload struct {
	Name string
	Data *Buffer
}

// Buffers lists the transferable regions of the payload.
func (p *ModulePayload) Buffers() []*Buffer {
	if p.Data == nil {
		return nil
	}
	return []*Buffer{p.Data}
}

// Reattach rebinds the payload to post-transfer buffer handles.
func (p *ModulePayload) Reattach(repl map[*Buffer]*Buffer) {
	if nb, ok := repl[p.Data]; ok {
		p.Data = nb
	}
}

// DupPayload returns an independent copy for broadcast fan-out.
func (p *ModulePayload) DupPayload() any {
	c := &ModulePayload{Name: p.Name}
	if p.Data != nil {
		c.Data = p.Data.Dup()
	}
	return c
}

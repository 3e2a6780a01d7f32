package msg

import (
	"reflect"
	"sync"
)

// A Buffer is a transferable binary region. Handing a buffer to another
// execution unit is a move: the sender's handle is invalidated and a new
// handle owning the same underlying bytes is created for the receiver.
// Reading or writing through a moved handle panics, so ownership misuse is
// caught in tests rather than silently corrupting shared memory.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	moved bool
}

// NewBuffer allocates a buffer of n zero bytes.
func NewBuffer(n int) *Buffer {
	return &Buffer{data: make([]byte, n)}
}

// BufferOf wraps existing bytes without copying. The caller hands ownership
// of the slice to the buffer.
func BufferOf(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the underlying bytes. It panics if the buffer has been
// transferred away.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mustOwn()

	return b.data
}

// Len returns the byte length. It panics if the buffer has been transferred.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mustOwn()

	return len(b.data)
}

// Moved reports whether ownership has been transferred away.
func (b *Buffer) Moved() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.moved
}

// Transfer moves ownership out of this handle and returns a fresh handle over
// the same underlying bytes. The receiver keeps zero-copy access; the old
// handle becomes unusable.
func (b *Buffer) Transfer() *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mustOwn()

	nb := &Buffer{data: b.data}
	b.data = nil
	b.moved = true

	return nb
}

// Dup returns an independent copy of the buffer. Mutating one copy never
// affects the other.
func (b *Buffer) Dup() *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mustOwn()

	data := make([]byte, len(b.data))
	copy(data, b.data)

	return &Buffer{data: data}
}

func (b *Buffer) mustOwn() {
	if b.moved {
		panic("buffer used after transfer")
	}
}

// A BufferCarrier is a payload that occupies transferable buffers. Binary
// records implement it so the manager can discover their backing storage.
// Every carrier must also implement Dupper: discovery finds its buffers on
// every broadcast path, so non-shared fan-out must be able to duplicate the
// carrier per recipient.
type BufferCarrier interface {
	// Buffers lists the transferable regions the payload occupies.
	Buffers() []*Buffer
}

// A Reattacher is a payload that can rebind itself to post-transfer buffer
// handles after its original buffers were moved.
type Reattacher interface {
	Reattach(repl map[*Buffer]*Buffer)
}

// A Dupper is a payload that can produce an independent deep copy of itself,
// including its transferable buffers. Used by broadcast fan-out when
// transferables are not shared between recipients.
type Dupper interface {
	DupPayload() any
}

const maxWalkDepth = 16

// CollectBuffers discovers every transferable buffer reachable from payload,
// walking nested structs, maps, slices, and arrays. Each buffer appears at
// most once in the result.
func CollectBuffers(payload any) []*Buffer {
	var out []*Buffer
	seen := make(map[*Buffer]bool)

	collect(reflect.ValueOf(payload), seen, &out, 0)

	return out
}

func collect(v reflect.Value, seen map[*Buffer]bool, out *[]*Buffer, depth int) {
	if !v.IsValid() || depth > maxWalkDepth {
		return
	}

	if v.CanInterface() {
		switch p := v.Interface().(type) {
		case *Buffer:
			if p != nil && !seen[p] {
				seen[p] = true
				*out = append(*out, p)
			}
			return
		case BufferCarrier:
			for _, b := range p.Buffers() {
				if b != nil && !seen[b] {
					seen[b] = true
					*out = append(*out, b)
				}
			}
			return
		}
	}

	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			collect(v.Elem(), seen, out, depth+1)
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			collect(v.Field(i), seen, out, depth+1)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			collect(v.Index(i), seen, out, depth+1)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			collect(iter.Value(), seen, out, depth+1)
		}
	}
}

// MergeTransferables unions the buffers discovered inside payload with an
// explicit caller-supplied list, deduplicated by handle identity.
func MergeTransferables(payload any, explicit []*Buffer) []*Buffer {
	out := CollectBuffers(payload)

	seen := make(map[*Buffer]bool, len(out))
	for _, b := range out {
		seen[b] = true
	}

	for _, b := range explicit {
		if b != nil && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}

	return out
}

// ReattachPayload rebinds a payload to post-transfer buffer handles. A
// payload that is itself a buffer is replaced; payloads implementing
// Reattacher rebind themselves; common containers are rewritten in place.
// The possibly replaced payload is returned.
func ReattachPayload(payload any, repl map[*Buffer]*Buffer) any {
	switch p := payload.(type) {
	case nil:
		return nil
	case *Buffer:
		if nb, ok := repl[p]; ok {
			return nb
		}
		return p
	case Reattacher:
		p.Reattach(repl)
		return p
	case []any:
		for i, e := range p {
			p[i] = ReattachPayload(e, repl)
		}
		return p
	case map[string]any:
		for k, e := range p {
			p[k] = ReattachPayload(e, repl)
		}
		return p
	default:
		return payload
	}
}

// DupPayloadValue deep-copies a payload for an independent broadcast
// recipient. Buffers and records are duplicated; common containers are
// copied element-wise; anything else is shared as-is.
func DupPayloadValue(payload any) any {
	switch p := payload.(type) {
	case nil:
		return nil
	case *Buffer:
		return p.Dup()
	case Dupper:
		return p.DupPayload()
	case []any:
		c := make([]any, len(p))
		for i, e := range p {
			c[i] = DupPayloadValue(e)
		}
		return c
	case map[string]any:
		c := make(map[string]any, len(p))
		for k, e := range p {
			c[k] = DupPayloadValue(e)
		}
		return c
	default:
		return payload
	}
}

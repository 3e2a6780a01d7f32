package manager

import (
	"sync"

	"github.com/openarcade/workermesh/msg"
)

// A BroadcastResult aggregates per-recipient outcomes. One recipient's
// failure never aborts delivery to the others.
type BroadcastResult struct {
	Succeeded int
	Failed    int
	Responses map[string]*msg.Message
	Errors    map[string]error
}

// Broadcast sends an independent copy of the message, with a fresh
// correlation ID per recipient, to every registered worker. Fan-out is
// unordered and independently awaited.
//
// When shareTransferables is false and transferable buffers are present, all
// but the last recipient receive byte-for-byte duplicates of each buffer,
// since a transferable can be moved to only one destination. When it is
// true, every recipient shares the same buffers and nothing is moved.
func (m *Manager) Broadcast(
	message *msg.Message,
	transfer []*msg.Buffer,
	shareTransferables bool,
) *BroadcastResult {
	ids := m.workerIDs()

	payloadBufs := msg.CollectBuffers(message.Payload)
	inPayload := make(map[*msg.Buffer]bool, len(payloadBufs))
	for _, b := range payloadBufs {
		inPayload[b] = true
	}

	// Explicit transfer buffers not reachable from the payload still need
	// per-recipient duplication.
	var extra []*msg.Buffer
	for _, b := range transfer {
		if b != nil && !inPayload[b] {
			extra = append(extra, b)
		}
	}

	hasTransferables := len(payloadBufs)+len(extra) > 0

	result := &BroadcastResult{
		Responses: make(map[string]*msg.Message),
		Errors:    make(map[string]error),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, id := range ids {
		clone := message.Clone(m.idGen)

		var transferList []*msg.Buffer
		switch {
		case !hasTransferables || shareTransferables:
			// Shared payload, nothing moved.
		case i == len(ids)-1:
			// The last recipient takes ownership of the originals.
			transferList = extra
		default:
			clone.Payload = msg.DupPayloadValue(message.Payload)
			transferList = make([]*msg.Buffer, len(extra))
			for j, b := range extra {
				transferList[j] = b.Dup()
			}
		}

		wg.Add(1)
		go func(id string, clone *msg.Message, tl []*msg.Buffer) {
			defer wg.Done()

			rsp, err := m.send(id, clone, 0, tl, !shareTransferables)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors[id] = err
				return
			}
			result.Succeeded++
			result.Responses[id] = rsp
		}(id, clone, transferList)
	}
	wg.Wait()

	return result
}

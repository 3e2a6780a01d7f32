package recording

import (
	"sync"
	"time"
)

const latencyTable = "round_trips"

// A RoundTrip is one recorded request/response exchange.
type RoundTrip struct {
	Worker    string
	MsgType   string
	RTTMicros int64
	SentAt    int64
}

// A LatencySink adapts a Recorder to the manager's TraceRecorder interface.
// The recorder is not safe for concurrent use, so the sink serializes
// inserts coming from the per-worker pumps.
type LatencySink struct {
	mu       sync.Mutex
	recorder Recorder
}

// NewLatencySink creates the round-trip table and returns the sink.
func NewLatencySink(r Recorder) *LatencySink {
	r.CreateTable(latencyTable, RoundTrip{})
	return &LatencySink{recorder: r}
}

// RecordRoundTrip stores one completed exchange.
func (s *LatencySink) RecordRoundTrip(
	workerID string,
	msgType string,
	rtt time.Duration,
) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recorder.InsertData(latencyTable, RoundTrip{
		Worker:    workerID,
		MsgType:   msgType,
		RTTMicros: rtt.Microseconds(),
		SentAt:    time.Now().UnixMilli(),
	})
}

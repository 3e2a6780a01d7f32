package manager

import (
	"time"

	"github.com/openarcade/workermesh/worker"
)

// A State tracks a worker through the handshake lifecycle.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateActive
	StateTerminating
	StateTerminated
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateInitializing:
		return "Initializing"
	case StateReady:
		return "Ready"
	case StateActive:
		return "Active"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	case StateErrored:
		return "Errored"
	default:
		return "Unknown"
	}
}

// ResourceLimits bounds what one worker may consume. Zero values mean
// unlimited. The limits ride to the worker inside the INIT settings.
type ResourceLimits struct {
	MaxMemoryMB    int
	MaxModuleBytes int
}

// WorkerConfig is the lifecycle configuration supplied at creation time.
type WorkerConfig struct {
	Capabilities   []string
	Modules        []string
	Limits         ResourceLimits
	DefaultTimeout time.Duration
}

const latencyWindow = 10

// workerInfo is the manager-side descriptor of one worker.
type workerInfo struct {
	id     string
	unit   *worker.Unit
	config WorkerConfig
	state  State

	latencies   [latencyWindow]time.Duration
	latencyNext int
	samples     int
	lastLatency time.Duration

	pumpDone chan struct{}
}

func (w *workerInfo) recordLatency(d time.Duration) {
	w.latencies[w.latencyNext] = d
	w.latencyNext = (w.latencyNext + 1) % latencyWindow
	if w.samples < latencyWindow {
		w.samples++
	}
	w.lastLatency = d
}

func (w *workerInfo) avgLatency() time.Duration {
	if w.samples == 0 {
		return 0
	}

	var sum time.Duration
	for i := 0; i < w.samples; i++ {
		sum += w.latencies[i]
	}

	return sum / time.Duration(w.samples)
}

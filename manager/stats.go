package manager

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats is the synchronous statistics snapshot consumed by dashboards.
type Stats struct {
	MessageCount    uint64
	ActiveWorkers   int
	AvgResponseTime time.Duration
	Workers         map[string]WorkerStatus
}

// WorkerStatus describes one worker for diagnostics.
type WorkerStatus struct {
	ID           string
	State        string
	Capabilities []string
	Modules      []string
	Limits       ResourceLimits
	AvgLatency   time.Duration
	LastLatency  time.Duration
	Samples      int
}

// Stats returns a snapshot of the manager's counters and per-worker status.
func (m *Manager) Stats() Stats {
	m.avgMu.Lock()
	avg := m.avgResponse
	m.avgMu.Unlock()

	s := Stats{
		MessageCount:    atomic.LoadUint64(&m.msgCount),
		AvgResponseTime: avg,
		Workers:         make(map[string]WorkerStatus),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for id, info := range m.workers {
		s.Workers[id] = statusOf(info)
		if info.state != StateErrored && info.state != StateTerminating {
			s.ActiveWorkers++
		}
	}

	return s
}

// WorkerStatus returns the status of one worker.
func (m *Manager) WorkerStatus(id string) (WorkerStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, ok := m.workers[id]
	if !ok {
		return WorkerStatus{}, fmt.Errorf("%w: %s", ErrUnknownWorker, id)
	}

	return statusOf(info), nil
}

func statusOf(info *workerInfo) WorkerStatus {
	return WorkerStatus{
		ID:           info.id,
		State:        info.state.String(),
		Capabilities: info.config.Capabilities,
		Modules:      info.config.Modules,
		Limits:       info.config.Limits,
		AvgLatency:   info.avgLatency(),
		LastLatency:  info.lastLatency,
		Samples:      info.samples,
	}
}

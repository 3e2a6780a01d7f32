package worker

import (
	"fmt"
	"time"

	"github.com/openarcade/workermesh/msg"
)

// A PerformanceReport aggregates the metrics an analytics worker has
// collected since it started.
type PerformanceReport struct {
	Updates int                `json:"updates"`
	Totals  map[string]float64 `json:"totals"`
	Since   time.Time          `json:"since"`
}

// Analytics accumulates metric updates and answers report requests.
type Analytics struct {
	updates int
	totals  map[string]float64
	since   time.Time
}

// NewAnalytics creates the analytics program.
func NewAnalytics() *Analytics {
	return &Analytics{
		totals: make(map[string]float64),
		since:  time.Now(),
	}
}

// Name returns the program name.
func (a *Analytics) Name() string {
	return "analytics"
}

// HandleMessage runs one step of the state machine.
func (a *Analytics) HandleMessage(
	ctx *Context,
	m *msg.Message,
) (*msg.Message, error) {
	switch m.Type {
	case msg.TypeMetricsUpdate:
		return a.record(m)
	case msg.TypePerformanceReport:
		return a.report(m)
	default:
		return nil, fmt.Errorf("analytics cannot handle %s", m.Type)
	}
}

func (a *Analytics) record(m *msg.Message) (*msg.Message, error) {
	metrics, ok := m.Payload.(map[string]float64)
	if !ok {
		return nil, fmt.Errorf("METRICS_UPDATE payload is %T", m.Payload)
	}

	a.updates++
	for k, v := range metrics {
		a.totals[k] += v
	}

	return m.Response(msg.TypeSuccess, nil), nil
}

func (a *Analytics) report(m *msg.Message) (*msg.Message, error) {
	totals := make(map[string]float64, len(a.totals))
	for k, v := range a.totals {
		totals[k] = v
	}

	report := &PerformanceReport{
		Updates: a.updates,
		Totals:  totals,
		Since:   a.since,
	}

	return m.Response(msg.TypeResponse, report), nil
}

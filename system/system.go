package system

import (
	"github.com/openarcade/workermesh/manager"
	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/monitoring"
	"github.com/openarcade/workermesh/recording"
)

// A System is a fully wired coordinator.
type System struct {
	id string

	loader   *modules.Loader
	manager  *manager.Manager
	monitor  *monitoring.Monitor
	recorder recording.Recorder
}

// ID returns the unique ID of this system instance.
func (s *System) ID() string {
	return s.id
}

// Start initializes the module loader and the standard worker pool.
func (s *System) Start() error {
	return s.manager.Init()
}

// Manager returns the worker manager.
func (s *System) Manager() *manager.Manager {
	return s.manager
}

// Loader returns the module loader.
func (s *System) Loader() *modules.Loader {
	return s.loader
}

// Monitor returns the monitoring server, or nil when monitoring is off.
func (s *System) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Terminate tears down the worker pool and flushes the recorder.
func (s *System) Terminate() {
	s.manager.TerminateAll()

	if s.monitor != nil {
		s.monitor.StopServer()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
}

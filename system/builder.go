// Package system wires a complete coordinator: module loader, worker
// manager, monitoring server, and trace recorder.
package system

import (
	"github.com/rs/xid"

	"github.com/openarcade/workermesh/manager"
	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/monitoring"
	"github.com/openarcade/workermesh/recording"
)

// Builder can be used to build a coordinator system.
type Builder struct {
	monitorOn      bool
	monitorPort    int
	recordingOn    bool
	outputFileName string
	source         modules.Source
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		monitorOn:   true,
		recordingOn: true,
	}
}

// WithoutMonitoring sets the system to not start the monitoring server.
func (b Builder) WithoutMonitoring() Builder {
	b.monitorOn = false
	return b
}

// WithMonitorPort sets the port number for the monitoring server.
func (b Builder) WithMonitorPort(port int) Builder {
	b.monitorPort = port
	return b
}

// WithoutRecording sets the system to not persist round-trip traces.
func (b Builder) WithoutRecording() Builder {
	b.recordingOn = false
	return b
}

// WithOutputFileName sets the custom output file name for the recorder.
func (b Builder) WithOutputFileName(filename string) Builder {
	b.outputFileName = filename
	return b
}

// WithModuleSource sets where AOT modules are fetched from.
func (b Builder) WithModuleSource(source modules.Source) Builder {
	b.source = source
	return b
}

func (b Builder) parametersMustBeValid() {
	if !b.monitorOn && b.monitorPort != 0 {
		panic("monitor port cannot be set when monitoring is disabled")
	}
	if !b.recordingOn && b.outputFileName != "" {
		panic("output file name cannot be set when recording is disabled")
	}
}

// Build builds the system.
func (b Builder) Build() *System {
	b.parametersMustBeValid()

	s := &System{id: xid.New().String()}

	source := b.source
	if source == nil {
		source = modules.NewDirSource("modules")
	}

	s.loader = modules.NewLoader(source, nil)
	s.manager = manager.New(s.loader, nil)

	if b.recordingOn {
		outputPath := b.outputFileName
		if outputPath == "" {
			outputPath = "workermesh_" + s.id
		}
		s.recorder = recording.New(outputPath)
		s.manager.WithRecorder(recording.NewLatencySink(s.recorder))
	}

	if b.monitorOn {
		s.monitor = monitoring.NewMonitor()
		if b.monitorPort > 0 {
			s.monitor.WithPortNumber(b.monitorPort)
		}
		s.monitor.RegisterManager(s.manager)
		s.monitor.RegisterLoader(s.loader)
		s.monitor.StartServer()
	}

	return s
}

package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/openarcade/workermesh/modules"
	"github.com/openarcade/workermesh/msg"
	"github.com/openarcade/workermesh/system"
)

var (
	runFrames      int
	runModuleDir   string
	runModuleURL   string
	runMonitorPort int
	runNoRecording bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the coordinator and drive a demo frame loop.",
	RunE:  runCoordinator,
}

func init() {
	runCmd.Flags().IntVar(&runFrames, "frames", 120,
		"number of demo frames to drive")
	runCmd.Flags().StringVar(&runModuleDir, "module-dir", "",
		"directory holding modules.json and module files")
	runCmd.Flags().StringVar(&runModuleURL, "module-url", "",
		"base URL serving modules.json and module files")
	runCmd.Flags().IntVar(&runMonitorPort, "monitor-port", 0,
		"port for the monitoring server (0 picks a random port)")
	runCmd.Flags().BoolVar(&runNoRecording, "no-recording", false,
		"disable round-trip trace recording")

	rootCmd.AddCommand(runCmd)
}

func runCoordinator(_ *cobra.Command, _ []string) error {
	b := system.MakeBuilder()

	if port := monitorPort(); port > 0 {
		b = b.WithMonitorPort(port)
	}
	if src := moduleSource(); src != nil {
		b = b.WithModuleSource(src)
	}
	if runNoRecording {
		b = b.WithoutRecording()
	}

	s := b.Build()
	defer s.Terminate()

	if err := s.Start(); err != nil {
		return err
	}

	if err := driveDemo(s); err != nil {
		return err
	}

	stats := s.Manager().Stats()
	fmt.Printf("messages: %d, workers: %d, avg response: %v\n",
		stats.MessageCount, stats.ActiveWorkers, stats.AvgResponseTime)

	return nil
}

func monitorPort() int {
	if runMonitorPort > 0 {
		return runMonitorPort
	}

	if v := os.Getenv("WORKERMESH_MONITOR_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err == nil {
			return port
		}
	}

	return 0
}

func moduleSource() modules.Source {
	if runModuleURL != "" {
		return modules.NewHTTPSource(runModuleURL)
	}
	if runModuleDir != "" {
		return modules.NewDirSource(runModuleDir)
	}
	if dir := os.Getenv("WORKERMESH_MODULE_DIR"); dir != "" {
		return modules.NewDirSource(dir)
	}

	return nil
}

func driveDemo(s *system.System) error {
	mgr := s.Manager()

	start := msg.MakeBuilder().
		WithType(msg.TypeStart).
		WithPriority(msg.PriorityCritical).
		Build()
	if _, err := mgr.Send("game-logic", start, time.Second); err != nil {
		return err
	}

	state := msg.NewGameStateRecord()
	state.SetBallPosition(400, 300)
	state.SetBallVelocity(3, 2)
	state.SetFlag(msg.FlagBallInPlay, true)
	state.SetTimestampMillis(uint64(time.Now().UnixMilli()))

	for frame := 0; frame < runFrames; frame++ {
		aiView := state.DupPayload().(*msg.GameStateRecord)

		update := msg.MakeBuilder().
			WithType(msg.TypeUpdateGameState).
			WithPriority(msg.PriorityHigh).
			WithPayload(state).
			Build()

		rsp, err := mgr.Send("game-logic", update, time.Second)
		if err != nil {
			return fmt.Errorf("frame %d: %w", frame, err)
		}
		state = rsp.Payload.(*msg.GameStateRecord)

		move := msg.MakeBuilder().
			WithType(msg.TypeAIMoveRequest).
			WithPayload(aiView).
			Build()
		if _, err := mgr.Send("ai", move, time.Second); err != nil {
			return fmt.Errorf("frame %d ai: %w", frame, err)
		}

		if frame%20 == 19 {
			metrics := msg.MakeBuilder().
				WithType(msg.TypeMetricsUpdate).
				WithPriority(msg.PriorityLow).
				WithPayload(map[string]float64{"frames": 20}).
				Build()
			if _, err := mgr.Send("analytics", metrics, time.Second); err != nil {
				return fmt.Errorf("frame %d analytics: %w", frame, err)
			}
		}
	}

	report := msg.MakeBuilder().
		WithType(msg.TypePerformanceReport).
		Build()
	rsp, err := mgr.Send("analytics", report, time.Second)
	if err != nil {
		return err
	}

	fmt.Printf("analytics report: %+v\n", rsp.Payload)

	return nil
}

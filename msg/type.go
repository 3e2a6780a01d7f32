// Package msg defines the message protocol shared by the coordinator and the
// worker execution units: message types, priorities, a fluent builder,
// structural validation, transferable buffers, and the compact binary records
// used for high-frequency state traffic.
package msg

import (
	"encoding/json"
	"fmt"
)

// A Type identifies the kind of a message. The set of types is closed;
// messages carrying a type outside this enumeration are dropped at the
// receiving boundary.
type Type int

const (
	TypeInvalid Type = iota

	// System control.
	TypeInit
	TypeInitComplete
	TypeTerminate
	TypePing
	TypePong

	// Game control.
	TypeStart
	TypePause
	TypeResume
	TypeRestart

	// State traffic.
	TypeUpdateGameState
	TypePlayerInput

	// AI traffic.
	TypeAIMoveRequest
	TypeAIMoveResponse
	TypeAIDifficultyUpdate
	TypeAIStrategyChange

	// Observability.
	TypeMetricsUpdate
	TypePerformanceReport

	// Module loading.
	TypeLoadModule
	TypeModuleLoaded
	TypeModuleError

	// Generic.
	TypeError
	TypeSuccess
	TypeResponse

	numTypes
)

var typeNames = map[Type]string{
	TypeInit:               "INIT",
	TypeInitComplete:       "INIT_COMPLETE",
	TypeTerminate:          "TERMINATE",
	TypePing:               "PING",
	TypePong:               "PONG",
	TypeStart:              "START",
	TypePause:              "PAUSE",
	TypeResume:             "RESUME",
	TypeRestart:            "RESTART",
	TypeUpdateGameState:    "UPDATE_GAME_STATE",
	TypePlayerInput:        "PLAYER_INPUT",
	TypeAIMoveRequest:      "AI_MOVE_REQUEST",
	TypeAIMoveResponse:     "AI_MOVE_RESPONSE",
	TypeAIDifficultyUpdate: "AI_DIFFICULTY_UPDATE",
	TypeAIStrategyChange:   "AI_STRATEGY_CHANGE",
	TypeMetricsUpdate:      "METRICS_UPDATE",
	TypePerformanceReport:  "PERFORMANCE_REPORT",
	TypeLoadModule:         "LOAD_MODULE",
	TypeModuleLoaded:       "MODULE_LOADED",
	TypeModuleError:        "MODULE_ERROR",
	TypeError:              "ERROR",
	TypeSuccess:            "SUCCESS",
	TypeResponse:           "RESPONSE",
}

var typeByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, n := range typeNames {
		m[n] = t
	}
	return m
}()

// IsValid reports whether t is a member of the closed type enumeration.
func (t Type) IsValid() bool {
	return t > TypeInvalid && t < numTypes
}

// String returns the wire name of the type.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType converts a wire name back to a Type.
func ParseType(name string) (Type, error) {
	t, ok := typeByName[name]
	if !ok {
		return TypeInvalid, fmt.Errorf("unknown message type %q", name)
	}
	return t, nil
}

// MarshalJSON encodes the type by its wire name.
func (t Type) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the type from its wire name.
func (t *Type) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	parsed, err := ParseType(name)
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

// A Priority classifies a message for statistics. It is informational only;
// channels stay FIFO per worker regardless of priority.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// String returns the name of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

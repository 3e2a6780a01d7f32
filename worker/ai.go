package worker

import (
	"fmt"

	"github.com/openarcade/workermesh/msg"
)

// Strategies the AI program accepts.
const (
	StrategyDefensive  = "defensive"
	StrategyAggressive = "aggressive"
	StrategyBalanced   = "balanced"
)

// A MoveDecision is the payload of an AI_MOVE_RESPONSE.
type MoveDecision struct {
	TargetY    float32 `json:"targetY"`
	Confidence float64 `json:"confidence"`
	Strategy   string  `json:"strategy"`
}

// AI answers move requests by aiming the paddle at the projected ball
// position, blended toward the field center by the difficulty setting.
type AI struct {
	difficulty float64
	strategy   string
}

// NewAI creates the AI program with balanced strategy and mid difficulty.
func NewAI() *AI {
	return &AI{difficulty: 0.5, strategy: StrategyBalanced}
}

// Name returns the program name.
func (a *AI) Name() string {
	return "ai"
}

// HandleMessage runs one step of the state machine.
func (a *AI) HandleMessage(
	ctx *Context,
	m *msg.Message,
) (*msg.Message, error) {
	switch m.Type {
	case msg.TypeAIMoveRequest:
		return a.move(m)
	case msg.TypeAIDifficultyUpdate:
		return a.setDifficulty(m)
	case msg.TypeAIStrategyChange:
		return a.setStrategy(m)
	default:
		return nil, fmt.Errorf("ai cannot handle %s", m.Type)
	}
}

func (a *AI) move(m *msg.Message) (*msg.Message, error) {
	record, ok := m.Payload.(*msg.GameStateRecord)
	if !ok {
		return nil, fmt.Errorf("AI_MOVE_REQUEST payload is %T", m.Payload)
	}

	_, ballY := record.BallPosition()
	_, vy := record.BallVelocity()

	projected := float64(ballY + vy*4)
	center := FieldHeight / 2

	// Low difficulty drifts toward the center instead of tracking the ball.
	targetY := a.difficulty*projected + (1-a.difficulty)*center

	decision := &MoveDecision{
		TargetY:    float32(targetY),
		Confidence: a.difficulty,
		Strategy:   a.strategy,
	}

	return m.Response(msg.TypeAIMoveResponse, decision), nil
}

func (a *AI) setDifficulty(m *msg.Message) (*msg.Message, error) {
	d, ok := m.Payload.(float64)
	if !ok {
		return nil, fmt.Errorf("AI_DIFFICULTY_UPDATE payload is %T", m.Payload)
	}
	if d < 0 || d > 1 {
		return nil, fmt.Errorf("difficulty %f out of range [0, 1]", d)
	}

	a.difficulty = d

	return m.Response(msg.TypeSuccess, nil), nil
}

func (a *AI) setStrategy(m *msg.Message) (*msg.Message, error) {
	s, ok := m.Payload.(string)
	if !ok {
		return nil, fmt.Errorf("AI_STRATEGY_CHANGE payload is %T", m.Payload)
	}

	switch s {
	case StrategyDefensive, StrategyAggressive, StrategyBalanced:
		a.strategy = s
	default:
		return nil, fmt.Errorf("unknown strategy %q", s)
	}

	return m.Response(msg.TypeSuccess, nil), nil
}

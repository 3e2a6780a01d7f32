package worker

import (
	"fmt"

	"github.com/openarcade/workermesh/msg"
)

// Field bounds used by the game logic and AI programs.
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0
	PaddleSpeed = 8.0
)

type gamePhase int

const (
	phaseStopped gamePhase = iota
	phaseRunning
	phasePaused
)

// GameLogic advances the authoritative game state. It is a state machine
// over the game-control messages; per-frame UPDATE_GAME_STATE requests get
// back the advanced binary record.
type GameLogic struct {
	phase gamePhase
}

// NewGameLogic creates the game logic program in the stopped phase.
func NewGameLogic() *GameLogic {
	return &GameLogic{}
}

// Name returns the program name.
func (g *GameLogic) Name() string {
	return "game-logic"
}

// HandleMessage runs one step of the state machine.
func (g *GameLogic) HandleMessage(
	ctx *Context,
	m *msg.Message,
) (*msg.Message, error) {
	switch m.Type {
	case msg.TypeStart:
		g.phase = phaseRunning
		return m.Response(msg.TypeSuccess, nil), nil
	case msg.TypePause:
		g.phase = phasePaused
		return m.Response(msg.TypeSuccess, nil), nil
	case msg.TypeResume:
		g.phase = phaseRunning
		return m.Response(msg.TypeSuccess, nil), nil
	case msg.TypeRestart:
		g.phase = phaseRunning
		return m.Response(msg.TypeSuccess, nil), nil
	case msg.TypeUpdateGameState:
		return g.updateState(m)
	case msg.TypePlayerInput:
		return g.applyInput(m)
	default:
		return nil, fmt.Errorf("game logic cannot handle %s", m.Type)
	}
}

func (g *GameLogic) updateState(m *msg.Message) (*msg.Message, error) {
	record, ok := m.Payload.(*msg.GameStateRecord)
	if !ok {
		return nil, fmt.Errorf("UPDATE_GAME_STATE payload is %T", m.Payload)
	}

	if g.phase == phaseRunning {
		g.advance(record)
	}

	record.SetFlag(msg.FlagRunning, g.phase == phaseRunning)
	record.SetFlag(msg.FlagPaused, g.phase == phasePaused)

	return m.Response(msg.TypeResponse, record), nil
}

func (g *GameLogic) advance(record *msg.GameStateRecord) {
	x, y := record.BallPosition()
	vx, vy := record.BallVelocity()

	x += vx
	y += vy

	// Bounce off the top and bottom walls.
	if y < 0 {
		y = -y
		vy = -vy
	} else if y > FieldHeight {
		y = 2*FieldHeight - y
		vy = -vy
	}

	inPlay := x >= 0 && x <= FieldWidth

	record.SetBallPosition(x, y)
	record.SetBallVelocity(vx, vy)
	record.SetFrame(record.Frame() + 1)
	record.SetFlag(msg.FlagBallInPlay, inPlay)
	record.SetFlag(msg.FlagRoundOver, !inPlay)
}

func (g *GameLogic) applyInput(m *msg.Message) (*msg.Message, error) {
	input, ok := m.Payload.(*msg.PlayerInputRecord)
	if !ok {
		return nil, fmt.Errorf("PLAYER_INPUT payload is %T", m.Payload)
	}

	// Input application happens inside the per-frame update; acknowledge
	// receipt so the sender can stop tracking the input.
	_ = input.Buttons()

	return m.Response(msg.TypeSuccess, nil), nil
}

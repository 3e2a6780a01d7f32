package msg

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Binary records are fixed-layout little-endian structures over a single
// transferable buffer. They avoid per-field allocation on the high-frequency
// paths and transfer without copying.

// GameStateRecord layout.
const (
	gsBallX        = 0
	gsBallY        = 4
	gsBallVX       = 8
	gsBallVY       = 12
	gsLeftPaddleY  = 16
	gsRightPaddleY = 20
	gsFrame        = 24
	gsTimestampHi  = 28
	gsTimestampLo  = 32
	gsLeftScore    = 36
	gsRightScore   = 38
	gsFlags        = 40

	// GameStateRecordSize is the fixed byte size of a GameStateRecord.
	GameStateRecordSize = 44
)

// Flag byte indices within a GameStateRecord.
const (
	FlagRunning = iota
	FlagPaused
	FlagBallInPlay
	FlagRoundOver

	// GameStateFlagCount is the number of flag bytes in the record.
	GameStateFlagCount = 4
)

// A GameStateRecord is the compact per-frame game state: ball position and
// velocity, paddle positions, frame counter, a 64-bit millisecond timestamp
// split into two 32-bit words, scores, and a byte array of boolean flags.
type GameStateRecord struct {
	buf *Buffer
}

// NewGameStateRecord allocates a zeroed record.
func NewGameStateRecord() *GameStateRecord {
	return &GameStateRecord{buf: NewBuffer(GameStateRecordSize)}
}

// GameStateRecordOver interprets an existing buffer as a record.
func GameStateRecordOver(b *Buffer) (*GameStateRecord, error) {
	if b.Len() != GameStateRecordSize {
		return nil, fmt.Errorf(
			"game state record needs %d bytes, buffer has %d",
			GameStateRecordSize, b.Len())
	}
	return &GameStateRecord{buf: b}, nil
}

// Buffers lists the record's backing storage for zero-copy transfer.
func (r *GameStateRecord) Buffers() []*Buffer {
	return []*Buffer{r.buf}
}

// Reattach rebinds the record to a post-transfer buffer handle.
func (r *GameStateRecord) Reattach(repl map[*Buffer]*Buffer) {
	if nb, ok := repl[r.buf]; ok {
		r.buf = nb
	}
}

// DupPayload returns an independent copy of the record.
func (r *GameStateRecord) DupPayload() any {
	return &GameStateRecord{buf: r.buf.Dup()}
}

func (r *GameStateRecord) f32(off int) float32 {
	bits := binary.LittleEndian.Uint32(r.buf.Bytes()[off:])
	return math.Float32frombits(bits)
}

func (r *GameStateRecord) setF32(off int, v float32) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[off:], math.Float32bits(v))
}

// BallPosition returns the 2D ball position.
func (r *GameStateRecord) BallPosition() (x, y float32) {
	return r.f32(gsBallX), r.f32(gsBallY)
}

// SetBallPosition stores the 2D ball position.
func (r *GameStateRecord) SetBallPosition(x, y float32) {
	r.setF32(gsBallX, x)
	r.setF32(gsBallY, y)
}

// BallVelocity returns the 2D ball velocity.
func (r *GameStateRecord) BallVelocity() (vx, vy float32) {
	return r.f32(gsBallVX), r.f32(gsBallVY)
}

// SetBallVelocity stores the 2D ball velocity.
func (r *GameStateRecord) SetBallVelocity(vx, vy float32) {
	r.setF32(gsBallVX, vx)
	r.setF32(gsBallVY, vy)
}

// PaddleYs returns the left and right paddle positions.
func (r *GameStateRecord) PaddleYs() (left, right float32) {
	return r.f32(gsLeftPaddleY), r.f32(gsRightPaddleY)
}

// SetPaddleYs stores the left and right paddle positions.
func (r *GameStateRecord) SetPaddleYs(left, right float32) {
	r.setF32(gsLeftPaddleY, left)
	r.setF32(gsRightPaddleY, right)
}

// Frame returns the frame counter.
func (r *GameStateRecord) Frame() uint32 {
	return binary.LittleEndian.Uint32(r.buf.Bytes()[gsFrame:])
}

// SetFrame stores the frame counter.
func (r *GameStateRecord) SetFrame(frame uint32) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[gsFrame:], frame)
}

// TimestampMillis reassembles the split 64-bit millisecond timestamp.
func (r *GameStateRecord) TimestampMillis() uint64 {
	hi := binary.LittleEndian.Uint32(r.buf.Bytes()[gsTimestampHi:])
	lo := binary.LittleEndian.Uint32(r.buf.Bytes()[gsTimestampLo:])
	return uint64(hi)<<32 | uint64(lo)
}

// SetTimestampMillis splits a 64-bit millisecond timestamp into the record's
// two 32-bit words.
func (r *GameStateRecord) SetTimestampMillis(ms uint64) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[gsTimestampHi:], uint32(ms>>32))
	binary.LittleEndian.PutUint32(r.buf.Bytes()[gsTimestampLo:], uint32(ms))
}

// Scores returns the left and right scores.
func (r *GameStateRecord) Scores() (left, right uint16) {
	left = binary.LittleEndian.Uint16(r.buf.Bytes()[gsLeftScore:])
	right = binary.LittleEndian.Uint16(r.buf.Bytes()[gsRightScore:])
	return left, right
}

// SetScores stores the left and right scores.
func (r *GameStateRecord) SetScores(left, right uint16) {
	binary.LittleEndian.PutUint16(r.buf.Bytes()[gsLeftScore:], left)
	binary.LittleEndian.PutUint16(r.buf.Bytes()[gsRightScore:], right)
}

// Flag reads one named flag byte.
func (r *GameStateRecord) Flag(index int) bool {
	r.flagIndexMustBeValid(index)
	return r.buf.Bytes()[gsFlags+index] != 0
}

// SetFlag writes one named flag byte.
func (r *GameStateRecord) SetFlag(index int, v bool) {
	r.flagIndexMustBeValid(index)

	b := byte(0)
	if v {
		b = 1
	}
	r.buf.Bytes()[gsFlags+index] = b
}

func (r *GameStateRecord) flagIndexMustBeValid(index int) {
	if index < 0 || index >= GameStateFlagCount {
		panic(fmt.Sprintf("flag index %d out of range", index))
	}
}

type gameStateJSON struct {
	BallX        float32 `json:"ballX"`
	BallY        float32 `json:"ballY"`
	BallVX       float32 `json:"ballVX"`
	BallVY       float32 `json:"ballVY"`
	LeftPaddleY  float32 `json:"leftPaddleY"`
	RightPaddleY float32 `json:"rightPaddleY"`
	Frame        uint32  `json:"frame"`
	Timestamp    uint64  `json:"timestamp"`
	LeftScore    uint16  `json:"leftScore"`
	RightScore   uint16  `json:"rightScore"`
	Flags        []bool  `json:"flags"`
}

// MarshalJSON serializes the record for logging and persistence.
func (r *GameStateRecord) MarshalJSON() ([]byte, error) {
	x, y := r.BallPosition()
	vx, vy := r.BallVelocity()
	lp, rp := r.PaddleYs()
	ls, rs := r.Scores()

	flags := make([]bool, GameStateFlagCount)
	for i := range flags {
		flags[i] = r.Flag(i)
	}

	return json.Marshal(gameStateJSON{
		BallX: x, BallY: y,
		BallVX: vx, BallVY: vy,
		LeftPaddleY: lp, RightPaddleY: rp,
		Frame:     r.Frame(),
		Timestamp: r.TimestampMillis(),
		LeftScore: ls, RightScore: rs,
		Flags: flags,
	})
}

// UnmarshalJSON reconstructs the typed fields, including the split 64-bit
// timestamp, into a fresh backing buffer.
func (r *GameStateRecord) UnmarshalJSON(data []byte) error {
	var j gameStateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	r.buf = NewBuffer(GameStateRecordSize)
	r.SetBallPosition(j.BallX, j.BallY)
	r.SetBallVelocity(j.BallVX, j.BallVY)
	r.SetPaddleYs(j.LeftPaddleY, j.RightPaddleY)
	r.SetFrame(j.Frame)
	r.SetTimestampMillis(j.Timestamp)
	r.SetScores(j.LeftScore, j.RightScore)

	for i := 0; i < GameStateFlagCount && i < len(j.Flags); i++ {
		r.SetFlag(i, j.Flags[i])
	}

	return nil
}

// PlayerInputRecord layout.
const (
	piPlayer      = 0
	piButtons     = 4
	piFrame       = 8
	piTimestampHi = 12
	piTimestampLo = 16

	// PlayerInputRecordSize is the fixed byte size of a PlayerInputRecord.
	PlayerInputRecordSize = 20
)

// Button bits within a PlayerInputRecord.
const (
	ButtonUp = 1 << iota
	ButtonDown
	ButtonAction
)

// A PlayerInputRecord is the compact per-input report: player index, pressed
// button bitfield, frame counter, and split 64-bit timestamp.
type PlayerInputRecord struct {
	buf *Buffer
}

// NewPlayerInputRecord allocates a zeroed record.
func NewPlayerInputRecord() *PlayerInputRecord {
	return &PlayerInputRecord{buf: NewBuffer(PlayerInputRecordSize)}
}

// Buffers lists the record's backing storage for zero-copy transfer.
func (r *PlayerInputRecord) Buffers() []*Buffer {
	return []*Buffer{r.buf}
}

// Reattach rebinds the record to a post-transfer buffer handle.
func (r *PlayerInputRecord) Reattach(repl map[*Buffer]*Buffer) {
	if nb, ok := repl[r.buf]; ok {
		r.buf = nb
	}
}

// DupPayload returns an independent copy of the record.
func (r *PlayerInputRecord) DupPayload() any {
	return &PlayerInputRecord{buf: r.buf.Dup()}
}

// Player returns the player index.
func (r *PlayerInputRecord) Player() uint32 {
	return binary.LittleEndian.Uint32(r.buf.Bytes()[piPlayer:])
}

// SetPlayer stores the player index.
func (r *PlayerInputRecord) SetPlayer(p uint32) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[piPlayer:], p)
}

// Buttons returns the pressed button bitfield.
func (r *PlayerInputRecord) Buttons() uint32 {
	return binary.LittleEndian.Uint32(r.buf.Bytes()[piButtons:])
}

// SetButtons stores the pressed button bitfield.
func (r *PlayerInputRecord) SetButtons(b uint32) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[piButtons:], b)
}

// Frame returns the frame counter.
func (r *PlayerInputRecord) Frame() uint32 {
	return binary.LittleEndian.Uint32(r.buf.Bytes()[piFrame:])
}

// SetFrame stores the frame counter.
func (r *PlayerInputRecord) SetFrame(frame uint32) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[piFrame:], frame)
}

// TimestampMillis reassembles the split 64-bit millisecond timestamp.
func (r *PlayerInputRecord) TimestampMillis() uint64 {
	hi := binary.LittleEndian.Uint32(r.buf.Bytes()[piTimestampHi:])
	lo := binary.LittleEndian.Uint32(r.buf.Bytes()[piTimestampLo:])
	return uint64(hi)<<32 | uint64(lo)
}

// SetTimestampMillis splits a 64-bit millisecond timestamp into two words.
func (r *PlayerInputRecord) SetTimestampMillis(ms uint64) {
	binary.LittleEndian.PutUint32(r.buf.Bytes()[piTimestampHi:], uint32(ms>>32))
	binary.LittleEndian.PutUint32(r.buf.Bytes()[piTimestampLo:], uint32(ms))
}

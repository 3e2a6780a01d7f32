package msg_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openarcade/workermesh/msg"
)

var _ = Describe("GameStateRecord", func() {
	var record *msg.GameStateRecord

	BeforeEach(func() {
		record = msg.NewGameStateRecord()
	})

	It("should have the fixed size", func() {
		Expect(record.Buffers()[0].Len()).To(Equal(msg.GameStateRecordSize))
	})

	It("should store and read all the fields", func() {
		record.SetBallPosition(400.5, 300.25)
		record.SetBallVelocity(-3, 2.5)
		record.SetPaddleYs(100, 200)
		record.SetFrame(77)
		record.SetScores(3, 9)

		x, y := record.BallPosition()
		Expect(x).To(Equal(float32(400.5)))
		Expect(y).To(Equal(float32(300.25)))

		vx, vy := record.BallVelocity()
		Expect(vx).To(Equal(float32(-3)))
		Expect(vy).To(Equal(float32(2.5)))

		left, right := record.PaddleYs()
		Expect(left).To(Equal(float32(100)))
		Expect(right).To(Equal(float32(200)))

		Expect(record.Frame()).To(Equal(uint32(77)))

		ls, rs := record.Scores()
		Expect(ls).To(Equal(uint16(3)))
		Expect(rs).To(Equal(uint16(9)))
	})

	It("should split and reassemble the 64-bit timestamp", func() {
		ms := uint64(0x0123456789abcdef)

		record.SetTimestampMillis(ms)

		Expect(record.TimestampMillis()).To(Equal(ms))
	})

	It("should address flags by named index", func() {
		record.SetFlag(msg.FlagRunning, true)
		record.SetFlag(msg.FlagBallInPlay, true)

		Expect(record.Flag(msg.FlagRunning)).To(BeTrue())
		Expect(record.Flag(msg.FlagPaused)).To(BeFalse())
		Expect(record.Flag(msg.FlagBallInPlay)).To(BeTrue())
		Expect(func() {
			record.Flag(msg.GameStateFlagCount)
		}).To(Panic())
	})

	It("should round trip through JSON", func() {
		record.SetBallPosition(12, 34)
		record.SetBallVelocity(-1, 1)
		record.SetFrame(5)
		record.SetTimestampMillis(uint64(1)<<40 | 99)
		record.SetScores(1, 2)
		record.SetFlag(msg.FlagPaused, true)

		data, err := json.Marshal(record)
		Expect(err).NotTo(HaveOccurred())

		restored := &msg.GameStateRecord{}
		Expect(json.Unmarshal(data, restored)).To(Succeed())

		x, y := restored.BallPosition()
		Expect(x).To(Equal(float32(12)))
		Expect(y).To(Equal(float32(34)))
		Expect(restored.Frame()).To(Equal(uint32(5)))
		Expect(restored.TimestampMillis()).To(Equal(uint64(1)<<40 | 99))
		Expect(restored.Flag(msg.FlagPaused)).To(BeTrue())
	})

	It("should duplicate into an independent record", func() {
		record.SetFrame(10)

		dup := record.DupPayload().(*msg.GameStateRecord)
		dup.SetFrame(20)

		Expect(record.Frame()).To(Equal(uint32(10)))
		Expect(dup.Frame()).To(Equal(uint32(20)))
	})
})

var _ = Describe("PlayerInputRecord", func() {
	It("should store and read all the fields", func() {
		record := msg.NewPlayerInputRecord()

		record.SetPlayer(1)
		record.SetButtons(msg.ButtonUp | msg.ButtonAction)
		record.SetFrame(42)
		record.SetTimestampMillis(uint64(7) << 33)

		Expect(record.Player()).To(Equal(uint32(1)))
		Expect(record.Buttons() & uint32(msg.ButtonUp)).NotTo(BeZero())
		Expect(record.Buttons() & uint32(msg.ButtonDown)).To(BeZero())
		Expect(record.Frame()).To(Equal(uint32(42)))
		Expect(record.TimestampMillis()).To(Equal(uint64(7) << 33))
		Expect(record.Buffers()[0].Len()).To(Equal(msg.PlayerInputRecordSize))
	})
})

package msg_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openarcade/workermesh/msg"
)

var _ = Describe("ValidateMessage", func() {
	It("should accept a well-formed message", func() {
		m := msg.MakeBuilder().WithType(msg.TypePing).Build()

		ok, diag := msg.ValidateMessage(m)

		Expect(ok).To(BeTrue())
		Expect(diag).To(BeEmpty())
	})

	It("should reject a type outside the enumeration", func() {
		m := msg.MakeBuilder().WithType(msg.Type(9999)).Build()

		ok, diag := msg.ValidateMessage(m)

		Expect(ok).To(BeFalse())
		Expect(diag).NotTo(BeEmpty())
	})

	It("should reject a missing ID", func() {
		m := &msg.Message{Type: msg.TypePing, Timestamp: time.Now()}

		ok, _ := msg.ValidateMessage(m)

		Expect(ok).To(BeFalse())
	})

	It("should reject a missing timestamp", func() {
		m := &msg.Message{ID: "x", Type: msg.TypePing}

		ok, _ := msg.ValidateMessage(m)

		Expect(ok).To(BeFalse())
	})

	It("should reject nil", func() {
		ok, _ := msg.ValidateMessage(nil)

		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("ValidatePayload", func() {
	It("should require the matching record for state updates", func() {
		ok, _ := msg.ValidatePayload(msg.TypeUpdateGameState, "not a record")
		Expect(ok).To(BeFalse())

		ok, _ = msg.ValidatePayload(
			msg.TypeUpdateGameState, msg.NewGameStateRecord())
		Expect(ok).To(BeTrue())
	})

	It("should require the matching record for player input", func() {
		ok, _ := msg.ValidatePayload(
			msg.TypePlayerInput, msg.NewGameStateRecord())
		Expect(ok).To(BeFalse())

		ok, _ = msg.ValidatePayload(
			msg.TypePlayerInput, msg.NewPlayerInputRecord())
		Expect(ok).To(BeTrue())
	})

	It("should leave other payloads unconstrained", func() {
		ok, _ := msg.ValidatePayload(msg.TypeMetricsUpdate, 42)
		Expect(ok).To(BeTrue())
	})
})

var _ = Describe("Type", func() {
	It("should round trip through its wire name", func() {
		for _, t := range []msg.Type{
			msg.TypeInit, msg.TypeUpdateGameState, msg.TypeResponse,
		} {
			parsed, err := msg.ParseType(t.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(t))
		}
	})

	It("should reject unknown wire names", func() {
		_, err := msg.ParseType("NOT_A_TYPE")
		Expect(err).To(HaveOccurred())
	})
})

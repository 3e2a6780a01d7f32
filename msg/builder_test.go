package msg_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openarcade/workermesh/msg"
)

var _ = Describe("Builder", func() {
	It("should fill the timestamp and generate an ID", func() {
		m := msg.MakeBuilder().
			WithType(msg.TypePing).
			Build()

		Expect(m.ID).NotTo(BeEmpty())
		Expect(m.Timestamp.IsZero()).To(BeFalse())
		Expect(m.Priority).To(Equal(msg.PriorityNormal))
	})

	It("should keep an explicit ID", func() {
		m := msg.MakeBuilder().
			WithID("req-1").
			WithType(msg.TypePing).
			Build()

		Expect(m.ID).To(Equal("req-1"))
	})

	It("should carry all the fields", func() {
		m := msg.MakeBuilder().
			WithType(msg.TypeAIMoveRequest).
			WithPayload("payload").
			WithPriority(msg.PriorityHigh).
			WithSource("coordinator").
			WithTarget("ai").
			Build()

		Expect(m.Type).To(Equal(msg.TypeAIMoveRequest))
		Expect(m.Payload).To(Equal("payload"))
		Expect(m.Priority).To(Equal(msg.PriorityHigh))
		Expect(m.Source).To(Equal("coordinator"))
		Expect(m.Target).To(Equal("ai"))
	})

	It("should generate pairwise distinct IDs", func() {
		seen := make(map[string]bool)
		for i := 0; i < 10000; i++ {
			m := msg.MakeBuilder().WithType(msg.TypePing).Build()
			Expect(seen[m.ID]).To(BeFalse())
			seen[m.ID] = true
		}
	})

	It("should use an injected generator", func() {
		gen := &msg.SequentialIDGenerator{}

		m1 := msg.MakeBuilder().
			WithType(msg.TypePing).
			WithIDGenerator(gen).
			Build()
		m2 := msg.MakeBuilder().
			WithType(msg.TypePing).
			WithIDGenerator(gen).
			Build()

		Expect(m1.ID).To(Equal("1"))
		Expect(m2.ID).To(Equal("2"))
	})
})

var _ = Describe("Response", func() {
	It("should reuse the request ID and swap the route", func() {
		req := msg.MakeBuilder().
			WithType(msg.TypePing).
			WithSource("coordinator").
			WithTarget("ai").
			Build()

		rsp := req.Response(msg.TypePong, nil)

		Expect(rsp.ID).To(Equal(req.ID))
		Expect(rsp.Type).To(Equal(msg.TypePong))
		Expect(rsp.Source).To(Equal("ai"))
		Expect(rsp.Target).To(Equal("coordinator"))
	})
})

var _ = Describe("Clone", func() {
	It("should assign a fresh ID and share the payload", func() {
		original := msg.MakeBuilder().
			WithType(msg.TypeStart).
			WithPayload("shared").
			Build()

		clone := original.Clone(msg.XIDGenerator{})

		Expect(clone.ID).NotTo(Equal(original.ID))
		Expect(clone.Type).To(Equal(original.Type))
		Expect(clone.Payload).To(Equal(original.Payload))
	})
})

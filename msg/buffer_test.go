package msg_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/openarcade/workermesh/msg"
)

var _ = Describe("Buffer", func() {
	It("should move ownership on transfer", func() {
		b := msg.BufferOf([]byte{1, 2, 3, 4})

		nb := b.Transfer()

		Expect(b.Moved()).To(BeTrue())
		Expect(func() { b.Bytes() }).To(Panic())
		Expect(func() { b.Len() }).To(Panic())
		Expect(nb.Bytes()).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should panic on double transfer", func() {
		b := msg.NewBuffer(4)
		b.Transfer()

		Expect(func() { b.Transfer() }).To(Panic())
	})

	It("should duplicate independently", func() {
		b := msg.BufferOf([]byte{1, 2, 3, 4})

		d := b.Dup()
		d.Bytes()[0] = 99

		Expect(b.Bytes()[0]).To(Equal(byte(1)))
		Expect(d.Len()).To(Equal(4))
	})
})

var _ = Describe("CollectBuffers", func() {
	It("should find buffers nested in maps and slices", func() {
		b1 := msg.NewBuffer(8)
		b2 := msg.NewBuffer(8)

		payload := map[string]any{
			"first": b1,
			"rest":  []any{b2, "text", 42},
		}

		found := msg.CollectBuffers(payload)

		Expect(found).To(HaveLen(2))
		Expect(found).To(ContainElements(b1, b2))
	})

	It("should find record backing buffers", func() {
		record := msg.NewGameStateRecord()

		found := msg.CollectBuffers(record)

		Expect(found).To(Equal(record.Buffers()))
	})

	It("should report each buffer once", func() {
		b := msg.NewBuffer(8)
		payload := []any{b, b, map[string]any{"again": b}}

		found := msg.CollectBuffers(payload)

		Expect(found).To(HaveLen(1))
	})
})

var _ = Describe("MergeTransferables", func() {
	It("should union payload and explicit buffers without duplicates", func() {
		b1 := msg.NewBuffer(8)
		b2 := msg.NewBuffer(8)
		payload := []any{b1, b2}

		merged := msg.MergeTransferables(payload, []*msg.Buffer{b1})

		Expect(merged).To(HaveLen(2))
		Expect(merged).To(ContainElements(b1, b2))
	})

	It("should include explicit-only buffers", func() {
		b1 := msg.NewBuffer(8)
		b2 := msg.NewBuffer(8)

		merged := msg.MergeTransferables(b1, []*msg.Buffer{b2})

		Expect(merged).To(HaveLen(2))
	})
})

var _ = Describe("ReattachPayload", func() {
	It("should replace a bare buffer payload", func() {
		b := msg.NewBuffer(8)
		nb := b.Transfer()

		out := msg.ReattachPayload(b, map[*msg.Buffer]*msg.Buffer{b: nb})

		Expect(out).To(BeIdenticalTo(nb))
	})

	It("should rebind a record in place", func() {
		record := msg.NewGameStateRecord()
		old := record.Buffers()[0]
		nb := old.Transfer()

		out := msg.ReattachPayload(record,
			map[*msg.Buffer]*msg.Buffer{old: nb})

		Expect(out).To(BeIdenticalTo(record))
		Expect(record.Buffers()[0]).To(BeIdenticalTo(nb))
		Expect(func() { record.Frame() }).NotTo(Panic())
	})

	It("should rewrite nested containers", func() {
		b := msg.NewBuffer(8)
		nb := b.Transfer()
		payload := map[string]any{"buf": b}

		msg.ReattachPayload(payload, map[*msg.Buffer]*msg.Buffer{b: nb})

		Expect(payload["buf"]).To(BeIdenticalTo(nb))
	})
})

var _ = Describe("DupPayloadValue", func() {
	It("should duplicate a bare buffer", func() {
		b := msg.BufferOf([]byte{1, 2, 3, 4})

		dup := msg.DupPayloadValue(b).(*msg.Buffer)

		Expect(dup).NotTo(BeIdenticalTo(b))
		dup.Bytes()[0] = 9
		Expect(b.Bytes()[0]).To(Equal(byte(1)))
	})

	It("should duplicate a module payload with its data buffer", func() {
		p := &msg.ModulePayload{
			Name: "physics",
			Data: msg.BufferOf([]byte{1, 2, 3, 4}),
		}

		dup := msg.DupPayloadValue(p).(*msg.ModulePayload)

		Expect(dup).NotTo(BeIdenticalTo(p))
		Expect(dup.Data).NotTo(BeIdenticalTo(p.Data))
		dup.Data.Bytes()[0] = 9
		Expect(p.Data.Bytes()[0]).To(Equal(byte(1)))
	})
})

package alloc

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type collectingHook struct {
	ctxs []HookCtx
}

func (h *collectingHook) Func(ctx HookCtx) {
	h.ctxs = append(h.ctxs, ctx)
}

func ownerOf(b Block) string {
	owner, used := b.Owner()
	if !used {
		return ""
	}

	return owner
}

var _ = Describe("Allocator", func() {
	var a Allocator

	BeforeEach(func() {
		a = NewAllocator(100)
	})

	It("should start as one free block covering the whole range", func() {
		blocks := a.Status()

		Expect(blocks).To(HaveLen(1))
		Expect(blocks[0].Start).To(Equal(0))
		Expect(blocks[0].End).To(Equal(99))
		Expect(blocks[0].IsFree()).To(BeTrue())
		Expect(a.Capacity()).To(Equal(100))
	})

	It("should panic on non-positive capacity", func() {
		Expect(func() { NewAllocator(0) }).To(Panic())
	})

	Context("first fit", func() {
		It("should place blocks at ascending addresses", func() {
			Expect(a.Allocate("A", 30, FirstFit)).To(BeTrue())
			Expect(a.Allocate("B", 20, FirstFit)).To(BeTrue())

			blocks := a.Status()
			Expect(blocks).To(HaveLen(3))
			Expect(blocks[0].Start).To(Equal(0))
			Expect(blocks[0].End).To(Equal(29))
			Expect(ownerOf(blocks[0])).To(Equal("A"))
			Expect(blocks[1].Start).To(Equal(30))
			Expect(blocks[1].End).To(Equal(49))
			Expect(ownerOf(blocks[1])).To(Equal("B"))
			Expect(blocks[2].IsFree()).To(BeTrue())
		})

		It("should take the first hole that is large enough", func() {
			a.Allocate("A", 30, FirstFit)
			a.Allocate("B", 20, FirstFit)
			a.Release("A")

			Expect(a.Allocate("C", 10, FirstFit)).To(BeTrue())

			blocks := a.Status()
			Expect(blocks[0].Start).To(Equal(0))
			Expect(blocks[0].End).To(Equal(9))
			Expect(ownerOf(blocks[0])).To(Equal("C"))
		})

		It("should consume a free block entirely on an exact fit", func() {
			a.Allocate("A", 30, FirstFit)
			a.Allocate("B", 20, FirstFit)
			a.Release("A")

			Expect(a.Allocate("C", 30, FirstFit)).To(BeTrue())

			blocks := a.Status()
			Expect(blocks).To(HaveLen(3))
			Expect(ownerOf(blocks[0])).To(Equal("C"))
			Expect(blocks[0].Size()).To(Equal(30))
		})

		It("should fail without mutation when no hole is large enough",
			func() {
				a.Allocate("A", 30, FirstFit)
				a.Allocate("B", 20, FirstFit)
				a.Release("A")
				before := a.Status()

				Expect(a.Allocate("C", 60, FirstFit)).To(BeFalse())
				Expect(a.Status()).To(Equal(before))
			})

		It("should reject a non-positive size", func() {
			before := a.Status()

			Expect(a.Allocate("A", 0, FirstFit)).To(BeFalse())
			Expect(a.Allocate("A", -3, FirstFit)).To(BeFalse())
			Expect(a.Status()).To(Equal(before))
		})
	})

	Context("best fit", func() {
		It("should take the smallest sufficient hole", func() {
			a.Allocate("A", 30, FirstFit)
			a.Allocate("B", 20, FirstFit)
			a.Release("A")
			// Holes: [0:29] of size 30 and [50:99] of size 50.

			Expect(a.Allocate("C", 10, BestFit)).To(BeTrue())

			blocks := a.Status()
			Expect(blocks[0].Start).To(Equal(0))
			Expect(blocks[0].End).To(Equal(9))
			Expect(ownerOf(blocks[0])).To(Equal("C"))
			Expect(blocks[1].Start).To(Equal(10))
			Expect(blocks[1].End).To(Equal(29))
			Expect(blocks[1].IsFree()).To(BeTrue())
			Expect(blocks[3].Start).To(Equal(50))
			Expect(blocks[3].End).To(Equal(99))
			Expect(blocks[3].IsFree()).To(BeTrue())
		})

		It("should prefer the lowest address among equal-sized holes",
			func() {
				a.Allocate("A", 20, FirstFit)
				a.Allocate("B", 20, FirstFit)
				a.Allocate("C", 20, FirstFit)
				a.Allocate("D", 20, FirstFit)
				a.Release("A")
				a.Release("C")
				// Two holes of size 20, at 0 and at 40.

				Expect(a.Allocate("E", 5, BestFit)).To(BeTrue())

				blocks := a.Status()
				Expect(blocks[0].Start).To(Equal(0))
				Expect(ownerOf(blocks[0])).To(Equal("E"))
			})
	})

	Context("worst fit", func() {
		It("should take the largest hole", func() {
			a.Allocate("A", 30, FirstFit)
			a.Allocate("B", 20, FirstFit)
			a.Release("A")
			// Holes: size 30 at 0, size 50 at 50.

			Expect(a.Allocate("D", 10, WorstFit)).To(BeTrue())

			blocks := a.Status()
			Expect(blocks[2].Start).To(Equal(50))
			Expect(blocks[2].End).To(Equal(59))
			Expect(ownerOf(blocks[2])).To(Equal("D"))
		})

		It("should prefer the lowest address among equal-sized holes",
			func() {
				a.Allocate("A", 20, FirstFit)
				a.Allocate("B", 20, FirstFit)
				a.Allocate("C", 20, FirstFit)
				a.Allocate("D", 40, FirstFit)
				a.Release("A")
				a.Release("C")
				// Two holes of size 20, at 0 and at 40.

				Expect(a.Allocate("E", 5, WorstFit)).To(BeTrue())

				blocks := a.Status()
				Expect(blocks[0].Start).To(Equal(0))
				Expect(ownerOf(blocks[0])).To(Equal("E"))
			})
	})

	Context("release", func() {
		It("should fail for an owner that holds nothing", func() {
			a.Allocate("A", 30, FirstFit)
			before := a.Status()

			Expect(a.Release("Z")).To(BeFalse())
			Expect(a.Status()).To(Equal(before))
		})

		It("should merge the freed block with free neighbors", func() {
			a.Allocate("A", 30, FirstFit)
			a.Allocate("B", 20, FirstFit)
			a.Allocate("C", 10, FirstFit)
			a.Release("A")
			a.Release("C")

			Expect(a.Release("B")).To(BeTrue())

			blocks := a.Status()
			Expect(blocks).To(HaveLen(1))
			Expect(blocks[0].Start).To(Equal(0))
			Expect(blocks[0].End).To(Equal(99))
			Expect(blocks[0].IsFree()).To(BeTrue())
		})

		It("should free every block held by the owner", func() {
			a.Allocate("A", 10, FirstFit)
			a.Allocate("B", 10, FirstFit)
			a.Allocate("A", 10, FirstFit)

			Expect(a.Release("A")).To(BeTrue())

			blocks := a.Status()
			Expect(blocks[0].IsFree()).To(BeTrue())
			Expect(blocks[0].Size()).To(Equal(10))
			Expect(ownerOf(blocks[1])).To(Equal("B"))
			Expect(blocks[2].IsFree()).To(BeTrue())
			Expect(blocks[2].Start).To(Equal(20))
			Expect(blocks[2].End).To(Equal(99))
		})
	})

	Context("compact", func() {
		It("should pack allocated blocks at the bottom in order", func() {
			a.Allocate("A", 10, FirstFit)
			a.Allocate("B", 5, FirstFit)
			a.Allocate("C", 20, FirstFit)
			a.Allocate("D", 5, FirstFit)
			a.Allocate("E", 30, FirstFit)
			a.Release("B")
			a.Release("D")
			// Allocated: A of size 10, C of size 20, E of size 30, with
			// holes between them.

			a.Compact()

			blocks := a.Status()
			Expect(blocks).To(HaveLen(4))
			Expect(blocks[0].Start).To(Equal(0))
			Expect(blocks[0].End).To(Equal(9))
			Expect(ownerOf(blocks[0])).To(Equal("A"))
			Expect(blocks[1].Start).To(Equal(10))
			Expect(blocks[1].End).To(Equal(29))
			Expect(ownerOf(blocks[1])).To(Equal("C"))
			Expect(blocks[2].Start).To(Equal(30))
			Expect(blocks[2].End).To(Equal(59))
			Expect(ownerOf(blocks[2])).To(Equal("E"))
			Expect(blocks[3].Start).To(Equal(60))
			Expect(blocks[3].End).To(Equal(99))
			Expect(blocks[3].IsFree()).To(BeTrue())
		})

		It("should keep an empty partition as one free block", func() {
			a.Compact()

			blocks := a.Status()
			Expect(blocks).To(HaveLen(1))
			Expect(blocks[0].IsFree()).To(BeTrue())
			Expect(blocks[0].Size()).To(Equal(100))
		})

		It("should leave no free block when fully allocated", func() {
			a.Allocate("A", 100, FirstFit)

			a.Compact()

			blocks := a.Status()
			Expect(blocks).To(HaveLen(1))
			Expect(ownerOf(blocks[0])).To(Equal("A"))
		})
	})

	Context("stats", func() {
		It("should report fragmentation of the free space", func() {
			a.Allocate("A", 30, FirstFit)
			a.Allocate("B", 20, FirstFit)
			a.Release("A")
			// Free: 30 at address 0, 50 at address 50.

			s := a.Stats()
			Expect(s.Capacity).To(Equal(100))
			Expect(s.FreeTotal).To(Equal(80))
			Expect(s.LargestFree).To(Equal(50))
			Expect(s.FreeBlocks).To(Equal(2))
			Expect(s.AllocatedBlocks).To(Equal(1))
			Expect(s.Fragmentation).To(BeNumerically("~", 0.375, 1e-9))
		})

		It("should report zero fragmentation when nothing is free", func() {
			a.Allocate("A", 100, FirstFit)

			s := a.Stats()
			Expect(s.FreeTotal).To(Equal(0))
			Expect(s.Fragmentation).To(BeZero())
		})
	})

	Context("hooks", func() {
		var hook *collectingHook

		BeforeEach(func() {
			hook = &collectingHook{}
			a.AcceptHook(hook)
		})

		It("should fire after an allocation", func() {
			a.Allocate("A", 30, BestFit)

			Expect(hook.ctxs).To(HaveLen(1))
			Expect(hook.ctxs[0].Pos).To(BeIdenticalTo(HookPosAllocate))

			detail := hook.ctxs[0].Item.(OpDetail)
			Expect(detail.Owner).To(Equal("A"))
			Expect(detail.Size).To(Equal(30))
			Expect(detail.Strategy).To(Equal(BestFit))
			Expect(detail.OK).To(BeTrue())

			snapshot := hook.ctxs[0].Detail.([]Block)
			Expect(snapshot).To(HaveLen(2))
		})

		It("should fire after a failed allocation", func() {
			a.Allocate("A", 101, FirstFit)

			Expect(hook.ctxs).To(HaveLen(1))
			Expect(hook.ctxs[0].Item.(OpDetail).OK).To(BeFalse())
		})

		It("should fire after release and compact", func() {
			a.Allocate("A", 30, FirstFit)
			a.Release("A")
			a.Compact()

			Expect(hook.ctxs).To(HaveLen(3))
			Expect(hook.ctxs[1].Pos).To(BeIdenticalTo(HookPosRelease))
			Expect(hook.ctxs[2].Pos).To(BeIdenticalTo(HookPosCompact))
		})
	})
})

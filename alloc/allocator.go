package alloc

import (
	"log"
	"sort"
)

// OpDetail describes a completed allocator operation. It is the Item of the
// hook context at every hook position. Size and Strategy are only meaningful
// at HookPosAllocate.
type OpDetail struct {
	Owner    string
	Size     int
	Strategy Strategy
	OK       bool
}

// Stats is a read-only summary of the partition.
type Stats struct {
	Capacity        int
	FreeTotal       int
	LargestFree     int
	FreeBlocks      int
	AllocatedBlocks int

	// Fragmentation is the fraction of the free capacity that lies outside
	// the largest free block. It is 0 when nothing is free.
	Fragmentation float64
}

// An Allocator maintains a partition of the address range [0, capacity) into
// allocated and free blocks. The partition always covers the whole range with
// no gaps and no overlaps, is sorted by ascending start address, and never
// holds two adjacent free blocks.
//
// The allocator is single-threaded. Callers that share it across goroutines
// must provide their own mutual exclusion around every operation.
type Allocator interface {
	Hookable

	// Allocate places a block of the given size for the owner, choosing the
	// free block according to the strategy. It returns false if no free block
	// is large enough or if the size is not positive; the partition is left
	// unchanged in that case. Allocating again under an owner that already
	// holds a block is permitted and creates a second block.
	Allocate(owner string, size int, strategy Strategy) bool

	// Release frees every block held by the owner and merges the freed
	// blocks with their free neighbors. It returns false if the owner holds
	// no block.
	Release(owner string) bool

	// Compact relocates all allocated blocks toward address 0, preserving
	// their relative order, and leaves at most one free block at the top of
	// the address range.
	Compact()

	// Status returns a snapshot of the partition in ascending address order.
	Status() []Block

	// Capacity returns the total addressable size.
	Capacity() int

	// Stats summarizes the free space of the partition.
	Stats() Stats
}

// NewAllocator creates an Allocator over the address range [0, capacity). The
// partition starts as a single free block spanning the whole range.
func NewAllocator(capacity int) Allocator {
	if capacity <= 0 {
		log.Panicf("allocator capacity must be positive, got %d", capacity)
	}

	return &allocatorImpl{
		capacity: capacity,
		blocks:   []Block{NewFreeBlock(0, capacity - 1)},
	}
}

type allocatorImpl struct {
	HookableBase

	capacity int
	blocks   []Block
}

func (a *allocatorImpl) Allocate(
	owner string,
	size int,
	strategy Strategy,
) bool {
	ok := false
	if size > 0 {
		ok = a.place(owner, size, strategy)
	}

	a.operationCompleted(HookPosAllocate, OpDetail{
		Owner:    owner,
		Size:     size,
		Strategy: strategy,
		OK:       ok,
	})

	return ok
}

func (a *allocatorImpl) place(owner string, size int, strategy Strategy) bool {
	index := a.findFreeBlock(size, strategy)
	if index < 0 {
		return false
	}

	a.split(index, owner, size)

	return true
}

// findFreeBlock returns the index of the free block that the strategy selects
// among those of sufficient size, or -1 if none qualifies. Scanning in
// ascending address order with strict comparisons makes the lowest start
// address win among equal-sized candidates.
func (a *allocatorImpl) findFreeBlock(size int, strategy Strategy) int {
	index := -1

	for i, b := range a.blocks {
		if !b.IsFree() || b.Size() < size {
			continue
		}

		switch strategy {
		case FirstFit:
			return i
		case BestFit:
			if index < 0 || b.Size() < a.blocks[index].Size() {
				index = i
			}
		case WorstFit:
			if index < 0 || b.Size() > a.blocks[index].Size() {
				index = i
			}
		default:
			log.Panicf("unknown strategy %s", strategy)
		}
	}

	return index
}

// split carves an allocated block out of the low end of the free block at the
// given index. An exact fit replaces the free block entirely.
func (a *allocatorImpl) split(index int, owner string, size int) {
	free := a.blocks[index]
	allocated := NewAllocatedBlock(free.Start, free.Start+size-1, owner)

	if free.Size() > size {
		a.blocks[index] = NewFreeBlock(allocated.End+1, free.End)
		a.blocks = append(a.blocks, allocated)
	} else {
		a.blocks[index] = allocated
	}

	a.sortByStart()
}

func (a *allocatorImpl) Release(owner string) bool {
	found := false

	for i, b := range a.blocks {
		if o, used := b.Owner(); used && o == owner {
			a.blocks[i] = NewFreeBlock(b.Start, b.End)
			found = true
		}
	}

	if found {
		a.coalesce()
	}

	a.operationCompleted(HookPosRelease, OpDetail{Owner: owner, OK: found})

	return found
}

// coalesce merges every run of adjacent free blocks into one block. It
// restores the no-adjacent-free invariant after a release.
func (a *allocatorImpl) coalesce() {
	a.sortByStart()

	merged := make([]Block, 0, len(a.blocks))
	for _, b := range a.blocks {
		n := len(merged)
		if n > 0 && merged[n-1].IsFree() && b.IsFree() {
			merged[n-1].End = b.End
			continue
		}

		merged = append(merged, b)
	}

	a.blocks = merged
}

func (a *allocatorImpl) Compact() {
	a.sortByStart()

	next := 0
	packed := make([]Block, 0, len(a.blocks))

	for _, b := range a.blocks {
		owner, used := b.Owner()
		if !used {
			continue
		}

		packed = append(packed,
			NewAllocatedBlock(next, next+b.Size()-1, owner))
		next += b.Size()
	}

	if next < a.capacity {
		packed = append(packed, NewFreeBlock(next, a.capacity-1))
	}

	a.blocks = packed

	a.operationCompleted(HookPosCompact, OpDetail{OK: true})
}

func (a *allocatorImpl) Status() []Block {
	snapshot := make([]Block, len(a.blocks))
	copy(snapshot, a.blocks)

	return snapshot
}

func (a *allocatorImpl) Capacity() int {
	return a.capacity
}

func (a *allocatorImpl) Stats() Stats {
	s := Stats{Capacity: a.capacity}

	for _, b := range a.blocks {
		if !b.IsFree() {
			s.AllocatedBlocks++
			continue
		}

		s.FreeBlocks++
		s.FreeTotal += b.Size()
		if b.Size() > s.LargestFree {
			s.LargestFree = b.Size()
		}
	}

	if s.FreeTotal > 0 {
		s.Fragmentation = 1.0 -
			float64(s.LargestFree)/float64(s.FreeTotal)
	}

	return s
}

func (a *allocatorImpl) sortByStart() {
	sort.Slice(a.blocks, func(i, j int) bool {
		return a.blocks[i].Start < a.blocks[j].Start
	})
}

// operationCompleted runs after every mutating operation. It asserts the
// partition invariants and fires the hook for the position.
func (a *allocatorImpl) operationCompleted(pos *HookPos, detail OpDetail) {
	a.partitionMustBeValid()

	if a.NumHooks() > 0 {
		a.InvokeHook(HookCtx{
			Domain: a,
			Pos:    pos,
			Item:   detail,
			Detail: a.Status(),
		})
	}
}

// partitionMustBeValid panics if the partition violates the coverage,
// ordering, or no-adjacent-free invariant. A violation is a defect of the
// allocator, never a recoverable condition.
func (a *allocatorImpl) partitionMustBeValid() {
	next := 0

	for i, b := range a.blocks {
		if b.Start != next {
			log.Panicf("partition has a gap or overlap at address %d", next)
		}

		if b.Size() <= 0 {
			log.Panicf("block [%d:%d] is empty", b.Start, b.End)
		}

		if i > 0 && b.IsFree() && a.blocks[i-1].IsFree() {
			log.Panicf("adjacent free blocks at address %d", b.Start)
		}

		next = b.End + 1
	}

	if next != a.capacity {
		log.Panicf("partition covers [0:%d), capacity is %d",
			next, a.capacity)
	}
}

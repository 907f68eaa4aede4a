// Package alloc simulates contiguous-memory allocation over a fixed address
// space, with first-fit, best-fit, and worst-fit placement, release with
// free-block coalescing, and compaction.
package alloc

// A Block is a maximal contiguous address range with a uniform allocation
// status. The range is inclusive on both ends.
type Block struct {
	Start int
	End   int

	owner string
	used  bool
}

// NewFreeBlock creates a block that is not held by any owner.
func NewFreeBlock(start, end int) Block {
	return Block{Start: start, End: end}
}

// NewAllocatedBlock creates a block held by the given owner.
func NewAllocatedBlock(start, end int, owner string) Block {
	return Block{Start: start, End: end, owner: owner, used: true}
}

// Size returns the number of addresses the block covers.
func (b Block) Size() int {
	return b.End - b.Start + 1
}

// IsFree returns true if no owner holds the block.
func (b Block) IsFree() bool {
	return !b.used
}

// Owner returns the label of the owner holding the block. The bool return
// value indicates whether the block is held at all. The free status is
// carried explicitly rather than by an empty label, so an empty string is a
// valid owner name.
func (b Block) Owner() (string, bool) {
	return b.owner, b.used
}

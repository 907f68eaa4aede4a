// Package tracing provides hooks that record allocator operations, either as
// text log lines or as rows in a trace database.
package tracing

import (
	"log"

	"github.com/oslab/contigsim/alloc"
	"github.com/oslab/contigsim/recording"
)

// OpEntry represents one allocator operation in the trace database. Size and
// Strategy are only meaningful for allocate operations.
type OpEntry struct {
	Seq           int64
	Op            string
	Owner         string
	Size          int
	Strategy      string
	OK            bool
	FreeTotal     int
	LargestFree   int
	Fragmentation float64
}

// BlockEntry represents one block of the partition snapshot taken after the
// operation with the same Seq.
type BlockEntry struct {
	Seq   int64
	Start int
	End   int
	Size  int
	Free  bool
	Owner string
}

// A tracer is a hook that logs every allocator operation as one text line.
type tracer struct {
	logger *log.Logger
}

// NewTracer creates a hook that writes a line per allocator operation to the
// logger.
func NewTracer(logger *log.Logger) alloc.Hook {
	return &tracer{logger: logger}
}

func (t *tracer) Func(ctx alloc.HookCtx) {
	detail := ctx.Item.(alloc.OpDetail)

	switch ctx.Pos {
	case alloc.HookPosAllocate:
		t.logger.Printf("allocate, %s, %d, %s, %t\n",
			detail.Owner, detail.Size, detail.Strategy, detail.OK)
	case alloc.HookPosRelease:
		t.logger.Printf("release, %s, %t\n", detail.Owner, detail.OK)
	case alloc.HookPosCompact:
		t.logger.Printf("compact\n")
	}
}

// A dbTracer is a hook that records allocator operations and the partition
// snapshot after each of them into a trace database.
type dbTracer struct {
	dataRecorder recording.DataRecorder
	seq          int64
}

// NewDBTracer creates a hook that records operations into the alloc_ops and
// alloc_blocks tables of the data recorder.
func NewDBTracer(dataRecorder recording.DataRecorder) alloc.Hook {
	t := &dbTracer{dataRecorder: dataRecorder}

	t.dataRecorder.CreateTable("alloc_ops", OpEntry{})
	t.dataRecorder.CreateTable("alloc_blocks", BlockEntry{})

	return t
}

func (t *dbTracer) Func(ctx alloc.HookCtx) {
	detail := ctx.Item.(alloc.OpDetail)
	snapshot := ctx.Detail.([]alloc.Block)

	t.seq++

	entry := OpEntry{
		Seq:   t.seq,
		Op:    ctx.Pos.Name,
		Owner: detail.Owner,
		OK:    detail.OK,
	}

	if ctx.Pos == alloc.HookPosAllocate {
		entry.Size = detail.Size
		entry.Strategy = detail.Strategy.String()
	}

	freeTotal, largestFree := summarizeFreeSpace(snapshot)
	entry.FreeTotal = freeTotal
	entry.LargestFree = largestFree
	if freeTotal > 0 {
		entry.Fragmentation = 1.0 - float64(largestFree)/float64(freeTotal)
	}

	t.dataRecorder.InsertData("alloc_ops", entry)

	for _, b := range snapshot {
		owner, used := b.Owner()
		t.dataRecorder.InsertData("alloc_blocks", BlockEntry{
			Seq:   t.seq,
			Start: b.Start,
			End:   b.End,
			Size:  b.Size(),
			Free:  !used,
			Owner: owner,
		})
	}
}

func summarizeFreeSpace(blocks []alloc.Block) (total, largest int) {
	for _, b := range blocks {
		if !b.IsFree() {
			continue
		}

		total += b.Size()
		if b.Size() > largest {
			largest = b.Size()
		}
	}

	return total, largest
}

// Package shell implements the line-oriented command protocol of the
// simulator. It is pure front-end glue: it parses one command per line and
// dispatches to the allocator operations, holding no allocation logic of its
// own.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oslab/contigsim/alloc"
)

// A Shell reads commands from a reader and reports outcomes to a writer.
//
// The protocol, one command per line:
//
//	RQ <owner> <size> <F|B|W>  request an allocation
//	RL <owner>                 release the owner's memory
//	C                          compact the address space
//	STAT                       report the partition
//	X                          quit
type Shell struct {
	allocator alloc.Allocator
	out       io.Writer

	prompt    string
	exclusive func(func())
}

// New creates a Shell that drives the given allocator and writes its reports
// to out.
func New(a alloc.Allocator, out io.Writer) *Shell {
	return &Shell{
		allocator: a,
		out:       out,
		exclusive: func(f func()) { f() },
	}
}

// WithPrompt makes the shell print the prompt before reading each command.
func (s *Shell) WithPrompt() *Shell {
	s.prompt = "allocator> "
	return s
}

// WithExclusion makes the shell run every allocator call inside the given
// wrapper. The monitor's Exclusive method goes here when the allocator is
// also served over HTTP.
func (s *Shell) WithExclusion(exclusive func(func())) *Shell {
	s.exclusive = exclusive
	return s
}

// Run executes commands from the reader until an X command or the end of the
// input.
func (s *Shell) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)

	for {
		if s.prompt != "" {
			fmt.Fprint(s.out, s.prompt)
		}

		if !scanner.Scan() {
			return scanner.Err()
		}

		if quit := s.ExecuteLine(scanner.Text()); quit {
			return nil
		}
	}
}

// ExecuteLine runs a single command line. The return value reports whether
// the line asked the shell to quit.
func (s *Shell) ExecuteLine(line string) (quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "X":
		return true
	case "RQ":
		s.request(fields[1:])
	case "RL":
		s.release(fields[1:])
	case "C":
		s.compact()
	case "STAT":
		s.printStatus()
	default:
		fmt.Fprintln(s.out, "Unknown command")
	}

	return false
}

func (s *Shell) request(args []string) {
	if len(args) != 3 {
		fmt.Fprintln(s.out, "Usage: RQ <owner> <size> <F|B|W>")
		return
	}

	owner := args[0]

	size, err := strconv.Atoi(args[1])
	if err != nil || size <= 0 {
		fmt.Fprintf(s.out, "Invalid size %q\n", args[1])
		return
	}

	strategy, err := alloc.ParseStrategy(args[2])
	if err != nil {
		fmt.Fprintln(s.out, "Invalid allocation strategy")
		return
	}

	ok := false
	s.exclusive(func() {
		ok = s.allocator.Allocate(owner, size, strategy)
	})

	if ok {
		fmt.Fprintf(s.out, "Successfully allocated %d bytes to %s\n",
			size, owner)
	} else {
		fmt.Fprintf(s.out, "Error: Cannot allocate %d bytes to %s\n",
			size, owner)
	}
}

func (s *Shell) release(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: RL <owner>")
		return
	}

	owner := args[0]

	ok := false
	s.exclusive(func() {
		ok = s.allocator.Release(owner)
	})

	if ok {
		fmt.Fprintf(s.out, "Successfully released memory for %s\n", owner)
	} else {
		fmt.Fprintf(s.out, "Error: Process %s not found\n", owner)
	}
}

func (s *Shell) compact() {
	s.exclusive(func() {
		s.allocator.Compact()
	})

	fmt.Fprintln(s.out, "Memory compacted")
}

func (s *Shell) printStatus() {
	var blocks []alloc.Block
	s.exclusive(func() {
		blocks = s.allocator.Status()
	})

	for _, b := range blocks {
		status := "Unused"
		if owner, used := b.Owner(); used {
			status = "Process " + owner
		}

		fmt.Fprintf(s.out, "Addresses [%d:%d] %s\n", b.Start, b.End, status)
	}
}

package alloc

import (
	"fmt"
	"strings"
)

// Strategy selects which free block serves an allocation request.
type Strategy int

// The placement strategies. FirstFit takes the lowest-addressed free block
// that is large enough. BestFit takes the smallest sufficient free block.
// WorstFit takes the largest free block.
const (
	FirstFit Strategy = iota
	BestFit
	WorstFit
)

// String returns the name of the strategy.
func (s Strategy) String() string {
	switch s {
	case FirstFit:
		return "FirstFit"
	case BestFit:
		return "BestFit"
	case WorstFit:
		return "WorstFit"
	}

	return fmt.Sprintf("Strategy(%d)", int(s))
}

// Letter returns the one-letter request code of the strategy.
func (s Strategy) Letter() string {
	switch s {
	case FirstFit:
		return "F"
	case BestFit:
		return "B"
	case WorstFit:
		return "W"
	}

	return "?"
}

// ParseStrategy maps a one-letter request code to a Strategy. The letter is
// case-insensitive. Any letter outside F, B, and W is an input error of the
// requester, not a defect of the allocator.
func ParseStrategy(letter string) (Strategy, error) {
	switch strings.ToUpper(letter) {
	case "F":
		return FirstFit, nil
	case "B":
		return BestFit, nil
	case "W":
		return WorstFit, nil
	}

	return 0, fmt.Errorf("invalid allocation strategy %q", letter)
}

// Package partition splits a global item index range across workers.
package partition

import "fmt"

// Partition is a half-open index range [Lower, Upper) owned exclusively by
// one worker of the run identified by RunID.
type Partition struct {
	RunID string
	Lower int
	Upper int
}

// Width returns the number of items in the partition.
func (p Partition) Width() int {
	return p.Upper - p.Lower
}

// Split tiles [start, max) into workers contiguous partitions with no gaps or
// overlaps. The step is the integer quotient of the range width; the final
// partition's upper bound is clamped to max so it absorbs the remainder. The
// result is deterministic and has no side effects.
func Split(runID string, start, max, workers int) ([]Partition, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("worker count must be >= 1, got %d", workers)
	}
	if start < 0 {
		return nil, fmt.Errorf("start must be >= 0, got %d", start)
	}
	if max <= start {
		return nil, fmt.Errorf("max (%d) must be greater than start (%d)", max, start)
	}

	step := (max - start) / workers
	parts := make([]Partition, 0, workers)
	for i := 0; i < workers; i++ {
		p := Partition{
			RunID: runID,
			Lower: start + i*step,
			Upper: start + (i+1)*step,
		}
		if i == workers-1 {
			p.Upper = max
		}
		parts = append(parts, p)
	}
	return parts, nil
}

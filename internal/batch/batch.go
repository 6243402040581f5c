// Package batch groups decoded points into fixed-size batches so each sink
// write carries a bounded payload.
package batch

import "github.com/tuna-f1sh/cantools/internal/domain"

// DefaultCapacity bounds the per-write payload to the sink.
const DefaultCapacity = 100

// Accumulator collects points and emits them in order, capacity points at a
// time. Only the final batch of a session may be smaller; an empty batch is
// never emitted.
type Accumulator struct {
	capacity int
	points   []domain.Point
}

func NewAccumulator(capacity int) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Accumulator{capacity: capacity}
}

// Add appends a point. When the open sequence reaches capacity it is returned
// as a full batch and a fresh sequence is started.
func (a *Accumulator) Add(p domain.Point) ([]domain.Point, bool) {
	if a.points == nil {
		a.points = make([]domain.Point, 0, a.capacity)
	}
	a.points = append(a.points, p)
	if len(a.points) < a.capacity {
		return nil, false
	}
	full := a.points
	a.points = nil
	return full, true
}

// Flush hands back the open partial sequence, or nil if there is none. Called
// exactly once at stream end or interrupt.
func (a *Accumulator) Flush() []domain.Point {
	rem := a.points
	a.points = nil
	return rem
}

// Len reports the size of the open sequence.
func (a *Accumulator) Len() int {
	return len(a.points)
}

package valueobjects

// ClockOrdering is the result of comparing two vector clocks under the
// standard partial order.
type ClockOrdering string

const (
	ClockBefore     ClockOrdering = "before"
	ClockAfter      ClockOrdering = "after"
	ClockConcurrent ClockOrdering = "concurrent"
	ClockEqual      ClockOrdering = "equal"
)

// VectorClock tracks one monotonically non-decreasing counter per editing
// session. A missing key is treated as zero everywhere, so all operations
// are total over arbitrary maps.
type VectorClock map[string]int64

// NewVectorClock creates an empty vector clock.
func NewVectorClock() VectorClock {
	return make(VectorClock)
}

// NewVectorClockFromSnapshot creates a clock from a counter snapshot.
// The snapshot is copied; the caller's map is never aliased.
func NewVectorClockFromSnapshot(snapshot map[string]int64) VectorClock {
	vc := make(VectorClock, len(snapshot))
	for user, counter := range snapshot {
		vc[user] = counter
	}
	return vc
}

// Increment advances the counter for the given user and returns the clock
// for chaining.
func (vc VectorClock) Increment(userID string) VectorClock {
	vc[userID]++
	return vc
}

// Update merges another clock into this one by taking the per-key maximum.
// Keys present only in the receiver are untouched. Idempotent, commutative
// and associative; a clock never shrinks.
func (vc VectorClock) Update(other VectorClock) VectorClock {
	for user, counter := range other {
		if vc[user] < counter {
			vc[user] = counter
		}
	}
	return vc
}

// Compare evaluates the partial order between two clocks over the union of
// both keyspaces.
func (vc VectorClock) Compare(other VectorClock) ClockOrdering {
	hasLess := false
	hasGreater := false

	for user, counter := range vc {
		if counter < other[user] {
			hasLess = true
		} else if counter > other[user] {
			hasGreater = true
		}
	}
	for user, counter := range other {
		if _, seen := vc[user]; seen {
			continue
		}
		if counter > 0 {
			hasLess = true
		}
	}

	switch {
	case hasLess && hasGreater:
		return ClockConcurrent
	case hasLess:
		return ClockBefore
	case hasGreater:
		return ClockAfter
	default:
		return ClockEqual
	}
}

// HappensBefore reports whether every counter in the receiver is at most the
// other's and at least one is strictly smaller.
func (vc VectorClock) HappensBefore(other VectorClock) bool {
	return vc.Compare(other) == ClockBefore
}

// IsConcurrent reports whether neither clock causally precedes the other.
func (vc VectorClock) IsConcurrent(other VectorClock) bool {
	return vc.Compare(other) == ClockConcurrent
}

// Equals reports whether both clocks agree on every counter.
func (vc VectorClock) Equals(other VectorClock) bool {
	return vc.Compare(other) == ClockEqual
}

// Copy returns an independent clone of the clock.
func (vc VectorClock) Copy() VectorClock {
	return NewVectorClockFromSnapshot(vc)
}

// MergeClocks unions two clocks into a fresh one without mutating either
// argument. Commutative, associative and idempotent; used when two
// divergent histories must be joined.
func MergeClocks(a, b VectorClock) VectorClock {
	return a.Copy().Update(b)
}

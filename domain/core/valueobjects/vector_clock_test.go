package valueobjects

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorClockCompare(t *testing.T) {
	t.Run("strictly dominated clock happens before", func(t *testing.T) {
		a := VectorClock{"alice": 1, "bob": 2}
		b := VectorClock{"alice": 2, "bob": 2}

		assert.Equal(t, ClockBefore, a.Compare(b))
		assert.Equal(t, ClockAfter, b.Compare(a))
		assert.True(t, a.HappensBefore(b))
		assert.False(t, b.HappensBefore(a))
	})

	t.Run("divergent counters are concurrent both ways", func(t *testing.T) {
		a := VectorClock{"alice": 3, "bob": 1}
		b := VectorClock{"alice": 1, "bob": 3}

		assert.Equal(t, ClockConcurrent, a.Compare(b))
		assert.Equal(t, ClockConcurrent, b.Compare(a))
		assert.True(t, a.IsConcurrent(b))
		assert.True(t, b.IsConcurrent(a))
	})

	t.Run("compare is reflexive", func(t *testing.T) {
		a := VectorClock{"alice": 5, "bob": 2}

		assert.Equal(t, ClockEqual, a.Compare(a))
		assert.True(t, a.Equals(a))
		assert.False(t, a.IsConcurrent(a))
	})

	t.Run("missing keys count as zero", func(t *testing.T) {
		a := VectorClock{"alice": 1}
		b := VectorClock{"alice": 1, "bob": 1}

		assert.Equal(t, ClockBefore, a.Compare(b))
		assert.Equal(t, ClockAfter, b.Compare(a))
	})

	t.Run("keys unique to each side make the pair concurrent", func(t *testing.T) {
		a := VectorClock{"alice": 1}
		b := VectorClock{"bob": 1}

		assert.Equal(t, ClockConcurrent, a.Compare(b))
	})

	t.Run("nil clocks compare as empty", func(t *testing.T) {
		var a VectorClock
		b := VectorClock{"alice": 1}

		assert.Equal(t, ClockEqual, a.Compare(nil))
		assert.Equal(t, ClockBefore, a.Compare(b))
		assert.Equal(t, ClockAfter, b.Compare(a))
	})
}

func TestVectorClockIncrement(t *testing.T) {
	vc := NewVectorClock()
	vc.Increment("alice")
	vc.Increment("alice")
	vc.Increment("bob")

	assert.Equal(t, int64(2), vc["alice"])
	assert.Equal(t, int64(1), vc["bob"])
}

func TestVectorClockUpdate(t *testing.T) {
	t.Run("takes per-key maximum and keeps own keys", func(t *testing.T) {
		a := VectorClock{"alice": 5, "bob": 1}
		b := VectorClock{"bob": 4, "carol": 2}

		a.Update(b)

		assert.Equal(t, VectorClock{"alice": 5, "bob": 4, "carol": 2}, a)
	})

	t.Run("is idempotent", func(t *testing.T) {
		a := VectorClock{"alice": 2, "bob": 3}
		b := VectorClock{"alice": 4}

		a.Update(b)
		snapshot := a.Copy()
		a.Update(b)

		assert.Equal(t, snapshot, a)
	})
}

func TestMergeClocks(t *testing.T) {
	t.Run("is commutative", func(t *testing.T) {
		a := VectorClock{"alice": 3, "bob": 1}
		b := VectorClock{"bob": 4, "carol": 2}

		assert.Equal(t, MergeClocks(a, b), MergeClocks(b, a))
	})

	t.Run("result dominates both inputs", func(t *testing.T) {
		a := VectorClock{"alice": 3, "bob": 1}
		b := VectorClock{"bob": 4, "carol": 2}

		merged := MergeClocks(a, b)

		require.NotEqual(t, ClockBefore, merged.Compare(a))
		require.NotEqual(t, ClockBefore, merged.Compare(b))
		assert.Equal(t, int64(3), merged["alice"])
		assert.Equal(t, int64(4), merged["bob"])
		assert.Equal(t, int64(2), merged["carol"])
	})

	t.Run("does not mutate its inputs", func(t *testing.T) {
		a := VectorClock{"alice": 1}
		b := VectorClock{"alice": 9}

		MergeClocks(a, b)

		assert.Equal(t, int64(1), a["alice"])
		assert.Equal(t, int64(9), b["alice"])
	})
}

func TestNewVectorClockFromSnapshot(t *testing.T) {
	snapshot := map[string]int64{"alice": 7}
	vc := NewVectorClockFromSnapshot(snapshot)

	snapshot["alice"] = 99

	assert.Equal(t, int64(7), vc["alice"])
}

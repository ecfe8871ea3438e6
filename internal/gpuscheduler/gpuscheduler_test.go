package gpuscheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slots(weights ...int) []Slot {
	out := make([]Slot, len(weights))
	for i, w := range weights {
		out[i] = Slot{Device: i, DisplayName: "gpu", Weight: w, Port: 9000 + i}
	}
	return out
}

func TestPickOneRoundRobinFairnessOverOneCycle(t *testing.T) {
	s := New(true, true, slots(3, 1))
	counts := map[int]int{}
	for i := 0; i < 4; i++ { // W = sum of weights = 4
		picked := s.PickOne()
		require.NotNil(t, picked)
		counts[picked.Device]++
	}
	assert.Equal(t, 3, counts[0])
	assert.Equal(t, 1, counts[1])
}

func TestPickOneRoundRobinFairnessOverTwoCycles(t *testing.T) {
	s := New(true, true, slots(3, 1))
	counts := map[int]int{}
	for i := 0; i < 8; i++ { // 2W
		picked := s.PickOne()
		require.NotNil(t, picked)
		counts[picked.Device]++
	}
	assert.Equal(t, 6, counts[0])
	assert.Equal(t, 2, counts[1])
}

func TestPickOneTieBreaksByDeclarationOrder(t *testing.T) {
	s := New(true, true, slots(1, 1))
	picked := s.PickOne()
	require.NotNil(t, picked)
	assert.Equal(t, 0, picked.Device)
}

func TestPickOnePrefersNonBusySlot(t *testing.T) {
	s := New(true, true, slots(1, 5))
	s.MarkBusy(1, true)

	picked := s.PickOne()
	require.NotNil(t, picked)
	assert.Equal(t, 0, picked.Device, "the higher-weight slot is busy, so the idle one must be chosen")
}

func TestPickOneFallsBackToHighestWeightWhenAllBusy(t *testing.T) {
	s := New(true, true, slots(1, 5))
	s.MarkBusy(0, true)
	s.MarkBusy(1, true)

	picked := s.PickOne()
	require.NotNil(t, picked)
	assert.Equal(t, 1, picked.Device)
}

func TestDistributeThreeWayProportionalSplit(t *testing.T) {
	s := New(true, true, slots(1, 1, 1))
	got := s.Distribute(10)

	want := map[int]int{0: 3, 1: 3, 2: 4}
	assertConservation(t, got, 10)
	for _, a := range got {
		assert.Equal(t, want[a.Slot.Device], a.ImageCount)
	}
}

func TestDistributeTwoWayWeightedSplit(t *testing.T) {
	s := New(true, true, slots(3, 1))
	got := s.Distribute(8)

	want := map[int]int{0: 6, 1: 2}
	assertConservation(t, got, 8)
	for _, a := range got {
		assert.Equal(t, want[a.Slot.Device], a.ImageCount)
	}
}

func TestDistributeSingleImageGoesToHighestWeightSlot(t *testing.T) {
	s := New(true, true, slots(2, 1))
	got := s.Distribute(1)

	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].Slot.Device)
	assert.Equal(t, 1, got[0].ImageCount)
}

func TestDistributeDisabledAssignsEverythingToOneSlot(t *testing.T) {
	s := New(true, false, slots(1, 1, 1))
	got := s.Distribute(10)

	require.Len(t, got, 1)
	assert.Equal(t, 10, got[0].ImageCount)
}

func TestDistributeDropsZeroCountAssignments(t *testing.T) {
	s := New(true, true, slots(100, 1, 1))
	got := s.Distribute(10)
	assertConservation(t, got, 10)
	for _, a := range got {
		assert.Greater(t, a.ImageCount, 0)
	}
}

func TestDistributeFallsBackToFullSlotListWhenNoneAvailable(t *testing.T) {
	s := New(true, true, slots(1, 1))
	s.MarkBusy(0, true)
	s.MarkBusy(1, true)

	got := s.Distribute(4)
	assertConservation(t, got, 4)
}

func assertConservation(t *testing.T, got []Assignment, total int) {
	t.Helper()
	sum := 0
	seen := map[int]bool{}
	for _, a := range got {
		sum += a.ImageCount
		assert.False(t, seen[a.Slot.Device], "device %d duplicated", a.Slot.Device)
		seen[a.Slot.Device] = true
	}
	assert.Equal(t, total, sum)
}

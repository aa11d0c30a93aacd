package bounds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_FirstUpdate(t *testing.T) {
	tracker := NewTracker(1, 1)

	bandwidth := tracker.Update([]float64{2, -1, 5})

	assert.Equal(t, []float64{2, 0, 5}, tracker.Max())
	assert.Equal(t, []float64{0, -1, 0}, tracker.Min())
	assert.InDelta(t, 8.0/3.0, bandwidth, 1e-12)
}

func TestTracker_Monotonic(t *testing.T) {
	tracker := NewTracker(2, 1)
	samples := [][]float64{
		{1, 2, 3, 4},
		{-5, 0.5, 1, 10},
		{0, 0, 0, 0},
		{3, -2, 7, -1},
	}

	prevMin := tracker.Min()
	prevMax := tracker.Max()
	for _, s := range samples {
		tracker.Update(s)
		curMin := tracker.Min()
		curMax := tracker.Max()
		for i := range curMin {
			assert.LessOrEqual(t, curMin[i], prevMin[i], "min[%d] increased", i)
			assert.GreaterOrEqual(t, curMax[i], prevMax[i], "max[%d] decreased", i)
			assert.LessOrEqual(t, curMin[i], curMax[i])
		}
		prevMin, prevMax = curMin, curMax
	}
	assert.Equal(t, []float64{-5, -2, 0, -1}, tracker.Min())
	assert.Equal(t, []float64{3, 2, 7, 10}, tracker.Max())
}

func TestTracker_BandwidthNormalisedByDimensionAverage(t *testing.T) {
	tracker := NewTracker(2, 2)

	bandwidth := tracker.Update([]float64{1, 1, 1, 1, 1})

	// ranges sum to 5 over 5 slots, divided by avg(2,2)=2
	assert.InDelta(t, 0.5, bandwidth, 1e-12)
}

func TestTracker_ShortBoundsGrow(t *testing.T) {
	tracker := NewTracker(1, 1)
	tracker.SetMin([]float64{-1})
	tracker.SetMax([]float64{1})

	low, high := tracker.ActionRange()
	assert.Equal(t, []float64{0}, low)
	assert.Equal(t, []float64{0}, high)

	tracker.Update([]float64{0, 4, 2})
	require.Len(t, tracker.Max(), 3)
	assert.Equal(t, []float64{1, 4, 2}, tracker.Max())
	assert.Equal(t, []float64{-1, 0, 0}, tracker.Min())
}

func TestTracker_SettersCopy(t *testing.T) {
	tracker := NewTracker(1, 2)
	min := []float64{0, -3, -4, 0}
	max := []float64{1, 3, 4, 0}
	tracker.SetMin(min)
	tracker.SetMax(max)
	min[1] = 100

	low, high := tracker.ActionRange()
	assert.Equal(t, []float64{-3, -4}, low)
	assert.Equal(t, []float64{3, 4}, high)
}

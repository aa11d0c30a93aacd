// Package bounds tracks the running per-dimension range of every joined
// vector the agent has learned from and derives the estimator bandwidth.
package bounds

import (
	"gonum.org/v1/gonum/floats"
)

// Tracker holds the observed minimum and maximum of each joined vector slot.
// Ranges only ever widen through Update; the setters replace them wholesale.
type Tracker struct {
	stateDims  int
	actionDims int
	min        []float64
	max        []float64
}

// NewTracker creates a tracker with zeroed bounds of width stateDims+actionDims+1.
func NewTracker(stateDims, actionDims int) *Tracker {
	width := stateDims + actionDims + 1
	return &Tracker{
		stateDims:  stateDims,
		actionDims: actionDims,
		min:        make([]float64, width),
		max:        make([]float64, width),
	}
}

// Update widens the bounds to cover joined and returns the new bandwidth:
// the mean per-slot range divided by the average of the state and action
// dimension counts.
func (t *Tracker) Update(joined []float64) float64 {
	t.min = grow(t.min, len(joined))
	t.max = grow(t.max, len(joined))

	ranges := make([]float64, len(joined))
	for i, v := range joined {
		if v > t.max[i] {
			t.max[i] = v
		}
		if v < t.min[i] {
			t.min[i] = v
		}
		ranges[i] = t.max[i] - t.min[i]
	}
	if len(joined) == 0 {
		return 0
	}
	avgDims := float64(t.stateDims+t.actionDims) / 2
	return floats.Sum(ranges) / float64(len(joined)) / avgDims
}

// Min returns a copy of the minimum values.
func (t *Tracker) Min() []float64 { return clone(t.min) }

// Max returns a copy of the maximum values.
func (t *Tracker) Max() []float64 { return clone(t.max) }

// SetMin replaces the minimum values. The length is not checked.
func (t *Tracker) SetMin(min []float64) { t.min = clone(min) }

// SetMax replaces the maximum values. The length is not checked.
func (t *Tracker) SetMax(max []float64) { t.max = clone(max) }

// ActionRange returns the action slice of the bounds. Slots missing from a
// short bounds array read as zero.
func (t *Tracker) ActionRange() (low, high []float64) {
	low = make([]float64, t.actionDims)
	high = make([]float64, t.actionDims)
	for i := 0; i < t.actionDims; i++ {
		low[i] = at(t.min, t.stateDims+i)
		high[i] = at(t.max, t.stateDims+i)
	}
	return low, high
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

func grow(values []float64, n int) []float64 {
	for len(values) < n {
		values = append(values, 0)
	}
	return values
}

func clone(values []float64) []float64 {
	out := make([]float64, len(values))
	copy(out, values)
	return out
}

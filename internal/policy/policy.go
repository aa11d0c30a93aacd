// Package policy provides action selection strategies for the agent
package policy

// Box is the per-dimension action range a policy selects within.
type Box struct {
	Low  []float64
	High []float64
}

// Dims returns the number of action dimensions in the box.
func (b Box) Dims() int { return len(b.Low) }

// Policy interface for action selection
type Policy interface {
	// SelectAction chooses an action vector for the given state vector.
	// Returns one value per action dimension, in layout order.
	SelectAction(state []float64, box Box) ([]float64, error)
}

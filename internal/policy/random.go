package policy

import (
	"fmt"
	"math/rand"
	"time"
)

// RandomPolicy selects uniformly random actions within the box
type RandomPolicy struct {
	rng *rand.Rand
}

// NewRandom creates a new random policy. A nil rng is replaced by a
// time-seeded source.
func NewRandom(rng *rand.Rand) *RandomPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &RandomPolicy{rng: rng}
}

// SelectAction implements Policy interface
func (p *RandomPolicy) SelectAction(_ []float64, box Box) ([]float64, error) {
	if len(box.Low) != len(box.High) {
		return nil, fmt.Errorf("action box bounds mismatch: %d low vs %d high", len(box.Low), len(box.High))
	}

	action := make([]float64, len(box.Low))
	for i := range box.Low {
		low := box.Low[i]
		high := box.High[i]

		// Random value in [low, high]
		action[i] = low + (high-low)*p.rng.Float64()
	}

	return action, nil
}

// Explore reports whether a request with the given exploration probability
// should sample randomly.
func (p *RandomPolicy) Explore(probability float64) bool {
	return p.rng.Float64() < probability
}

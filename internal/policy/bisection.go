package policy

import (
	"fmt"
	"math"

	"github.com/cartridge/qagent/internal/estimator"
)

// Rounds is the number of refinement rounds a bisection search runs for the
// given accuracy: ceil(1/(1-accuracy)).
func Rounds(accuracy float64) int {
	return int(math.Ceil(1 / (1 - accuracy)))
}

// QueriesPerDecision is the number of estimator queries one bisection
// search issues.
func QueriesPerDecision(actionDims int, accuracy float64) int {
	return (2*actionDims + 2) * Rounds(accuracy)
}

// BisectionPolicy searches each action dimension independently, halving its
// interval every round towards the side the estimator scores higher.
type BisectionPolicy struct {
	est      estimator.Estimator
	accuracy float64
	defaultQ float64
}

// NewBisection creates a bisection policy querying est.
func NewBisection(est estimator.Estimator, accuracy, defaultQ float64) (*BisectionPolicy, error) {
	if est == nil {
		return nil, fmt.Errorf("estimator is required")
	}
	if !(accuracy > 0 && accuracy < 1) {
		return nil, fmt.Errorf("accuracy must be within (0,1), got %v", accuracy)
	}
	return &BisectionPolicy{est: est, accuracy: accuracy, defaultQ: defaultQ}, nil
}

// SelectAction implements Policy interface
//
// Each round probes 2n+2 candidate actions for n action dimensions:
//
//	[0]          all dimensions at q1
//	[1+d]        all at q1 except d at q3
//	[n+1]        all dimensions at q3
//	[n+2+d]      all at q3 except d at q1
//
// with q1 = (lo+hi)/4 and q3 = 3*q1 per dimension. The result is the midpoint
// of the final round's all-q1 and all-q3 candidates.
func (p *BisectionPolicy) SelectAction(state []float64, box Box) ([]float64, error) {
	if len(box.Low) != len(box.High) {
		return nil, fmt.Errorf("action box bounds mismatch: %d low vs %d high", len(box.Low), len(box.High))
	}
	n := box.Dims()
	lo := append([]float64(nil), box.Low...)
	hi := append([]float64(nil), box.High...)

	candidates := make([][]float64, 2*n+2)
	for i := range candidates {
		candidates[i] = make([]float64, n)
	}
	queries := make([][]float64, len(candidates))

	rounds := Rounds(p.accuracy)
	for r := 0; r < rounds; r++ {
		for d := 0; d < n; d++ {
			q1 := 0.25 * (lo[d] + hi[d])
			q3 := 3 * q1
			for j := 0; j <= n; j++ {
				if j == d+1 {
					candidates[j][d] = q3
					candidates[n+1+j][d] = q1
				} else {
					candidates[j][d] = q1
					candidates[n+1+j][d] = q3
				}
			}
		}

		for i, c := range candidates {
			q := make([]float64, 0, len(state)+n)
			q = append(q, state...)
			queries[i] = append(q, c...)
		}
		results := estimator.QueryAll(p.est, queries, p.defaultQ)

		for d := 0; d < n; d++ {
			q3 := 0.5 * (results[1+d] + results[n+1])
			q1 := 0.5 * (results[0] + results[n+2+d])
			mid := 0.5 * (lo[d] + hi[d])
			if q3 > q1 {
				lo[d] = mid
			} else {
				hi[d] = mid
			}
		}
	}

	action := make([]float64, n)
	for d := 0; d < n; d++ {
		action[d] = 0.5 * (candidates[n+1][d] + candidates[0][d])
	}
	return action, nil
}

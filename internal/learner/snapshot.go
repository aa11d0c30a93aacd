package learner

import (
	"fmt"
	"math"

	"github.com/cartridge/qagent/internal/types"
)

// Snapshot is the complete persisted state of a Learner.
type Snapshot struct {
	StateDims      []string    `json:"state_dims"`
	ActionDims     []string    `json:"action_dims"`
	Mode           types.Mode  `json:"mode"`
	LearningRate   float64     `json:"learning_rate"`
	DiscountFactor float64     `json:"discount_factor"`
	Accuracy       float64     `json:"accuracy"`
	DefaultQ       float64     `json:"default_q"`
	Bandwidth      float64     `json:"bandwidth"`
	K              int         `json:"k,omitempty"`
	Min            []float64   `json:"min"`
	Max            []float64   `json:"max"`
	Started        bool        `json:"started"`
	Data           [][]float64 `json:"data"`
}

// Snapshot captures the learner configuration, bounds and dataset.
func (l *Learner) Snapshot() Snapshot {
	return Snapshot{
		StateDims:      l.layout.StateDims(),
		ActionDims:     l.layout.ActionDims(),
		Mode:           l.mode,
		LearningRate:   l.learningRate,
		DiscountFactor: l.discountFactor,
		Accuracy:       l.accuracy,
		DefaultQ:       l.defaultQ,
		Bandwidth:      l.est.MaxDistance(),
		K:              l.k,
		Min:            l.tracker.Min(),
		Max:            l.tracker.Max(),
		Started:        l.started,
		Data:           l.est.Data(),
	}
}

// Restore replaces the learner state with s. The snapshot must have been
// taken from a learner with the same dimensions.
func (l *Learner) Restore(s Snapshot) error {
	if err := l.validateSnapshot(s); err != nil {
		return err
	}

	l.mode = s.Mode
	l.learningRate = s.LearningRate
	l.discountFactor = s.DiscountFactor
	l.accuracy = s.Accuracy
	l.defaultQ = s.DefaultQ
	l.tracker.SetMin(s.Min)
	l.tracker.SetMax(s.Max)
	l.est.SetData(s.Data)
	l.est.SetMaxDistance(s.Bandwidth)
	if s.K > 0 {
		l.est.SetK(s.K)
	}
	l.k = s.K
	l.started = s.Started

	l.logger.Debug().
		Str("mode", string(s.Mode)).
		Int("points", len(s.Data)).
		Msg("Learner restored")
	return nil
}

func (l *Learner) validateSnapshot(s Snapshot) error {
	if !equalNames(s.StateDims, l.layout.StateDims()) || !equalNames(s.ActionDims, l.layout.ActionDims()) {
		return fmt.Errorf("%w: snapshot dimensions %v/%v do not match %v/%v",
			types.ErrMismatch, s.StateDims, s.ActionDims, l.layout.StateDims(), l.layout.ActionDims())
	}
	if s.Mode != types.ModeLearn {
		if err := s.Mode.Validate(); err != nil {
			return err
		}
	}
	settings := types.Settings{
		LearningRate:   &s.LearningRate,
		DiscountFactor: &s.DiscountFactor,
		Accuracy:       &s.Accuracy,
		DefaultQ:       &s.DefaultQ,
		Bandwidth:      &s.Bandwidth,
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if s.K < 0 {
		return fmt.Errorf("%w: k must not be negative, got %d", types.ErrType, s.K)
	}
	if s.Min == nil || s.Max == nil || s.Data == nil {
		return fmt.Errorf("%w: snapshot bounds and data are required", types.ErrType)
	}
	for i, point := range s.Data {
		for _, v := range point {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: snapshot point %d is not finite", types.ErrType, i)
			}
		}
	}
	return nil
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

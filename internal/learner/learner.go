// Package learner implements a continuous-action Q-learning agent that
// learns through a nearest-neighbour estimator and chooses actions by
// coordinate-wise bisection over it.
package learner

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/rs/zerolog"

	"github.com/cartridge/qagent/internal/bounds"
	"github.com/cartridge/qagent/internal/estimator"
	"github.com/cartridge/qagent/internal/policy"
	"github.com/cartridge/qagent/internal/types"
)

// Defaults applied to a new Learner.
const (
	DefaultLearningRate   = 0.2
	DefaultDiscountFactor = 0.25
	DefaultAccuracy       = 0.9
	DefaultQ              = 0.0
	DefaultMaxDistance    = 10.0
)

// Learner is a Q-learning agent over named continuous state and action
// dimensions.
//
// Learner is not safe for concurrent use. Callers sharing one instance must
// serialise RequestAction and UpdateQFactors; a decision queries the
// estimator in batches that assume its dataset does not change mid-search.
type Learner struct {
	layout  *types.Layout
	est     estimator.Estimator
	tracker *bounds.Tracker
	random  *policy.RandomPolicy
	logger  zerolog.Logger

	mode           types.Mode
	learningRate   float64
	discountFactor float64
	accuracy       float64
	defaultQ       float64
	k              int // 0 until SetK is called
	started        bool
}

// Option configures a Learner.
type Option func(*Learner)

// WithRand sets the source used for exploration draws.
func WithRand(rng *rand.Rand) Option {
	return func(l *Learner) { l.random = policy.NewRandom(rng) }
}

// WithLogger sets the logger used for debug traces.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Learner) { l.logger = logger }
}

// New creates a Learner for the given ordered dimensions. A nil estimator is
// replaced by an in-memory KNN.
func New(stateDims, actionDims []string, est estimator.Estimator, opts ...Option) (*Learner, error) {
	layout, err := types.NewLayout(stateDims, actionDims)
	if err != nil {
		return nil, err
	}
	if est == nil {
		est = estimator.NewKNN()
	}

	l := &Learner{
		layout:         layout,
		est:            est,
		tracker:        bounds.NewTracker(layout.NumState(), layout.NumAction()),
		logger:         zerolog.Nop(),
		mode:           types.ModeLearn,
		learningRate:   DefaultLearningRate,
		discountFactor: DefaultDiscountFactor,
		accuracy:       DefaultAccuracy,
		defaultQ:       DefaultQ,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.random == nil {
		l.random = policy.NewRandom(nil)
	}

	est.SetType(estimator.TypeContinuous)
	est.SetMaxDistance(DefaultMaxDistance)
	est.Clear([][]float64{make([]float64, layout.Width())})

	return l, nil
}

// RequestAction chooses an action for state. With probability equal to the
// learning rate (zero in use mode) it samples uniformly inside the action
// bounds; otherwise it searches the estimator.
func (l *Learner) RequestAction(state types.State) (types.Action, error) {
	if err := l.layout.ValidateState(state); err != nil {
		return nil, err
	}

	explore := l.learningRate
	switch l.mode {
	case types.ModeUse:
		explore = 0
	case types.ModeLearn1:
		return nil, fmt.Errorf("%w: actions cannot be requested in %s mode", types.ErrMode, l.mode)
	}

	low, high := l.tracker.ActionRange()
	box := policy.Box{Low: low, High: high}
	stateVec := l.layout.StateVector(state)

	var p policy.Policy = l.random
	if !l.random.Explore(explore) {
		bisection, err := policy.NewBisection(l.est, l.accuracy, l.defaultQ)
		if err != nil {
			return nil, err
		}
		p = bisection
	}

	vec, err := p.SelectAction(stateVec, box)
	if err != nil {
		return nil, err
	}
	return l.layout.ActionFromVector(vec), nil
}

// UpdateQFactors records that taking action in state earned reward. The raw
// reward is stored as the regression target; newState is accepted for
// interface compatibility and not consulted.
func (l *Learner) UpdateQFactors(state types.State, action types.Action, reward float64, newState types.State) error {
	if err := l.layout.ValidateState(state); err != nil {
		return err
	}
	if err := l.layout.ValidateAction(action); err != nil {
		return err
	}
	if err := types.ValidateFinite("reward", reward); err != nil {
		return err
	}
	_ = newState

	joined := l.layout.JoinWithReward(state, action, reward)
	bandwidth := l.tracker.Update(joined)
	l.est.SetMaxDistance(bandwidth)

	if !l.started {
		l.est.Clear([][]float64{joined})
		l.started = true
	} else {
		l.est.AddPoint(joined)
	}

	l.logger.Debug().
		Float64("reward", reward).
		Float64("bandwidth", bandwidth).
		Msg("Q factors updated")
	return nil
}

// SetMode switches the operating mode. Only learn_1, learn_2 and use can be
// selected.
func (l *Learner) SetMode(mode types.Mode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	l.mode = mode
	l.logger.Debug().Str("mode", string(mode)).Msg("Mode changed")
	return nil
}

// SetLearningRate sets the exploration probability used outside use mode.
func (l *Learner) SetLearningRate(v float64) error {
	if err := types.ValidateOpenUnit("learning_rate", v, types.ErrType); err != nil {
		return err
	}
	l.learningRate = v
	return nil
}

// SetDiscountFactor stores the discount factor. It does not affect the
// stored regression target.
func (l *Learner) SetDiscountFactor(v float64) error {
	if err := types.ValidateOpenUnit("discount_factor", v, types.ErrType); err != nil {
		return err
	}
	l.discountFactor = v
	return nil
}

// SetAccuracy sets the bisection accuracy, which fixes the number of search
// rounds per decision.
func (l *Learner) SetAccuracy(v float64) error {
	if math.IsNaN(v) {
		return fmt.Errorf("%w: accuracy is not a number", types.ErrType)
	}
	if err := types.ValidateOpenUnit("accuracy", v, types.ErrRange); err != nil {
		return err
	}
	l.accuracy = v
	return nil
}

// SetMinimumValues replaces the lower bounds. The layout is the caller's
// responsibility.
func (l *Learner) SetMinimumValues(min []float64) error {
	if min == nil {
		return fmt.Errorf("%w: minimum values are required", types.ErrType)
	}
	l.tracker.SetMin(min)
	return nil
}

// SetMaximumValues replaces the upper bounds. The layout is the caller's
// responsibility.
func (l *Learner) SetMaximumValues(max []float64) error {
	if max == nil {
		return fmt.Errorf("%w: maximum values are required", types.ErrType)
	}
	l.tracker.SetMax(max)
	return nil
}

// SetRanges replaces both bound arrays.
func (l *Learner) SetRanges(min, max []float64) error {
	if min == nil || max == nil {
		return fmt.Errorf("%w: minimum and maximum values are required", types.ErrType)
	}
	l.tracker.SetMin(min)
	l.tracker.SetMax(max)
	return nil
}

// SetK sets the estimator neighbour count.
func (l *Learner) SetK(k int) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be positive, got %d", types.ErrType, k)
	}
	l.est.SetK(k)
	l.k = k
	return nil
}

// SetBandwidth overrides the estimator radius until the next update
// recomputes it.
func (l *Learner) SetBandwidth(v float64) error {
	if err := types.ValidateFinite("bandwidth", v); err != nil {
		return err
	}
	l.est.SetMaxDistance(v)
	return nil
}

// SetDefaultQ sets the value assumed for actions with no nearby samples.
func (l *Learner) SetDefaultQ(v float64) error {
	if err := types.ValidateFinite("default_q", v); err != nil {
		return err
	}
	l.defaultQ = v
	return nil
}

// LoadData replaces the estimator dataset.
func (l *Learner) LoadData(data [][]float64) error {
	if data == nil {
		return fmt.Errorf("%w: data is required", types.ErrType)
	}
	l.est.SetData(data)
	return nil
}

// SetAction validates a labelled state/action pair. It is only accepted in
// learn_1 mode and has no further effect.
func (l *Learner) SetAction(state types.State, action types.Action) error {
	if err := l.layout.ValidateState(state); err != nil {
		return err
	}
	if err := l.layout.ValidateAction(action); err != nil {
		return err
	}
	if l.mode != types.ModeLearn1 {
		return fmt.Errorf("%w: actions can only be set in %s mode, current mode is %s",
			types.ErrMode, types.ModeLearn1, l.mode)
	}
	return nil
}

// Configure applies every present field of s. Nothing is applied unless all
// fields are valid.
func (l *Learner) Configure(s types.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.LearningRate != nil {
		l.learningRate = *s.LearningRate
	}
	if s.DiscountFactor != nil {
		l.discountFactor = *s.DiscountFactor
	}
	if s.Accuracy != nil {
		l.accuracy = *s.Accuracy
	}
	if s.DefaultQ != nil {
		l.defaultQ = *s.DefaultQ
	}
	if s.Bandwidth != nil {
		l.est.SetMaxDistance(*s.Bandwidth)
	}
	if s.K != nil {
		l.est.SetK(*s.K)
		l.k = *s.K
	}
	return nil
}

// Layout returns the dimension layout.
func (l *Learner) Layout() *types.Layout { return l.layout }

// Mode returns the current operating mode.
func (l *Learner) Mode() types.Mode { return l.mode }

// LearningRate returns the exploration probability.
func (l *Learner) LearningRate() float64 { return l.learningRate }

// DiscountFactor returns the stored discount factor.
func (l *Learner) DiscountFactor() float64 { return l.discountFactor }

// Accuracy returns the bisection accuracy.
func (l *Learner) Accuracy() float64 { return l.accuracy }

// DefaultQ returns the fallback estimate.
func (l *Learner) DefaultQ() float64 { return l.defaultQ }

// Bandwidth returns the current estimator radius.
func (l *Learner) Bandwidth() float64 { return l.est.MaxDistance() }

// K returns the neighbour count last set, or 0 when the estimator default
// is in effect.
func (l *Learner) K() int { return l.k }

// Started reports whether at least one update has been recorded.
func (l *Learner) Started() bool { return l.started }

// MinimumValues returns a copy of the lower bounds.
func (l *Learner) MinimumValues() []float64 { return l.tracker.Min() }

// MaximumValues returns a copy of the upper bounds.
func (l *Learner) MaximumValues() []float64 { return l.tracker.Max() }

// Data returns the estimator dataset.
func (l *Learner) Data() [][]float64 { return l.est.Data() }

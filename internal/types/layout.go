package types

import (
	"fmt"
	"math"
)

// Layout fixes the order of state and action dimensions inside a joined
// vector. It is immutable once built.
type Layout struct {
	stateDims  []string
	actionDims []string
	stateIdx   map[string]int
	actionIdx  map[string]int
}

// NewLayout builds a Layout from ordered dimension names.
func NewLayout(stateDims, actionDims []string) (*Layout, error) {
	if len(stateDims) == 0 || len(actionDims) == 0 {
		return nil, fmt.Errorf("%w: state and action dimensions are required", ErrType)
	}
	l := &Layout{
		stateDims:  append([]string(nil), stateDims...),
		actionDims: append([]string(nil), actionDims...),
		stateIdx:   make(map[string]int, len(stateDims)),
		actionIdx:  make(map[string]int, len(actionDims)),
	}
	if err := index(l.stateIdx, l.stateDims, "state"); err != nil {
		return nil, err
	}
	if err := index(l.actionIdx, l.actionDims, "action"); err != nil {
		return nil, err
	}
	return l, nil
}

func index(dst map[string]int, names []string, kind string) error {
	for i, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty %s dimension name at position %d", ErrType, kind, i)
		}
		if _, dup := dst[name]; dup {
			return fmt.Errorf("%w: duplicate %s dimension %q", ErrType, kind, name)
		}
		dst[name] = i
	}
	return nil
}

// StateDims returns the ordered state dimension names.
func (l *Layout) StateDims() []string { return append([]string(nil), l.stateDims...) }

// ActionDims returns the ordered action dimension names.
func (l *Layout) ActionDims() []string { return append([]string(nil), l.actionDims...) }

// NumState is the number of state dimensions.
func (l *Layout) NumState() int { return len(l.stateDims) }

// NumAction is the number of action dimensions.
func (l *Layout) NumAction() int { return len(l.actionDims) }

// Width is the length of a joined vector including the reward slot.
func (l *Layout) Width() int { return len(l.stateDims) + len(l.actionDims) + 1 }

// ValidateState checks that state carries exactly the declared dimensions.
func (l *Layout) ValidateState(state State) error {
	if state == nil {
		return fmt.Errorf("%w: state is required", ErrType)
	}
	return validate(state, l.stateDims, "state")
}

// ValidateAction checks that action carries exactly the declared dimensions.
func (l *Layout) ValidateAction(action Action) error {
	if action == nil {
		return fmt.Errorf("%w: action is required", ErrType)
	}
	return validate(action, l.actionDims, "action")
}

func validate(values map[string]float64, names []string, kind string) error {
	if len(values) != len(names) {
		return fmt.Errorf("%w: %s has %d entries, want %d", ErrMismatch, kind, len(values), len(names))
	}
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			return fmt.Errorf("%w: %s is missing dimension %q", ErrMismatch, kind, name)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s dimension %q is not finite", ErrType, kind, name)
		}
	}
	return nil
}

// StateVector reads state values in declared order.
func (l *Layout) StateVector(state State) []float64 {
	vec := make([]float64, len(l.stateDims))
	for i, name := range l.stateDims {
		vec[i] = state[name]
	}
	return vec
}

// Join concatenates state and action values in declared order.
func (l *Layout) Join(state State, action Action) []float64 {
	joined := make([]float64, 0, l.Width())
	return l.appendJoined(joined, state, action)
}

// JoinWithReward concatenates state, action and reward.
func (l *Layout) JoinWithReward(state State, action Action, reward float64) []float64 {
	joined := make([]float64, 0, l.Width())
	joined = l.appendJoined(joined, state, action)
	return append(joined, reward)
}

func (l *Layout) appendJoined(dst []float64, state State, action Action) []float64 {
	for _, name := range l.stateDims {
		dst = append(dst, state[name])
	}
	for _, name := range l.actionDims {
		dst = append(dst, action[name])
	}
	return dst
}

// ActionFromVector maps an ordered action vector back to named values.
func (l *Layout) ActionFromVector(vec []float64) Action {
	action := make(Action, len(l.actionDims))
	for i, name := range l.actionDims {
		if i < len(vec) {
			action[name] = vec[i]
		}
	}
	return action
}

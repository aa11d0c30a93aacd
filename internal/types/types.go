package types

import (
	"fmt"
	"math"
)

// Mode enumerates the agent operating modes.
type Mode string

const (
	// ModeLearn is the mode a fresh agent starts in. It cannot be selected
	// through SetMode.
	ModeLearn  Mode = "learn"
	ModeLearn1 Mode = "learn_1"
	ModeLearn2 Mode = "learn_2"
	ModeUse    Mode = "use"
)

// Validate reports whether the mode may be selected by a caller.
func (m Mode) Validate() error {
	switch m {
	case ModeLearn1, ModeLearn2, ModeUse:
		return nil
	default:
		return fmt.Errorf("%w: unsupported mode %q", ErrType, m)
	}
}

// State maps state dimension names to values.
type State map[string]float64

// Action maps action dimension names to values.
type Action map[string]float64

// Settings is a partial update of the numeric agent configuration.
// Nil fields are left untouched.
type Settings struct {
	LearningRate   *float64 `json:"learning_rate,omitempty"`
	DiscountFactor *float64 `json:"discount_factor,omitempty"`
	Accuracy       *float64 `json:"accuracy,omitempty"`
	DefaultQ       *float64 `json:"default_q,omitempty"`
	Bandwidth      *float64 `json:"bandwidth,omitempty"`
	K              *int     `json:"k,omitempty"`
}

// Validate checks every present field against its setter contract.
func (s Settings) Validate() error {
	if s.LearningRate != nil {
		if err := ValidateOpenUnit("learning_rate", *s.LearningRate, ErrType); err != nil {
			return err
		}
	}
	if s.DiscountFactor != nil {
		if err := ValidateOpenUnit("discount_factor", *s.DiscountFactor, ErrType); err != nil {
			return err
		}
	}
	if s.Accuracy != nil {
		if math.IsNaN(*s.Accuracy) {
			return fmt.Errorf("%w: accuracy is not a number", ErrType)
		}
		if err := ValidateOpenUnit("accuracy", *s.Accuracy, ErrRange); err != nil {
			return err
		}
	}
	if s.DefaultQ != nil {
		if err := ValidateFinite("default_q", *s.DefaultQ); err != nil {
			return err
		}
	}
	if s.Bandwidth != nil {
		if err := ValidateFinite("bandwidth", *s.Bandwidth); err != nil {
			return err
		}
	}
	if s.K != nil && *s.K < 1 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrType, *s.K)
	}
	return nil
}

// ValidateOpenUnit checks that v lies strictly inside (0,1) and reports
// violations with the given error kind.
func ValidateOpenUnit(name string, v float64, kind error) error {
	if v > 0 && v < 1 {
		return nil
	}
	return fmt.Errorf("%w: %s must be within (0,1), got %v", kind, name, v)
}

// ValidateFinite rejects NaN and infinite values as a type error.
func ValidateFinite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrType, name)
	}
	return nil
}

package types

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Join(t *testing.T) {
	layout, err := NewLayout([]string{"x", "y"}, []string{"v"})
	require.NoError(t, err)

	state := State{"y": 2, "x": 1}
	action := Action{"v": -1}

	assert.Equal(t, []float64{1, 2, -1}, layout.Join(state, action))
	assert.Equal(t, []float64{1, 2, -1, 5}, layout.JoinWithReward(state, action, 5))
	assert.Equal(t, []float64{1, 2}, layout.StateVector(state))
	assert.Equal(t, 4, layout.Width())
}

func TestLayout_DimsAreCopied(t *testing.T) {
	stateDims := []string{"x"}
	layout, err := NewLayout(stateDims, []string{"v"})
	require.NoError(t, err)

	stateDims[0] = "z"
	assert.Equal(t, []string{"x"}, layout.StateDims())

	out := layout.ActionDims()
	out[0] = "w"
	assert.Equal(t, []string{"v"}, layout.ActionDims())
}

func TestLayout_ActionFromVector(t *testing.T) {
	layout, err := NewLayout([]string{"x"}, []string{"v", "w"})
	require.NoError(t, err)

	assert.Equal(t, Action{"v": 0.5, "w": -2}, layout.ActionFromVector([]float64{0.5, -2}))
}

func TestLayout_Validate(t *testing.T) {
	layout, err := NewLayout([]string{"x", "y"}, []string{"v"})
	require.NoError(t, err)

	assert.NoError(t, layout.ValidateState(State{"x": 1, "y": 2}))
	assert.ErrorIs(t, layout.ValidateState(nil), ErrType)
	assert.ErrorIs(t, layout.ValidateState(State{"x": 1}), ErrMismatch)
	assert.ErrorIs(t, layout.ValidateState(State{"x": 1, "z": 2}), ErrMismatch)
	assert.ErrorIs(t, layout.ValidateState(State{"x": 1, "y": math.NaN()}), ErrType)

	assert.NoError(t, layout.ValidateAction(Action{"v": 0}))
	assert.ErrorIs(t, layout.ValidateAction(Action{"v": 0, "w": 1}), ErrMismatch)
}

func TestMode_Validate(t *testing.T) {
	for _, m := range []Mode{ModeLearn1, ModeLearn2, ModeUse} {
		assert.NoError(t, m.Validate())
	}
	for _, m := range []Mode{ModeLearn, "", "LEARN_1"} {
		assert.ErrorIs(t, m.Validate(), ErrType)
	}
}

func TestSettings_Validate(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	k := func(v int) *int { return &v }

	assert.NoError(t, Settings{}.Validate())
	assert.NoError(t, Settings{LearningRate: f(0.5), Accuracy: f(0.9), K: k(3)}.Validate())

	assert.ErrorIs(t, Settings{LearningRate: f(1)}.Validate(), ErrType)
	assert.ErrorIs(t, Settings{DiscountFactor: f(0)}.Validate(), ErrType)
	assert.ErrorIs(t, Settings{Accuracy: f(0)}.Validate(), ErrRange)
	assert.ErrorIs(t, Settings{Accuracy: f(math.NaN())}.Validate(), ErrType)
	assert.ErrorIs(t, Settings{DefaultQ: f(math.Inf(-1))}.Validate(), ErrType)
	assert.ErrorIs(t, Settings{Bandwidth: f(math.NaN())}.Validate(), ErrType)
	assert.ErrorIs(t, Settings{K: k(0)}.Validate(), ErrType)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNone, KindOf(nil))
	assert.Equal(t, KindNone, KindOf(errors.New("boom")))
	assert.Equal(t, KindType, KindOf(fmt.Errorf("%w: bad", ErrType)))
	assert.Equal(t, KindMismatch, KindOf(fmt.Errorf("wrapped: %w", fmt.Errorf("%w: bad", ErrMismatch))))
	assert.Equal(t, KindMode, KindOf(ErrMode))
	assert.Equal(t, KindRange, KindOf(ErrRange))
}

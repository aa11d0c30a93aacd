package learner

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/qagent/internal/estimator"
	"github.com/cartridge/qagent/internal/policy"
	"github.com/cartridge/qagent/internal/types"
)

// recordingEstimator delegates to a KNN without exposing its batch interface
// and records every call the learner makes.
type recordingEstimator struct {
	knn      *estimator.KNN
	typ      estimator.Type
	queries  int
	defaults []float64
	clears   int
	adds     int
}

func newRecordingEstimator() *recordingEstimator {
	return &recordingEstimator{knn: estimator.NewKNN()}
}

func (r *recordingEstimator) Query(vector []float64, defaultValue float64) float64 {
	r.queries++
	r.defaults = append(r.defaults, defaultValue)
	return r.knn.Query(vector, defaultValue)
}

func (r *recordingEstimator) AddPoint(vector []float64) {
	r.adds++
	r.knn.AddPoint(vector)
}

func (r *recordingEstimator) Clear(data [][]float64) {
	r.clears++
	r.knn.Clear(data)
}

func (r *recordingEstimator) SetK(k int)               { r.knn.SetK(k) }
func (r *recordingEstimator) SetType(t estimator.Type) { r.typ = t; r.knn.SetType(t) }
func (r *recordingEstimator) MaxDistance() float64     { return r.knn.MaxDistance() }
func (r *recordingEstimator) SetMaxDistance(d float64) { r.knn.SetMaxDistance(d) }
func (r *recordingEstimator) Data() [][]float64        { return r.knn.Data() }
func (r *recordingEstimator) SetData(data [][]float64) { r.knn.SetData(data) }

func newTestLearner(t *testing.T, stateDims, actionDims []string) (*Learner, *recordingEstimator) {
	t.Helper()
	est := newRecordingEstimator()
	l, err := New(stateDims, actionDims, est, WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	return l, est
}

func TestNew_Defaults(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})

	assert.Equal(t, types.ModeLearn, l.Mode())
	assert.Equal(t, 0.2, l.LearningRate())
	assert.Equal(t, 0.25, l.DiscountFactor())
	assert.Equal(t, 0.9, l.Accuracy())
	assert.Equal(t, 0.0, l.DefaultQ())
	assert.Equal(t, 10.0, l.Bandwidth())
	assert.False(t, l.Started())
	assert.Equal(t, []float64{0, 0, 0}, l.MinimumValues())
	assert.Equal(t, []float64{0, 0, 0}, l.MaximumValues())
	assert.Equal(t, [][]float64{{0, 0, 0}}, l.Data())
	assert.Equal(t, estimator.TypeContinuous, est.typ)
}

func TestNew_NilEstimatorUsesKNN(t *testing.T) {
	l, err := New([]string{"x"}, []string{"v"}, nil)
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{0, 0, 0}}, l.Data())
}

func TestNew_InvalidDimensions(t *testing.T) {
	cases := map[string]struct {
		state, action []string
	}{
		"no state":         {nil, []string{"v"}},
		"no action":        {[]string{"x"}, nil},
		"duplicate state":  {[]string{"x", "x"}, []string{"v"}},
		"duplicate action": {[]string{"x"}, []string{"v", "v"}},
		"empty name":       {[]string{""}, []string{"v"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tc.state, tc.action, nil)
			assert.ErrorIs(t, err, types.ErrType)
		})
	}
}

func TestUpdateQFactors_FirstUpdate(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})
	clearsBefore := est.clears

	err := l.UpdateQFactors(types.State{"x": 2}, types.Action{"v": -1}, 5, types.State{"x": 2})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 0, 5}, l.MaximumValues())
	assert.Equal(t, []float64{0, -1, 0}, l.MinimumValues())
	assert.InDelta(t, 8.0/3.0, l.Bandwidth(), 1e-12)
	assert.Equal(t, [][]float64{{2, -1, 5}}, l.Data())
	assert.True(t, l.Started())
	assert.Equal(t, clearsBefore+1, est.clears)
	assert.Equal(t, 0, est.adds)
}

func TestUpdateQFactors_LaterUpdatesAppend(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})

	for i := 0; i < 5; i++ {
		require.NoError(t, l.UpdateQFactors(types.State{"x": float64(i)}, types.Action{"v": 1}, 1, nil))
		assert.Len(t, l.Data(), i+1)
	}
	assert.Equal(t, 4, est.adds)
}

func TestUpdateQFactors_BoundsMonotonic(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x", "y"}, []string{"v"})
	rng := rand.New(rand.NewSource(3))

	prevMin := l.MinimumValues()
	prevMax := l.MaximumValues()
	for i := 0; i < 50; i++ {
		state := types.State{"x": rng.NormFloat64() * 5, "y": rng.NormFloat64()}
		action := types.Action{"v": rng.Float64()*4 - 2}
		require.NoError(t, l.UpdateQFactors(state, action, rng.NormFloat64(), nil))

		min, max := l.MinimumValues(), l.MaximumValues()
		for j := range min {
			assert.LessOrEqual(t, min[j], prevMin[j])
			assert.GreaterOrEqual(t, max[j], prevMax[j])
		}
		prevMin, prevMax = min, max
	}
}

func TestUpdateQFactors_StoresRawReward(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, l.SetDiscountFactor(0.9))

	require.NoError(t, l.UpdateQFactors(types.State{"x": 1}, types.Action{"v": 1}, 3, types.State{"x": 100}))
	require.NoError(t, l.UpdateQFactors(types.State{"x": 1}, types.Action{"v": 1}, 7, types.State{"x": -100}))

	assert.Equal(t, [][]float64{{1, 1, 3}, {1, 1, 7}}, l.Data())
}

func TestUpdateQFactors_InvalidInputLeavesStateUnchanged(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, l.UpdateQFactors(types.State{"x": 1}, types.Action{"v": 1}, 1, nil))
	before := l.Snapshot()
	adds := est.adds

	cases := []struct {
		name   string
		state  types.State
		action types.Action
		reward float64
		kind   error
	}{
		{"nil state", nil, types.Action{"v": 1}, 1, types.ErrType},
		{"missing state dim", types.State{"y": 1}, types.Action{"v": 1}, 1, types.ErrMismatch},
		{"extra action dim", types.State{"x": 1}, types.Action{"v": 1, "w": 2}, 1, types.ErrMismatch},
		{"nil action", types.State{"x": 1}, nil, 1, types.ErrType},
		{"nan reward", types.State{"x": 1}, types.Action{"v": 1}, math.NaN(), types.ErrType},
		{"inf state", types.State{"x": math.Inf(1)}, types.Action{"v": 1}, 1, types.ErrType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := l.UpdateQFactors(tc.state, tc.action, tc.reward, nil)
			assert.ErrorIs(t, err, tc.kind)
		})
	}

	assert.Equal(t, before, l.Snapshot())
	assert.Equal(t, adds, est.adds)
}

func TestRequestAction_ReturnsDeclaredDimensions(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v", "w"})
	require.NoError(t, l.SetAccuracy(0.5))
	require.NoError(t, l.SetRanges([]float64{0, -1, -2, 0}, []float64{0, 1, 2, 0}))

	for _, mode := range []types.Mode{types.ModeLearn, types.ModeLearn2, types.ModeUse} {
		if mode != types.ModeLearn {
			require.NoError(t, l.SetMode(mode))
		}
		for i := 0; i < 20; i++ {
			action, err := l.RequestAction(types.State{"x": 0.5})
			require.NoError(t, err)
			require.Len(t, action, 2)
			assert.Contains(t, action, "v")
			assert.Contains(t, action, "w")
		}
	}
}

func TestRequestAction_MissingDimension(t *testing.T) {
	l, est := newTestLearner(t, []string{"x", "y"}, []string{"v"})
	require.NoError(t, l.UpdateQFactors(types.State{"x": 1, "y": 2}, types.Action{"v": 1}, 1, nil))
	before := l.Snapshot()
	queries := est.queries

	_, err := l.RequestAction(types.State{"x": 1})

	assert.ErrorIs(t, err, types.ErrMismatch)
	assert.Equal(t, types.KindMismatch, types.KindOf(err))
	assert.Equal(t, before, l.Snapshot())
	assert.Equal(t, queries, est.queries)
}

func TestRequestAction_NilState(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})

	_, err := l.RequestAction(nil)
	assert.ErrorIs(t, err, types.ErrType)
}

func TestRequestAction_Learn1Rejected(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, l.SetMode(types.ModeLearn1))

	action, err := l.RequestAction(types.State{"x": 0})

	assert.ErrorIs(t, err, types.ErrMode)
	assert.Nil(t, action)
	assert.Equal(t, 0, est.queries)
}

func TestRequestAction_UseModeNeverExplores(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v", "w"})
	require.NoError(t, l.SetLearningRate(0.99))
	require.NoError(t, l.SetAccuracy(0.5))
	require.NoError(t, l.SetMode(types.ModeUse))

	perDecision := policy.QueriesPerDecision(2, 0.5)
	for i := 0; i < 25; i++ {
		before := est.queries
		_, err := l.RequestAction(types.State{"x": 0})
		require.NoError(t, err)
		assert.Equal(t, perDecision, est.queries-before)
	}
}

func TestRequestAction_QueryCount(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v", "w"})
	require.NoError(t, l.SetAccuracy(0.75))
	require.NoError(t, l.SetMode(types.ModeUse))

	_, err := l.RequestAction(types.State{"x": 0})
	require.NoError(t, err)

	assert.Equal(t, (2*2+2)*4, est.queries)
}

func TestRequestAction_ExploreWithinBounds(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, l.SetLearningRate(0.99))
	require.NoError(t, l.SetAccuracy(0.5))
	require.NoError(t, l.SetRanges([]float64{0, 2, 0}, []float64{0, 3, 0}))

	explored := 0
	for i := 0; i < 50; i++ {
		before := est.queries
		action, err := l.RequestAction(types.State{"x": 0})
		require.NoError(t, err)
		if est.queries == before {
			explored++
			assert.GreaterOrEqual(t, action["v"], 2.0)
			assert.LessOrEqual(t, action["v"], 3.0)
		}
	}
	assert.Positive(t, explored)
}

func TestRequestAction_PassesDefaultQ(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, l.SetDefaultQ(-4))
	require.NoError(t, l.SetAccuracy(0.5))
	require.NoError(t, l.SetMode(types.ModeUse))

	_, err := l.RequestAction(types.State{"x": 0})
	require.NoError(t, err)

	require.NotEmpty(t, est.defaults)
	for _, d := range est.defaults {
		assert.Equal(t, -4.0, d)
	}
}

func TestRequestAction_ExploitsLearnedValues(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, l.UpdateQFactors(types.State{"x": 0}, types.Action{"v": 0}, 0, nil))
	require.NoError(t, l.UpdateQFactors(types.State{"x": 0}, types.Action{"v": 1}, 10, nil))
	require.NoError(t, l.SetAccuracy(0.5))
	require.NoError(t, l.SetMode(types.ModeUse))

	action, err := l.RequestAction(types.State{"x": 0})
	require.NoError(t, err)

	assert.Greater(t, action["v"], 0.5)
}

func TestSetters_Boundaries(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})

	assert.ErrorIs(t, l.SetAccuracy(0), types.ErrRange)
	assert.ErrorIs(t, l.SetAccuracy(1), types.ErrRange)
	assert.ErrorIs(t, l.SetAccuracy(math.NaN()), types.ErrType)
	assert.ErrorIs(t, l.SetLearningRate(0), types.ErrType)
	assert.ErrorIs(t, l.SetLearningRate(1), types.ErrType)
	assert.ErrorIs(t, l.SetDiscountFactor(0), types.ErrType)
	assert.ErrorIs(t, l.SetDiscountFactor(1), types.ErrType)

	assert.Equal(t, 0.9, l.Accuracy())
	assert.Equal(t, 0.2, l.LearningRate())
	assert.Equal(t, 0.25, l.DiscountFactor())

	require.NoError(t, l.SetAccuracy(0.5))
	require.NoError(t, l.SetLearningRate(0.01))
	require.NoError(t, l.SetDiscountFactor(0.99))
	assert.Equal(t, 0.5, l.Accuracy())
	assert.Equal(t, 0.01, l.LearningRate())
	assert.Equal(t, 0.99, l.DiscountFactor())
}

func TestSetMode(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})

	for _, mode := range []types.Mode{types.ModeLearn, "train", ""} {
		assert.ErrorIs(t, l.SetMode(mode), types.ErrType)
		assert.Equal(t, types.ModeLearn, l.Mode())
	}
	for _, mode := range []types.Mode{types.ModeLearn1, types.ModeLearn2, types.ModeUse} {
		require.NoError(t, l.SetMode(mode))
		assert.Equal(t, mode, l.Mode())
	}
}

func TestSetRanges(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})

	assert.ErrorIs(t, l.SetRanges(nil, []float64{1}), types.ErrType)
	assert.ErrorIs(t, l.SetMinimumValues(nil), types.ErrType)
	assert.ErrorIs(t, l.SetMaximumValues(nil), types.ErrType)
	assert.Equal(t, []float64{0, 0, 0}, l.MinimumValues())

	// lengths are not checked
	require.NoError(t, l.SetMinimumValues([]float64{-1}))
	require.NoError(t, l.SetMaximumValues([]float64{1, 2, 3, 4}))
	assert.Equal(t, []float64{-1}, l.MinimumValues())
	assert.Equal(t, []float64{1, 2, 3, 4}, l.MaximumValues())
}

func TestEstimatorDelegations(t *testing.T) {
	l, est := newTestLearner(t, []string{"x"}, []string{"v"})

	assert.ErrorIs(t, l.SetK(0), types.ErrType)
	require.NoError(t, l.SetK(2))
	assert.Equal(t, 2, est.knn.K())
	assert.Equal(t, 2, l.K())

	assert.ErrorIs(t, l.SetBandwidth(math.Inf(1)), types.ErrType)
	require.NoError(t, l.SetBandwidth(0.5))
	assert.Equal(t, 0.5, est.MaxDistance())

	assert.ErrorIs(t, l.SetDefaultQ(math.NaN()), types.ErrType)
	require.NoError(t, l.SetDefaultQ(3))
	assert.Equal(t, 3.0, l.DefaultQ())

	assert.ErrorIs(t, l.LoadData(nil), types.ErrType)
	require.NoError(t, l.LoadData([][]float64{{1, 2, 3}, {4, 5, 6}}))
	assert.Equal(t, [][]float64{{1, 2, 3}, {4, 5, 6}}, l.Data())
}

func TestSetAction(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	state := types.State{"x": 1}
	action := types.Action{"v": 2}

	assert.ErrorIs(t, l.SetAction(state, action), types.ErrMode)

	require.NoError(t, l.SetMode(types.ModeLearn1))
	before := l.Snapshot()
	assert.NoError(t, l.SetAction(state, action))
	assert.Equal(t, before, l.Snapshot())

	assert.ErrorIs(t, l.SetAction(types.State{"y": 1}, action), types.ErrMismatch)
	assert.ErrorIs(t, l.SetAction(state, nil), types.ErrType)

	require.NoError(t, l.SetMode(types.ModeUse))
	assert.ErrorIs(t, l.SetAction(state, types.Action{}), types.ErrMismatch)
}

func TestConfigure_AllOrNothing(t *testing.T) {
	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	lr, acc, k := 0.5, 1.5, 4

	err := l.Configure(types.Settings{LearningRate: &lr, Accuracy: &acc, K: &k})

	assert.ErrorIs(t, err, types.ErrRange)
	assert.Equal(t, 0.2, l.LearningRate())
	assert.Equal(t, 0, l.K())

	acc = 0.6
	bw := 2.5
	require.NoError(t, l.Configure(types.Settings{LearningRate: &lr, Accuracy: &acc, K: &k, Bandwidth: &bw}))
	assert.Equal(t, 0.5, l.LearningRate())
	assert.Equal(t, 0.6, l.Accuracy())
	assert.Equal(t, 4, l.K())
	assert.Equal(t, 2.5, l.Bandwidth())
}

func TestSnapshotRestore(t *testing.T) {
	src, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, src.UpdateQFactors(types.State{"x": 2}, types.Action{"v": -1}, 5, nil))
	require.NoError(t, src.SetMode(types.ModeUse))
	require.NoError(t, src.SetK(5))
	snap := src.Snapshot()

	dst, est := newTestLearner(t, []string{"x"}, []string{"v"})
	require.NoError(t, dst.Restore(snap))

	assert.Equal(t, snap, dst.Snapshot())
	assert.True(t, dst.Started())
	assert.Equal(t, 5, est.knn.K())

	// restored learner appends rather than resetting
	require.NoError(t, dst.UpdateQFactors(types.State{"x": 0}, types.Action{"v": 0}, 1, nil))
	assert.Len(t, dst.Data(), 2)
}

func TestRestore_Rejected(t *testing.T) {
	src, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	snap := src.Snapshot()

	other, _ := newTestLearner(t, []string{"y"}, []string{"v"})
	assert.ErrorIs(t, other.Restore(snap), types.ErrMismatch)

	l, _ := newTestLearner(t, []string{"x"}, []string{"v"})
	before := l.Snapshot()

	bad := snap
	bad.Mode = "train"
	assert.ErrorIs(t, l.Restore(bad), types.ErrType)

	bad = snap
	bad.Accuracy = 1
	assert.ErrorIs(t, l.Restore(bad), types.ErrRange)

	bad = snap
	bad.Data = [][]float64{{math.NaN(), 0, 0}}
	assert.ErrorIs(t, l.Restore(bad), types.ErrType)

	assert.Equal(t, before, l.Snapshot())
}

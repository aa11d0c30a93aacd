// Package estimator defines the nearest-neighbour regression contract the
// agent learns through, plus an in-memory kNN implementation.
package estimator

// Type selects how an estimator aggregates neighbour outputs.
type Type string

const (
	// TypeContinuous returns a proximity-weighted average of neighbour outputs.
	TypeContinuous Type = "continuous"
	// TypeDiscrete returns the most frequent neighbour output.
	TypeDiscrete Type = "discrete"
)

// Estimator stores joined vectors and answers proximity-weighted value queries.
// Stored vectors carry their output in the last slot; query vectors omit it.
type Estimator interface {
	// Query estimates the value at vector, or returns defaultValue when no
	// stored point lies within MaxDistance.
	Query(vector []float64, defaultValue float64) float64

	// AddPoint appends one point to the dataset.
	AddPoint(vector []float64)

	// Clear replaces the entire dataset.
	Clear(data [][]float64)

	// SetK sets the neighbour count used in estimation.
	SetK(k int)

	// SetType selects the estimator mode.
	SetType(t Type)

	// MaxDistance returns the neighbour-inclusion radius.
	MaxDistance() float64

	// SetMaxDistance sets the neighbour-inclusion radius.
	SetMaxDistance(d float64)

	// Data returns the raw dataset.
	Data() [][]float64

	// SetData loads a raw dataset.
	SetData(data [][]float64)
}

// BatchQuerier is implemented by estimators that can answer several queries
// against one consistent view of their dataset.
type BatchQuerier interface {
	QueryBatch(vectors [][]float64, defaultValue float64) []float64
}

// QueryAll answers every vector, batching when est supports it.
func QueryAll(est Estimator, vectors [][]float64, defaultValue float64) []float64 {
	if bq, ok := est.(BatchQuerier); ok {
		return bq.QueryBatch(vectors, defaultValue)
	}
	results := make([]float64, len(vectors))
	for i, v := range vectors {
		results[i] = est.Query(v, defaultValue)
	}
	return results
}

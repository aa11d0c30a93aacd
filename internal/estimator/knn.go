package estimator

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultK is the neighbour count of a new KNN.
	DefaultK = 3
	// DefaultMaxDistance is the neighbour-inclusion radius of a new KNN.
	DefaultMaxDistance = 10.0
)

// KNN is an in-memory k-nearest-neighbour regressor. Every stored vector
// holds its inputs followed by a single output value.
//
// KNN is safe for concurrent use; QueryBatch answers all vectors under one
// read lock.
type KNN struct {
	mu          sync.RWMutex
	data        [][]float64
	k           int
	typ         Type
	maxDistance float64
	capacity    int // 0 keeps every point
}

// Option configures a KNN.
type Option func(*KNN)

// WithK sets the initial neighbour count.
func WithK(k int) Option {
	return func(n *KNN) {
		if k > 0 {
			n.k = k
		}
	}
}

// WithCapacity bounds the dataset; the oldest points are evicted first.
func WithCapacity(capacity int) Option {
	return func(n *KNN) {
		if capacity > 0 {
			n.capacity = capacity
		}
	}
}

// WithMaxDistance sets the initial neighbour-inclusion radius.
func WithMaxDistance(d float64) Option {
	return func(n *KNN) { n.maxDistance = d }
}

// WithType sets the initial aggregation mode.
func WithType(t Type) Option {
	return func(n *KNN) { n.typ = t }
}

// NewKNN creates an empty KNN estimator.
func NewKNN(opts ...Option) *KNN {
	n := &KNN{
		data:        make([][]float64, 0),
		k:           DefaultK,
		typ:         TypeContinuous,
		maxDistance: DefaultMaxDistance,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Query implements Estimator.Query
func (n *KNN) Query(vector []float64, defaultValue float64) float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.query(vector, defaultValue)
}

// QueryBatch implements BatchQuerier.QueryBatch
func (n *KNN) QueryBatch(vectors [][]float64, defaultValue float64) []float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()

	results := make([]float64, len(vectors))
	for i, v := range vectors {
		results[i] = n.query(v, defaultValue)
	}
	return results
}

// AddPoint implements Estimator.AddPoint
func (n *KNN) AddPoint(vector []float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.data = append(n.data, append([]float64(nil), vector...))
	n.evictIfNeeded()
}

// Clear implements Estimator.Clear
func (n *KNN) Clear(data [][]float64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.data = copyData(data)
	n.evictIfNeeded()
}

// SetK implements Estimator.SetK
func (n *KNN) SetK(k int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if k > 0 {
		n.k = k
	}
}

// K returns the neighbour count.
func (n *KNN) K() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.k
}

// SetType implements Estimator.SetType
func (n *KNN) SetType(t Type) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.typ = t
}

// Type returns the aggregation mode.
func (n *KNN) Type() Type {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.typ
}

// MaxDistance implements Estimator.MaxDistance
func (n *KNN) MaxDistance() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.maxDistance
}

// SetMaxDistance implements Estimator.SetMaxDistance
func (n *KNN) SetMaxDistance(d float64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.maxDistance = d
}

// Data implements Estimator.Data
func (n *KNN) Data() [][]float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return copyData(n.data)
}

// SetData implements Estimator.SetData
func (n *KNN) SetData(data [][]float64) {
	n.Clear(data)
}

// Len returns the number of stored points.
func (n *KNN) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.data)
}

// Helper methods

type neighbour struct {
	distance float64
	output   float64
}

func (n *KNN) query(vector []float64, defaultValue float64) float64 {
	neighbours := n.neighbours(vector)
	if len(neighbours) == 0 {
		return defaultValue
	}
	if n.typ == TypeDiscrete {
		return vote(neighbours)
	}
	return weightedMean(neighbours)
}

// neighbours returns up to k stored points within maxDistance of vector,
// nearest first. Points whose input width differs from vector are skipped.
func (n *KNN) neighbours(vector []float64) []neighbour {
	var found []neighbour
	for _, point := range n.data {
		if len(point) != len(vector)+1 {
			continue
		}
		d := floats.Distance(vector, point[:len(vector)], 2)
		if d <= n.maxDistance {
			found = append(found, neighbour{distance: d, output: point[len(vector)]})
		}
	}
	sort.SliceStable(found, func(i, j int) bool {
		return found[i].distance < found[j].distance
	})
	if len(found) > n.k {
		found = found[:n.k]
	}
	return found
}

// weightedMean weights each neighbour by exp(1-(d/best)^2), so the nearest
// point has weight 1 and farther points decay. Exact matches are averaged on
// their own.
func weightedMean(neighbours []neighbour) float64 {
	best := neighbours[0].distance
	if best == 0 {
		var sum float64
		var count int
		for _, nb := range neighbours {
			if nb.distance == 0 {
				sum += nb.output
				count++
			}
		}
		return sum / float64(count)
	}

	var numerator, denominator float64
	for _, nb := range neighbours {
		ratio := nb.distance / best
		weight := math.Exp(1 - ratio*ratio)
		numerator += nb.output * weight
		denominator += weight
	}
	return numerator / denominator
}

// vote returns the most frequent output; ties go to the nearest.
func vote(neighbours []neighbour) float64 {
	counts := make(map[float64]int, len(neighbours))
	for _, nb := range neighbours {
		counts[nb.output]++
	}
	best := neighbours[0].output
	for _, nb := range neighbours {
		if counts[nb.output] > counts[best] {
			best = nb.output
		}
	}
	return best
}

func (n *KNN) evictIfNeeded() {
	if n.capacity == 0 || len(n.data) <= n.capacity {
		return
	}
	kept := make([][]float64, n.capacity)
	copy(kept, n.data[len(n.data)-n.capacity:])
	n.data = kept
}

func copyData(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, point := range data {
		out[i] = append([]float64(nil), point...)
	}
	return out
}

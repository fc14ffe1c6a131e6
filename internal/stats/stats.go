// Package stats provides small stateful summaries over a stream of numbers
// and scoped timers built on them.
package stats

import "math"

// #region accumulator
// Accumulator is the common surface of every summary in this package.
// Summarize reports ok=false when no value is available yet.
type Accumulator interface {
	Observe(x float64)
	Summarize() (float64, bool)
}
// #endregion accumulator

// #region reduce
// Add and Prod are the stock reducers.
func Add(a, b float64) float64  { return a + b }
func Prod(a, b float64) float64 { return a * b }

// Reduce folds every appended value into a single accumulate.
type Reduce struct {
	fn  func(a, b float64) float64
	acc float64
}

// NewReduce creates a Reduce starting at seed.
func NewReduce(fn func(a, b float64) float64, seed float64) *Reduce {
	if fn == nil {
		fn = Add
	}
	return &Reduce{fn: fn, acc: seed}
}

// Sum returns a Reduce that adds values starting from zero.
func Sum() *Reduce { return NewReduce(Add, 0) }

// Product returns a Reduce that multiplies values starting from one.
func Product() *Reduce { return NewReduce(Prod, 1) }

// Append folds x in and returns the new accumulate.
func (r *Reduce) Append(x float64) float64 {
	r.acc = r.fn(r.acc, x)
	return r.acc
}

func (r *Reduce) Observe(x float64) { r.Append(x) }

// Summarize returns the accumulate. It does not mutate state.
func (r *Reduce) Summarize() (float64, bool) { return r.acc, true }
// #endregion reduce

// #region max
// Max tracks the running maximum.
type Max struct {
	current float64
	seen    bool
}

// NewMax creates an empty Max.
func NewMax() *Max { return &Max{current: math.Inf(-1)} }

// Append reports whether x strictly exceeds every previously appended value.
// NaN is ignored.
func (m *Max) Append(x float64) bool {
	if math.IsNaN(x) {
		return false
	}
	if !m.seen || x > m.current {
		m.current = x
		m.seen = true
		return true
	}
	return false
}

func (m *Max) Observe(x float64) { m.Append(x) }

func (m *Max) Summarize() (float64, bool) { return m.current, m.seen }
// #endregion max

// #region average
// Average reports the mean of the values appended since the last Summarize.
// Summarize resets the running sum so each read starts a new window; reading
// an empty window returns the previous mean again.
type Average struct {
	sum    float64
	count  int
	mean   float64
	cached bool
}

// NewAverage creates an empty Average.
func NewAverage() *Average { return &Average{} }

func (a *Average) Append(x float64) {
	a.sum += x
	a.count++
}

func (a *Average) Observe(x float64) { a.Append(x) }

// Summarize returns the window mean and resets the window. With an empty
// window it returns the cached mean, or ok=false if there has never been one.
func (a *Average) Summarize() (float64, bool) {
	if a.count == 0 {
		return a.mean, a.cached
	}
	a.mean = a.sum / float64(a.count)
	a.cached = true
	a.sum = 0
	a.count = 0
	return a.mean, true
}

// Count returns the number of values in the open window.
func (a *Average) Count() int { return a.count }

// Reset drops the open window without touching the cached mean.
func (a *Average) Reset() {
	a.sum = 0
	a.count = 0
}
// #endregion average

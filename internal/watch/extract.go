package watch

import (
	"errors"
	"fmt"
)

// #region errors
var (
	ErrNotNumeric      = errors.New("batch output is not numeric")
	ErrKeyNotFound     = errors.New("key not found in batch output")
	ErrIndexOutOfRange = errors.New("index out of range in batch output")
)
// #endregion errors

// #region extractor
// Extractor turns one raw batch output into the scalar being watched.
type Extractor interface {
	Extract(output any) (float64, error)
}

type identity struct{}

// Identity treats the batch output itself as the value.
func Identity() Extractor { return identity{} }

func (identity) Extract(output any) (float64, error) { return toFloat(output) }

func (identity) String() string { return "identity" }

type keyLookup string

// Key reads output[name] from a map-shaped batch output.
func Key(name string) Extractor { return keyLookup(name) }

func (k keyLookup) Extract(output any) (float64, error) {
	switch m := output.(type) {
	case map[string]float64:
		v, ok := m[string(k)]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, string(k))
		}
		return v, nil
	case map[string]any:
		v, ok := m[string(k)]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, string(k))
		}
		return toFloat(v)
	}
	return 0, fmt.Errorf("%w: key %q on %T", ErrNotNumeric, string(k), output)
}

func (k keyLookup) String() string { return fmt.Sprintf("key(%s)", string(k)) }

type indexLookup int

// Index reads output[i] from a slice-shaped batch output.
func Index(i int) Extractor { return indexLookup(i) }

func (i indexLookup) Extract(output any) (float64, error) {
	idx := int(i)
	switch s := output.(type) {
	case []float64:
		if idx < 0 || idx >= len(s) {
			return 0, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, len(s))
		}
		return s[idx], nil
	case []any:
		if idx < 0 || idx >= len(s) {
			return 0, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, idx, len(s))
		}
		return toFloat(s[idx])
	}
	return 0, fmt.Errorf("%w: index %d on %T", ErrNotNumeric, idx, output)
}

func (i indexLookup) String() string { return fmt.Sprintf("index(%d)", int(i)) }

// Func is a caller-supplied extraction rule.
type Func func(output any) (float64, error)

// Custom wraps fn as an Extractor. Errors from fn are returned unchanged.
func Custom(fn Func) Extractor { return fn }

func (f Func) Extract(output any) (float64, error) { return f(output) }
// #endregion extractor

// #region helpers
func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int8:
		return float64(n), nil
	case int16:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint8:
		return float64(n), nil
	case uint16:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
}
// #endregion helpers

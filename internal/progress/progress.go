// Package progress provides the progress callback used by pipeline runs.
package progress

import (
	"math"
	"sync"
)

// Func receives a status message and the fraction of the run completed, in [0, 1].
type Func func(message string, fraction float64)

// Nop discards progress reports.
func Nop(string, float64) {}

// Serialize wraps fn so it is never invoked concurrently with itself, the fraction
// is clamped to [0, 1] and never moves backwards. A nil fn yields Nop.
func Serialize(fn Func) Func {
	if fn == nil {
		return Nop
	}
	var (
		mu   sync.Mutex
		last float64
	)
	return func(message string, fraction float64) {
		mu.Lock()
		defer mu.Unlock()
		fraction = clamp(fraction)
		if fraction < last {
			fraction = last
		}
		last = fraction
		fn(message, fraction)
	}
}

// Scale maps a nested step's [0, 1] progress onto [start, end] of fn,
// prefixing every message.
func Scale(fn Func, start, end float64, prefix string) Func {
	if fn == nil {
		return Nop
	}
	return func(message string, fraction float64) {
		fn(prefix+message, start+(end-start)*clamp(fraction))
	}
}

// Step returns the fraction for item i (0-based) of n inside [start, end].
func Step(start, end float64, i, n int) float64 {
	if n <= 0 {
		return start
	}
	return start + (end-start)*float64(i)/float64(n)
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}

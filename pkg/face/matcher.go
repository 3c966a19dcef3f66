package face

import (
	"fmt"
	"math"
)

// DefaultThreshold is the Euclidean distance below which two descriptors
// are considered the same person.
const DefaultThreshold = 0.6

// Distance returns the Euclidean distance between two descriptors.
func Distance(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("descriptor length mismatch: %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum), nil
}

// Matcher decides whether two descriptors belong to the same person.
type Matcher struct {
	Threshold float64
}

// NewMatcher builds a matcher, falling back to DefaultThreshold when the
// provided value is not positive.
func NewMatcher(threshold float64) Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Matcher{Threshold: threshold}
}

// Match reports whether the distance between the descriptors is strictly
// below the threshold. A distance exactly at the threshold is a non-match.
func (m Matcher) Match(a, b []float32) (bool, float64, error) {
	d, err := Distance(a, b)
	if err != nil {
		return false, 0, err
	}
	return d < m.Threshold, d, nil
}

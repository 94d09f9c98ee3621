// Package biometric compares face embeddings.
package biometric

import (
	"fmt"
	"math"
)

// DefaultThreshold is the distance below which two embeddings are treated as
// the same person.
const DefaultThreshold = 0.8

// Distance returns the Euclidean distance between a and b. It panics when the
// vectors differ in length; callers validate embeddings before comparing.
func Distance(a, b []float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("biometric: embedding length mismatch: %d != %d", len(a), len(b)))
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

type Verifier struct {
	threshold float64
}

func NewVerifier(threshold float64) (*Verifier, error) {
	if threshold <= 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("biometric: invalid threshold %v", threshold)
	}
	return &Verifier{threshold: threshold}, nil
}

func (v *Verifier) Threshold() float64 {
	return v.threshold
}

// IsMatch is true iff the distance is strictly below the threshold.
func (v *Verifier) IsMatch(live, enrolled []float64) bool {
	_, ok := v.Compare(live, enrolled)
	return ok
}

// Compare returns the distance together with the match decision.
func (v *Verifier) Compare(live, enrolled []float64) (float64, bool) {
	d := Distance(live, enrolled)
	return d, d < v.threshold
}

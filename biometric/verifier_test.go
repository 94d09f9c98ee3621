package biometric

import (
	"math"
	"math/rand"
	"testing"
)

func vectorAt(n int, idx int, value float64) []float64 {
	v := make([]float64, n)
	v[idx] = value
	return v
}

func TestDistance_Symmetric(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		a := make([]float64, 512)
		b := make([]float64, 512)
		for j := range a {
			a[j] = r.NormFloat64()
			b[j] = r.NormFloat64()
		}
		if Distance(a, b) != Distance(b, a) {
			t.Fatalf("distance is not symmetric for pair %d", i)
		}
	}
}

func TestDistance_Euclidean(t *testing.T) {
	got := Distance([]float64{0, 0}, []float64{3, 4})
	if math.Abs(got-5) > 1e-12 {
		t.Errorf("Distance = %v, want 5", got)
	}
	if d := Distance([]float64{1, 2, 3}, []float64{1, 2, 3}); d != 0 {
		t.Errorf("Distance of identical vectors = %v, want 0", d)
	}
}

func TestDistance_MismatchedLengthsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for mismatched lengths")
		}
	}()
	Distance(make([]float64, 512), make([]float64, 128))
}

func TestVerifier_StrictThreshold(t *testing.T) {
	v, err := NewVerifier(0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	enrolled := make([]float64, 512)

	if !v.IsMatch(vectorAt(512, 0, 0.79), enrolled) {
		t.Error("distance 0.79 with threshold 0.8 should match")
	}
	if v.IsMatch(vectorAt(512, 0, 0.80), enrolled) {
		t.Error("distance 0.80 with threshold 0.8 must not match")
	}
	if v.IsMatch(vectorAt(512, 3, 1.5), enrolled) {
		t.Error("distance 1.5 should not match")
	}

	d, ok := v.Compare(vectorAt(512, 10, 0.5), enrolled)
	if !ok || math.Abs(d-0.5) > 1e-12 {
		t.Errorf("Compare = (%v, %v), want (0.5, true)", d, ok)
	}
}

func TestNewVerifier_RejectsInvalidThreshold(t *testing.T) {
	for _, th := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := NewVerifier(th); err == nil {
			t.Errorf("NewVerifier(%v) returned no error", th)
		}
	}
}

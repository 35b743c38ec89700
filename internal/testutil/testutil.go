// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertInDelta checks that got is within delta of want.
func AssertInDelta(t *testing.T, got, want, delta float64) {
	t.Helper()
	if math.IsNaN(got) || math.Abs(got-want) > delta {
		t.Errorf("value = %v, want %v (±%v)", got, want, delta)
	}
}

// AssertVecInDelta checks that every element of got is within delta of
// the corresponding element of want.
func AssertVecInDelta(t *testing.T, got, want mat.Vector, delta float64) {
	t.Helper()
	if got.Len() != want.Len() {
		t.Fatalf("vector length = %d, want %d", got.Len(), want.Len())
	}
	for i := 0; i < got.Len(); i++ {
		g, w := got.AtVec(i), want.AtVec(i)
		if math.IsNaN(g) || math.Abs(g-w) > delta {
			t.Errorf("element %d = %v, want %v (±%v)", i, g, w, delta)
		}
	}
}

// AssertFinite fails if v is NaN or infinite.
func AssertFinite(t *testing.T, v float64) {
	t.Helper()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Errorf("value = %v, want finite", v)
	}
}

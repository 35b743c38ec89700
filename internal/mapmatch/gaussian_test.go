package mapmatch

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestGaussianLogProbStandardNormal(t *testing.T) {
	mean := mat.NewVecDense(2, nil)
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	g := NewGaussian(mean, cov)

	// At the mean: -log(2*pi) for a standard bivariate normal.
	got := g.LogProb(mat.NewVecDense(2, nil))
	want := -math.Log(2 * math.Pi)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("LogProb(mean) = %v, want %v", got, want)
	}

	// One unit away in one axis: down by 0.5.
	got = g.LogProb(mat.NewVecDense(2, []float64{1, 0}))
	if math.Abs(got-(want-0.5)) > 1e-9 {
		t.Errorf("LogProb(unit) = %v, want %v", got, want-0.5)
	}
}

func TestGaussianLogProbSingularCovariance(t *testing.T) {
	g := NewGaussian(mat.NewVecDense(2, nil), mat.NewSymDense(2, nil))
	got := g.LogProb(mat.NewVecDense(2, []float64{0, 0}))
	if math.IsNaN(got) {
		t.Error("LogProb on singular covariance returned NaN")
	}
}

func TestGaussianCloneIndependence(t *testing.T) {
	g := NewGaussian(mat.NewVecDense(2, []float64{1, 2}), mat.NewSymDense(2, []float64{4, 0, 0, 9}))
	c := g.Clone()
	c.SetMean(mat.NewVecDense(2, []float64{7, 7}))
	if g.Mean().AtVec(0) != 1 {
		t.Error("clone mean write leaked into original")
	}
}

func TestGaussianAccessorsCopy(t *testing.T) {
	g := NewGaussian(mat.NewVecDense(2, []float64{1, 2}), mat.NewSymDense(2, []float64{4, 0, 0, 9}))
	m := g.Mean()
	m.SetVec(0, 99)
	if g.Mean().AtVec(0) != 1 {
		t.Error("Mean() exposed internal storage")
	}
	c := g.Cov()
	c.SetSym(0, 0, 99)
	if g.Cov().At(0, 0) != 4 {
		t.Error("Cov() exposed internal storage")
	}
}

func TestSampleNoiseScalesWithCovariance(t *testing.T) {
	rng := testRNG()
	small := NewGaussian(mat.NewVecDense(2, nil), mat.NewSymDense(2, []float64{1e-6, 0, 0, 1e-6}))
	big := NewGaussian(mat.NewVecDense(2, nil), mat.NewSymDense(2, []float64{100, 0, 0, 100}))

	var smallSum, bigSum float64
	for i := 0; i < 200; i++ {
		smallSum += small.SampleNoise(rng).Norm(2)
		bigSum += big.SampleNoise(rng).Norm(2)
	}
	if smallSum >= bigSum {
		t.Errorf("noise magnitudes do not scale: small=%v big=%v", smallSum, bigSum)
	}
}

func TestTruncatedGaussianClampsRoadMean(t *testing.T) {
	mean := mat.NewVecDense(2, []float64{-3, -1})
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})
	tg := NewTruncatedGaussian(mean, cov)
	if got := tg.Mean().AtVec(0); got != 0 {
		t.Errorf("truncated distance = %v, want 0", got)
	}
	if got := tg.Mean().AtVec(1); got != 0 {
		t.Errorf("truncated velocity = %v, want 0", got)
	}

	// Ground-frame beliefs pass through unconstrained.
	gMean := mat.NewVecDense(4, []float64{-3, -1, -2, -4})
	gCov := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		gCov.SetSym(i, i, 1)
	}
	g4 := NewTruncatedGaussian(gMean, gCov)
	if got := g4.Mean().AtVec(0); got != -3 {
		t.Errorf("ground mean clamped: %v, want -3", got)
	}
}

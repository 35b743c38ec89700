package mapmatch

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

const log2Pi = 1.8378770664093453

// covarianceRidge is added to the diagonal when a covariance is too
// close to singular to factor. Zero covariances appear legitimately
// when an on-road particle is re-anchored in ground coordinates before
// a fresh prediction, so factoring must not be a hard failure.
const covarianceRidge = 1e-9

// Gaussian is a multivariate normal belief over a motion state vector
// (2-D road-relative or 4-D ground-frame).
type Gaussian struct {
	mean *mat.VecDense
	cov  *mat.SymDense
}

// NewGaussian returns a Gaussian with the given mean and covariance.
// Both are cloned; the Gaussian never aliases caller storage.
func NewGaussian(mean *mat.VecDense, cov *mat.SymDense) *Gaussian {
	if mean.Len() != cov.SymmetricDim() {
		panic("mapmatch: gaussian mean/covariance dimension mismatch")
	}
	return &Gaussian{
		mean: mat.VecDenseCopyOf(mean),
		cov:  cloneSym(cov),
	}
}

// Dim returns the dimensionality of the distribution.
func (g *Gaussian) Dim() int { return g.mean.Len() }

// Mean returns a copy of the mean vector.
func (g *Gaussian) Mean() *mat.VecDense { return mat.VecDenseCopyOf(g.mean) }

// Cov returns a copy of the covariance matrix.
func (g *Gaussian) Cov() *mat.SymDense { return cloneSym(g.cov) }

// SetMean replaces the mean with a copy of m.
func (g *Gaussian) SetMean(m *mat.VecDense) {
	if m.Len() != g.Dim() {
		panic("mapmatch: gaussian mean dimension mismatch")
	}
	g.mean = mat.VecDenseCopyOf(m)
}

// Clone returns an independent copy of the Gaussian.
func (g *Gaussian) Clone() *Gaussian {
	return &Gaussian{mean: mat.VecDenseCopyOf(g.mean), cov: cloneSym(g.cov)}
}

// LogProb returns the log density of x under the Gaussian. A singular
// covariance is ridge-regularised before factoring; if it still fails
// to factor, -Inf is returned and the caller's weighting handles it.
func (g *Gaussian) LogProb(x *mat.VecDense) float64 {
	n := g.Dim()
	if x.Len() != n {
		return math.Inf(-1)
	}
	var chol mat.Cholesky
	if !chol.Factorize(g.cov) {
		ridged := cloneSym(g.cov)
		for i := 0; i < n; i++ {
			ridged.SetSym(i, i, ridged.At(i, i)+covarianceRidge)
		}
		if !chol.Factorize(ridged) {
			return math.Inf(-1)
		}
	}

	diff := mat.NewVecDense(n, nil)
	diff.SubVec(x, g.mean)
	solved := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(solved, diff); err != nil {
		return math.Inf(-1)
	}
	mahalanobisSq := mat.Dot(diff, solved)
	return -0.5 * (float64(n)*log2Pi + chol.LogDet() + mahalanobisSq)
}

// SampleNoise draws a zero-mean sample with the Gaussian's covariance.
// Used for process-noise injection; draws come from the filter's shared
// random source so runs reproduce.
func (g *Gaussian) SampleNoise(rng *rand.Rand) *mat.VecDense {
	n := g.Dim()
	var chol mat.Cholesky
	if !chol.Factorize(g.cov) {
		ridged := cloneSym(g.cov)
		for i := 0; i < n; i++ {
			ridged.SetSym(i, i, ridged.At(i, i)+covarianceRidge)
		}
		if !chol.Factorize(ridged) {
			return mat.NewVecDense(n, nil)
		}
	}
	var lower mat.TriDense
	chol.LTo(&lower)
	z := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		z.SetVec(i, rng.NormFloat64())
	}
	out := mat.NewVecDense(n, nil)
	out.MulVec(&lower, z)
	return out
}

// TruncatedGaussian is a Gaussian whose mean is clamped to the feasible
// domain of an edge-relative road state: non-negative distance along
// the edge and non-negative (forward) velocity. Ground-frame (4-D)
// beliefs are unconstrained and pass through unchanged.
type TruncatedGaussian struct {
	Gaussian
}

// NewTruncatedGaussian returns a truncated belief. For 2-D road beliefs
// the mean's distance and velocity components are clamped at zero; 4-D
// ground beliefs are left as they are.
func NewTruncatedGaussian(mean *mat.VecDense, cov *mat.SymDense) *TruncatedGaussian {
	g := NewGaussian(mean, cov)
	if g.Dim() == 2 {
		m := g.Mean()
		m.SetVec(0, math.Max(0, m.AtVec(0)))
		m.SetVec(1, math.Max(0, m.AtVec(1)))
		g.SetMean(m)
	}
	return &TruncatedGaussian{Gaussian: *g}
}

// Clone returns an independent copy of the truncated belief.
func (t *TruncatedGaussian) Clone() *TruncatedGaussian {
	return &TruncatedGaussian{Gaussian: *t.Gaussian.Clone()}
}

func cloneSym(s *mat.SymDense) *mat.SymDense {
	n := s.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	out.CopySym(s)
	return out
}

package mapmatch

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// MotionEstimator is the contract the updater requires of the motion
// predictor: Kalman-style state projection, process-noise injection,
// and derivation of the observation distribution.
type MotionEstimator interface {
	// Predict projects the prior belief one observation interval
	// forward under the model matching the belief's frame (2-D road or
	// 4-D ground).
	Predict(prior *Gaussian) *Gaussian

	// AddProcessNoise returns mean plus a sampled process-noise draw in
	// the frame of mean.
	AddProcessNoise(mean *mat.VecDense, rng *rand.Rand) *mat.VecDense

	// ObservationDistribution returns the 2-D ground-position
	// distribution implied by the predicted state on the given edge
	// (null edge for ground-frame states).
	ObservationDistribution(predicted *Gaussian, edge PathEdge) *Gaussian

	// RoadModelCovariance returns the 2-D process-noise covariance.
	RoadModelCovariance() *mat.SymDense

	// GroundModelCovariance returns the 4-D process-noise covariance.
	GroundModelCovariance() *mat.SymDense
}

// ConstantVelocityModel is the default motion estimator: constant
// velocity dynamics with discretised white-noise acceleration, in a
// 2-D road-relative variant and a 4-D ground-frame variant.
type ConstantVelocityModel struct {
	dt          float64
	obsVariance float64

	roadF *mat.Dense
	roadQ *mat.SymDense

	groundF *mat.Dense
	groundQ *mat.SymDense
}

// NewConstantVelocityModel builds the model for the given observation
// interval and noise parameters.
func NewConstantVelocityModel(p Parameters) *ConstantVelocityModel {
	dt := p.ObsFreq

	roadF := mat.NewDense(2, 2, []float64{
		1, dt,
		0, 1,
	})
	roadQ := whiteNoiseAccel1D(dt, p.RoadNoiseVariance)

	groundF := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	groundQ := whiteNoiseAccel2D(dt, p.GroundNoiseVariance)

	return &ConstantVelocityModel{
		dt:          dt,
		obsVariance: p.ObsVariance,
		roadF:       roadF,
		roadQ:       roadQ,
		groundF:     groundF,
		groundQ:     groundQ,
	}
}

// whiteNoiseAccel1D returns the discretised white-noise acceleration
// covariance for one position/velocity pair:
//
//	Q = q * [dt^4/4  dt^3/2]
//	        [dt^3/2  dt^2  ]
func whiteNoiseAccel1D(dt, q float64) *mat.SymDense {
	out := mat.NewSymDense(2, nil)
	out.SetSym(0, 0, q*dt*dt*dt*dt/4)
	out.SetSym(0, 1, q*dt*dt*dt/2)
	out.SetSym(1, 1, q*dt*dt)
	return out
}

// whiteNoiseAccel2D returns the 4-D ground variant with state order
// [x, y, vx, vy].
func whiteNoiseAccel2D(dt, q float64) *mat.SymDense {
	out := mat.NewSymDense(4, nil)
	for axis := 0; axis < 2; axis++ {
		pos, vel := axis, axis+2
		out.SetSym(pos, pos, q*dt*dt*dt*dt/4)
		out.SetSym(pos, vel, q*dt*dt*dt/2)
		out.SetSym(vel, vel, q*dt*dt)
	}
	return out
}

func (m *ConstantVelocityModel) matrices(dim int) (*mat.Dense, *mat.SymDense) {
	if dim == 2 {
		return m.roadF, m.roadQ
	}
	return m.groundF, m.groundQ
}

// Predict implements MotionEstimator.
func (m *ConstantVelocityModel) Predict(prior *Gaussian) *Gaussian {
	n := prior.Dim()
	f, q := m.matrices(n)

	mean := mat.NewVecDense(n, nil)
	mean.MulVec(f, prior.Mean())

	// P' = F P F^T + Q
	var fp, fpft mat.Dense
	fp.Mul(f, prior.Cov())
	fpft.Mul(&fp, f.T())
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Symmetrise against floating point drift in F P F^T.
			cov.SetSym(i, j, 0.5*(fpft.At(i, j)+fpft.At(j, i))+q.At(i, j))
		}
	}
	return NewGaussian(mean, cov)
}

// AddProcessNoise implements MotionEstimator.
func (m *ConstantVelocityModel) AddProcessNoise(mean *mat.VecDense, rng *rand.Rand) *mat.VecDense {
	n := mean.Len()
	_, q := m.matrices(n)
	noise := NewGaussian(mat.NewVecDense(n, nil), q).SampleNoise(rng)
	out := mat.NewVecDense(n, nil)
	out.AddVec(mean, noise)
	return out
}

// ObservationDistribution implements MotionEstimator. For ground-frame
// states the observation model picks the position block; for on-road
// states the along-edge distance is mapped through the edge geometry
// and the distance variance is spread along the edge tangent.
func (m *ConstantVelocityModel) ObservationDistribution(predicted *Gaussian, edge PathEdge) *Gaussian {
	r := mat.NewSymDense(2, nil)
	r.SetSym(0, 0, m.obsVariance)
	r.SetSym(1, 1, m.obsVariance)

	if edge.IsNull() {
		// H = [I2 0]: mean and covariance of the position block.
		pm := predicted.Mean()
		pc := predicted.Cov()
		mean := mat.NewVecDense(2, []float64{pm.AtVec(0), pm.AtVec(1)})
		cov := mat.NewSymDense(2, nil)
		for i := 0; i < 2; i++ {
			for j := i; j < 2; j++ {
				cov.SetSym(i, j, pc.At(i, j)+r.At(i, j))
			}
		}
		return NewGaussian(mean, cov)
	}

	pm := predicted.Mean()
	pc := predicted.Cov()
	distOnEdge := pm.AtVec(0) - edge.DistToStart
	geomDist := distOnEdge
	if edge.Reversed {
		geomDist = edge.Segment.Length() - distOnEdge
	}
	pos := edge.Segment.Geometry.PointAt(geomDist)
	dir := edge.Segment.Geometry.DirectionAt(geomDist)
	if edge.Reversed {
		dir = dir.Scale(-1)
	}

	mean := mat.NewVecDense(2, []float64{pos.X, pos.Y})
	varDist := pc.At(0, 0)
	cov := mat.NewSymDense(2, nil)
	cov.SetSym(0, 0, varDist*dir.X*dir.X+r.At(0, 0))
	cov.SetSym(0, 1, varDist*dir.X*dir.Y)
	cov.SetSym(1, 1, varDist*dir.Y*dir.Y+r.At(1, 1))
	return NewGaussian(mean, cov)
}

// RoadModelCovariance implements MotionEstimator.
func (m *ConstantVelocityModel) RoadModelCovariance() *mat.SymDense { return cloneSym(m.roadQ) }

// GroundModelCovariance implements MotionEstimator.
func (m *ConstantVelocityModel) GroundModelCovariance() *mat.SymDense { return cloneSym(m.groundQ) }

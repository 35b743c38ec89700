package mapmatch

import (
	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/geo"
)

// lateralVariance keeps road-to-ground covariances from collapsing to
// rank one: a road-relative belief carries no cross-track uncertainty,
// but the ground frame needs a small amount to stay factorable.
const lateralVariance = 1e-6

// GroundToRoad projects a 4-D ground-frame belief onto the given edge,
// producing an edge-anchored 2-D road belief: distance along the
// containing path (edge offset plus projected distance on the edge) and
// velocity along the edge tangent. The result is truncated to the
// feasible road domain.
func GroundToRoad(belief *Gaussian, edge PathEdge) *TruncatedGaussian {
	pm := belief.Mean()
	pc := belief.Cov()

	pos := geo.Point{X: pm.AtVec(0), Y: pm.AtVec(1)}
	vel := geo.Point{X: pm.AtVec(2), Y: pm.AtVec(3)}

	geom := edge.Segment.Geometry
	along, _, _ := geom.Project(pos)
	dir := geom.DirectionAt(along)
	distOnEdge := along
	if edge.Reversed {
		distOnEdge = edge.Segment.Length() - along
		dir = dir.Scale(-1)
	}

	mean := mat.NewVecDense(2, []float64{
		edge.DistToStart + distOnEdge,
		vel.Dot(dir),
	})

	// Project the position and velocity blocks onto the tangent:
	// var_d = dir^T S_pos dir, var_v = dir^T S_vel dir.
	varDist := dir.X*dir.X*pc.At(0, 0) + 2*dir.X*dir.Y*pc.At(0, 1) + dir.Y*dir.Y*pc.At(1, 1)
	varVel := dir.X*dir.X*pc.At(2, 2) + 2*dir.X*dir.Y*pc.At(2, 3) + dir.Y*dir.Y*pc.At(3, 3)
	cov := mat.NewSymDense(2, nil)
	cov.SetSym(0, 0, varDist)
	cov.SetSym(1, 1, varVel)
	return NewTruncatedGaussian(mean, cov)
}

// RoadToGround converts a 2-D road-relative belief on the given edge
// back to a 4-D ground-frame belief. Uncertainty is spread along the
// edge tangent, with a small lateral floor so the result stays
// factorable.
func RoadToGround(belief *Gaussian, edge PathEdge) *Gaussian {
	pm := belief.Mean()
	pc := belief.Cov()

	distOnEdge := pm.AtVec(0) - edge.DistToStart
	geomDist := distOnEdge
	geom := edge.Segment.Geometry
	if edge.Reversed {
		geomDist = edge.Segment.Length() - distOnEdge
	}
	pos := geom.PointAt(geomDist)
	dir := geom.DirectionAt(geomDist)
	if edge.Reversed {
		dir = dir.Scale(-1)
	}
	vel := dir.Scale(pm.AtVec(1))

	mean := mat.NewVecDense(4, []float64{pos.X, pos.Y, vel.X, vel.Y})

	varDist := pc.At(0, 0)
	varVel := pc.At(1, 1)
	cov := mat.NewSymDense(4, nil)
	cov.SetSym(0, 0, varDist*dir.X*dir.X+lateralVariance)
	cov.SetSym(0, 1, varDist*dir.X*dir.Y)
	cov.SetSym(1, 1, varDist*dir.Y*dir.Y+lateralVariance)
	cov.SetSym(2, 2, varVel*dir.X*dir.X+lateralVariance)
	cov.SetSym(2, 3, varVel*dir.X*dir.Y)
	cov.SetSym(3, 3, varVel*dir.Y*dir.Y+lateralVariance)
	return NewGaussian(mean, cov)
}

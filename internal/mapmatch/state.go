package mapmatch

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/geo"
)

// MotionState is the tagged on/off-road motion variant: a RoadState is
// path-relative (signed distance along the path plus scalar velocity),
// a GroundState is a free 2-D position plus 2-D velocity. The variant
// tag, not vector dimensionality, is what discriminates the two.
type MotionState interface {
	// Vector returns the state as a fresh vector: [distance, velocity]
	// for road states, [x, y, vx, vy] for ground states.
	Vector() *mat.VecDense

	isMotionState()
}

// RoadState is a path-relative motion state.
type RoadState struct {
	Distance float64 // signed distance along the containing path
	Velocity float64 // signed speed along the path, forward positive
}

func (RoadState) isMotionState() {}

// Vector returns [distance, velocity].
func (s RoadState) Vector() *mat.VecDense {
	return mat.NewVecDense(2, []float64{s.Distance, s.Velocity})
}

// RoadStateFromVector builds a RoadState from a 2-D vector.
func RoadStateFromVector(v *mat.VecDense) (RoadState, error) {
	if v.Len() != 2 {
		return RoadState{}, fmt.Errorf("road state needs a 2-vector, got %d", v.Len())
	}
	return RoadState{Distance: v.AtVec(0), Velocity: v.AtVec(1)}, nil
}

// GroundState is an unconstrained ground-frame motion state.
type GroundState struct {
	Pos geo.Point
	Vel geo.Point
}

func (GroundState) isMotionState() {}

// Vector returns [x, y, vx, vy].
func (s GroundState) Vector() *mat.VecDense {
	return mat.NewVecDense(4, []float64{s.Pos.X, s.Pos.Y, s.Vel.X, s.Vel.Y})
}

// GroundStateFromVector builds a GroundState from a 4-D vector.
func GroundStateFromVector(v *mat.VecDense) (GroundState, error) {
	if v.Len() != 4 {
		return GroundState{}, fmt.Errorf("ground state needs a 4-vector, got %d", v.Len())
	}
	return GroundState{
		Pos: geo.Point{X: v.AtVec(0), Y: v.AtVec(1)},
		Vel: geo.Point{X: v.AtVec(2), Y: v.AtVec(3)},
	}, nil
}

// PathState couples a Path with a motion state expressed relative to
// it. Invariant: a null path carries a GroundState, a non-null path a
// RoadState.
type PathState struct {
	path   *Path
	motion MotionState
}

// NewOffRoadPathState returns a PathState on the null path.
func NewOffRoadPathState(s GroundState) PathState {
	return PathState{path: NullPath, motion: s}
}

// NewOnRoadPathState returns a PathState on the given non-null path.
func NewOnRoadPathState(path *Path, s RoadState) (PathState, error) {
	if path.IsNull() {
		return PathState{}, fmt.Errorf("on-road path state needs a non-null path")
	}
	return PathState{path: path, motion: s}, nil
}

// NewPathState builds the variant appropriate to the path from a raw
// predicted mean vector: road-relative for non-null paths, ground-frame
// for the null path.
func NewPathState(path *Path, mean *mat.VecDense) (PathState, error) {
	if path.IsNull() {
		gs, err := GroundStateFromVector(mean)
		if err != nil {
			return PathState{}, err
		}
		return NewOffRoadPathState(gs), nil
	}
	rs, err := RoadStateFromVector(mean)
	if err != nil {
		return PathState{}, err
	}
	return NewOnRoadPathState(path, rs)
}

// IsOnRoad reports whether the state lives on a non-null path.
func (ps PathState) IsOnRoad() bool { return !ps.path.IsNull() }

// Path returns the containing path.
func (ps PathState) Path() *Path { return ps.path }

// Motion returns the motion state variant.
func (ps PathState) Motion() MotionState { return ps.motion }

// MotionVector returns the raw motion vector (2-D road-relative or 4-D
// ground-frame).
func (ps PathState) MotionVector() *mat.VecDense { return ps.motion.Vector() }

// Edge returns the path edge containing the current distance along the
// path, or the null edge when off-road.
func (ps PathState) Edge() PathEdge {
	if !ps.IsOnRoad() {
		return NullPathEdge
	}
	return ps.path.EdgeAtDistance(ps.motion.(RoadState).Distance)
}

// EdgeState returns the motion state relative to the current edge
// rather than the whole path: [distance on edge, velocity] on-road,
// the ground vector off-road. Keeping priors edge-relative stops
// distance-along-path from growing without bound across updates.
func (ps PathState) EdgeState() *mat.VecDense {
	if !ps.IsOnRoad() {
		return ps.motion.Vector()
	}
	rs := ps.motion.(RoadState)
	edge := ps.Edge()
	return mat.NewVecDense(2, []float64{rs.Distance - edge.DistToStart, rs.Velocity})
}

// GroundView returns the ground-frame view of the state. Off-road it is
// the state itself; on-road it is derived from the current edge
// geometry: position at the edge-relative distance, velocity along the
// edge tangent.
func (ps PathState) GroundView() GroundState {
	if !ps.IsOnRoad() {
		return ps.motion.(GroundState)
	}
	rs := ps.motion.(RoadState)
	edge := ps.Edge()
	distOnEdge := rs.Distance - edge.DistToStart
	geom := edge.Segment.Geometry
	if edge.Reversed {
		distOnEdge = edge.Segment.Length() - distOnEdge
	}
	pos := geom.PointAt(distOnEdge)
	dir := geom.DirectionAt(distOnEdge)
	if edge.Reversed {
		dir = dir.Scale(-1)
	}
	return GroundState{Pos: pos, Vel: dir.Scale(rs.Velocity)}
}

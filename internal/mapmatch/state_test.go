package mapmatch

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/geo"
)

func TestPathStateVariantMatchesPath(t *testing.T) {
	g := twoSegmentGraph(t)
	path := NewSingleEdgePath(g.Segment("a"))

	ps, err := NewPathState(path, mat.NewVecDense(2, []float64{5, 2}))
	if err != nil {
		t.Fatal(err)
	}
	if !ps.IsOnRoad() {
		t.Error("on-road state reported off-road")
	}
	if _, ok := ps.Motion().(RoadState); !ok {
		t.Errorf("motion variant = %T, want RoadState", ps.Motion())
	}

	off, err := NewPathState(NullPath, mat.NewVecDense(4, []float64{1, 2, 3, 4}))
	if err != nil {
		t.Fatal(err)
	}
	if off.IsOnRoad() {
		t.Error("null-path state reported on-road")
	}
	if _, ok := off.Motion().(GroundState); !ok {
		t.Errorf("motion variant = %T, want GroundState", off.Motion())
	}

	// Dimension mismatches are rejected, not silently reinterpreted.
	if _, err := NewPathState(path, mat.NewVecDense(4, nil)); err == nil {
		t.Error("expected error for 4-vector on a road path")
	}
	if _, err := NewPathState(NullPath, mat.NewVecDense(2, nil)); err == nil {
		t.Error("expected error for 2-vector on the null path")
	}
}

func TestEdgeStateIsEdgeRelative(t *testing.T) {
	g := twoSegmentGraph(t)
	path, err := NewPath([]PathEdge{
		{Segment: g.Segment("a"), DistToStart: 0},
		{Segment: g.Segment("b"), DistToStart: 30},
	}, g)
	if err != nil {
		t.Fatal(err)
	}

	ps, err := NewOnRoadPathState(path, RoadState{Distance: 45, Velocity: 8})
	if err != nil {
		t.Fatal(err)
	}
	if got := ps.Edge().Segment.ID; got != "b" {
		t.Fatalf("Edge() = %v, want b", got)
	}
	es := ps.EdgeState()
	if es.AtVec(0) != 15 || es.AtVec(1) != 8 {
		t.Errorf("EdgeState = (%v,%v), want (15,8)", es.AtVec(0), es.AtVec(1))
	}
}

func TestGroundViewOnRoad(t *testing.T) {
	g := twoSegmentGraph(t)
	path := NewSingleEdgePath(g.Segment("a")) // x axis, 0..30

	ps, err := NewOnRoadPathState(path, RoadState{Distance: 12, Velocity: 5})
	if err != nil {
		t.Fatal(err)
	}
	gv := ps.GroundView()
	if math.Abs(gv.Pos.X-12) > 1e-9 || math.Abs(gv.Pos.Y) > 1e-9 {
		t.Errorf("GroundView pos = %v, want (12,0)", gv.Pos)
	}
	if math.Abs(gv.Vel.X-5) > 1e-9 || math.Abs(gv.Vel.Y) > 1e-9 {
		t.Errorf("GroundView vel = %v, want (5,0)", gv.Vel)
	}
}

func TestGroundViewOffRoadIsIdentity(t *testing.T) {
	gs := GroundState{Pos: geo.Point{X: 1, Y: 2}, Vel: geo.Point{X: 3, Y: 4}}
	ps := NewOffRoadPathState(gs)
	if got := ps.GroundView(); got != gs {
		t.Errorf("GroundView = %+v, want %+v", got, gs)
	}
	if ps.MotionVector().Len() != 4 {
		t.Error("off-road motion vector must be 4-D")
	}
}

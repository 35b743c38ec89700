package mapmatch

import (
	"math/rand"
	"testing"
	"time"

	"github.com/roadsense/mapmatch/internal/geo"
	"github.com/roadsense/mapmatch/internal/graph"
)

// testParams returns parameters tuned for deterministic tests: unit
// observation interval and negligible process noise so predictions are
// effectively exact.
func testParams() Parameters {
	p := DefaultParameters()
	p.NumParticles = 10
	p.ObsFreq = 1
	p.GroundNoiseVariance = 0
	p.RoadNoiseVariance = 0
	p.ObsVariance = 25
	p.InitialStateVariance = 100
	return p
}

func testObs(x, y float64) Observation {
	return Observation{
		VehicleID: "veh-1",
		Time:      time.Unix(1700000000, 0),
		Point:     geo.Point{X: x, Y: y},
	}
}

func testRNG() *rand.Rand { return rand.New(rand.NewSource(42)) }

// newEmptyNetwork returns a road network with no segments at all.
func newEmptyNetwork() *graph.Graph { return graph.New() }

// singleSegmentGraph returns a graph with one segment of the given
// length along the x axis and no adjacency.
func singleSegmentGraph(t *testing.T, length float64) *graph.Graph {
	t.Helper()
	g := graph.New()
	if _, err := g.AddSegment("solo", geo.Polyline{{X: 0, Y: 0}, {X: length, Y: 0}}); err != nil {
		t.Fatal(err)
	}
	return g
}

// twoSegmentGraph returns segments a (length 30) and b (length 40) laid
// end to end along the x axis, with a -> b adjacency.
func twoSegmentGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	if _, err := g.AddSegment("a", geo.Polyline{{X: 0, Y: 0}, {X: 30, Y: 0}}); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddSegment("b", geo.Polyline{{X: 30, Y: 0}, {X: 70, Y: 0}}); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect("a", "b"); err != nil {
		t.Fatal(err)
	}
	return g
}

// newTestUpdater builds an updater over the given graph anchored on an
// observation near the origin.
func newTestUpdater(t *testing.T, g *graph.Graph, p Parameters) *Updater {
	t.Helper()
	u, err := NewUpdater(g, p, testObs(1, 1), testRNG())
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// onRoadParticle builds a particle anchored at distance 0 on the given
// segment with the given forward velocity in its prediction prior.
func onRoadParticle(t *testing.T, u *Updater, seg *graph.Segment, velocity float64) *VehicleState {
	t.Helper()
	p, err := u.newInitialState(PathEdge{Segment: seg})
	if err != nil {
		t.Fatal(err)
	}
	mean := p.MotionStateParam.Prior.Mean()
	mean.SetVec(0, 0)
	mean.SetVec(1, velocity)
	p.MotionStateParam.Prior.SetMean(mean)
	return p
}

// offRoadParticle builds the off-road hypothesis particle.
func offRoadParticle(t *testing.T, u *Updater) *VehicleState {
	t.Helper()
	p, err := u.newInitialState(NullPathEdge)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

package mapmatch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransitionSampleOnRoadDomain(t *testing.T) {
	g := twoSegmentGraph(t)
	u := newTestUpdater(t, g, testParams())
	particle := onRoadParticle(t, u, g.Segment("a"), 0)

	d := particle.EdgeTransitionParam.Conditional
	d.SetCurrentEdge(g.Segment("a"))

	rng := testRNG()
	seen := make(map[string]int)
	for i := 0; i < 2000; i++ {
		s := d.Sample(rng)
		if s == nil {
			seen[""]++
		} else {
			seen[s.ID]++
		}
	}
	// Default weights: 5% off, 95% split over {a, b}.
	require.Greater(t, seen["a"], 0)
	require.Greater(t, seen["b"], 0)
	require.Greater(t, seen[""], 0)
	require.Greater(t, seen["a"]+seen["b"], seen[""])
}

func TestTransitionSampleOffRoadUsesNearby(t *testing.T) {
	g := twoSegmentGraph(t)
	p := testParams()
	p.EdgeTransitionWeights.FreeMotion = [2]float64{0, 1}
	u := newTestUpdater(t, g, p)
	particle := offRoadParticle(t, u)

	d := particle.EdgeTransitionParam.Conditional
	d.SetCurrentEdge(nil)
	d.SetMotionState(offRoadParticle(t, u).MotionStateParam.Prior.Mean())

	rng := testRNG()
	for i := 0; i < 100; i++ {
		s := d.Sample(rng)
		require.NotNil(t, s, "forced on-road draw with nearby edges present")
	}
}

func TestTransitionSampleOffRoadNoCandidates(t *testing.T) {
	g := newEmptyNetwork()
	p := testParams()
	p.EdgeTransitionWeights.FreeMotion = [2]float64{0, 1}
	u := newTestUpdater(t, g, p)
	particle := offRoadParticle(t, u)

	d := particle.EdgeTransitionParam.Conditional
	// Even a forced on-road draw yields the null edge with no candidates.
	require.Nil(t, d.Sample(testRNG()))
}

func TestTransitionLogProb(t *testing.T) {
	g := twoSegmentGraph(t)
	u := newTestUpdater(t, g, testParams())
	particle := onRoadParticle(t, u, g.Segment("a"), 0)

	d := particle.EdgeTransitionParam.Conditional
	d.SetCurrentEdge(g.Segment("a"))

	offLP := d.LogProb(nil)
	onLP := d.LogProb(g.Segment("b"))
	require.InDelta(t, math.Log(0.05), offLP, 1e-9)
	// 0.95 split uniformly over {a, b}.
	require.InDelta(t, math.Log(0.95/2), onLP, 1e-9)

	// A segment outside the candidate domain is impossible.
	other := singleSegmentGraph(t, 10)
	require.True(t, math.IsInf(d.LogProb(other.Segment("solo")), -1))
}

func TestTransitionCloneIsIndependent(t *testing.T) {
	g := twoSegmentGraph(t)
	u := newTestUpdater(t, g, testParams())
	particle := onRoadParticle(t, u, g.Segment("a"), 0)

	d := particle.EdgeTransitionParam.Conditional
	d.SetCurrentEdge(g.Segment("a"))
	c := d.Clone()
	c.SetCurrentEdge(nil)

	segs, _ := d.candidates()
	require.NotEmpty(t, segs, "clone reconditioning leaked into the original")
}

package mapmatch

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/graph"
)

// RoadNetwork is the contract the engine requires of the road network
// graph. *graph.Graph satisfies it; tests substitute fixtures.
type RoadNetwork interface {
	// NearbySegments returns the segments within a neighbourhood of the
	// given ground-frame position mean, scaled by its covariance.
	NearbySegments(mean mat.Vector, cov mat.Symmetric) []*graph.Segment

	// OutgoingAdjacent returns the segments reachable by legal travel
	// from seg.
	OutgoingAdjacent(seg *graph.Segment) []*graph.Segment
}

// TransitionWeights are the learned probability-weight pairs of the
// on/off-road transition model: one pair conditioned on already being
// on an edge, one on being off-road. Index 0 is the off-road (null
// edge) weight, index 1 the on-road weight.
type TransitionWeights struct {
	EdgeMotion [2]float64 // given on an edge: [go off, stay on]
	FreeMotion [2]float64 // given off-road: [stay off, go on]
}

// TransitionPrior holds the Dirichlet concentration pairs the weights
// were drawn from. Carried through updates unchanged by the bootstrap
// filter.
type TransitionPrior struct {
	EdgeMotion [2]float64
	FreeMotion [2]float64
}

// Clone returns a copy of the prior.
func (p *TransitionPrior) Clone() *TransitionPrior {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// EdgeTransitionDistribution is the conditional distribution over
// {null edge, each candidate segment} given the current edge and, when
// off-road, the current motion-state mean. It is the single draw per
// update that decides the coarse on/off-road transition.
type EdgeTransitionDistribution struct {
	network RoadNetwork
	weights TransitionWeights

	// Conditioning context, reconfigured each update.
	currentEdge *graph.Segment
	motionMean  *mat.VecDense
	searchCov   *mat.SymDense
}

// NewEdgeTransitionDistribution returns a transition distribution
// seeded with the given path state's current edge. searchVariance
// controls the off-road nearby-edge query radius.
func NewEdgeTransitionDistribution(network RoadNetwork, ps PathState, weights TransitionWeights, searchVariance float64) *EdgeTransitionDistribution {
	cov := mat.NewSymDense(4, nil)
	for i := 0; i < 4; i++ {
		cov.SetSym(i, i, searchVariance)
	}
	d := &EdgeTransitionDistribution{
		network:   network,
		weights:   weights,
		searchCov: cov,
	}
	if edge := ps.Edge(); !edge.IsNull() {
		d.currentEdge = edge.Segment
	}
	return d
}

// Weights returns the learned transition weight pairs.
func (d *EdgeTransitionDistribution) Weights() TransitionWeights { return d.weights }

// SetCurrentEdge reconditions the distribution on the given segment
// (nil for off-road).
func (d *EdgeTransitionDistribution) SetCurrentEdge(seg *graph.Segment) { d.currentEdge = seg }

// SetMotionState reconditions the off-road candidate query on the given
// predicted ground-frame mean. Only meaningful when the current edge is
// nil: off-road transition probability depends on position.
func (d *EdgeTransitionDistribution) SetMotionState(mean *mat.VecDense) {
	d.motionMean = mat.VecDenseCopyOf(mean)
}

// Clone returns an independent copy sharing the immutable network.
func (d *EdgeTransitionDistribution) Clone() *EdgeTransitionDistribution {
	if d == nil {
		return nil
	}
	out := &EdgeTransitionDistribution{
		network:     d.network,
		weights:     d.weights,
		currentEdge: d.currentEdge,
		searchCov:   cloneSym(d.searchCov),
	}
	if d.motionMean != nil {
		out.motionMean = mat.VecDenseCopyOf(d.motionMean)
	}
	return out
}

// candidates returns the on-road domain of the distribution under the
// current conditioning context, plus the weight pair that applies.
func (d *EdgeTransitionDistribution) candidates() ([]*graph.Segment, [2]float64) {
	if d.currentEdge != nil {
		out := []*graph.Segment{d.currentEdge}
		out = append(out, d.network.OutgoingAdjacent(d.currentEdge)...)
		return out, d.weights.EdgeMotion
	}
	if d.motionMean == nil {
		return nil, d.weights.FreeMotion
	}
	return d.network.NearbySegments(d.motionMean, d.searchCov), d.weights.FreeMotion
}

// Sample draws one indicator segment: nil for the null (off-road) edge,
// otherwise a uniformly chosen candidate segment.
func (d *EdgeTransitionDistribution) Sample(rng *rand.Rand) *graph.Segment {
	segs, pair := d.candidates()
	total := pair[0] + pair[1]
	if total <= 0 || len(segs) == 0 {
		return nil
	}
	if rng.Float64()*total < pair[0] {
		return nil
	}
	return segs[rng.Intn(len(segs))]
}

// LogProb returns the log probability of drawing the given indicator
// (nil for the null edge) under the current conditioning context.
func (d *EdgeTransitionDistribution) LogProb(seg *graph.Segment) float64 {
	segs, pair := d.candidates()
	total := pair[0] + pair[1]
	if total <= 0 {
		return math.Inf(-1)
	}
	if seg == nil {
		if len(segs) == 0 {
			return 0 // off-road is the only outcome
		}
		return math.Log(pair[0] / total)
	}
	for _, s := range segs {
		if s == seg {
			return math.Log(pair[1]/total) - math.Log(float64(len(segs)))
		}
	}
	return math.Inf(-1)
}

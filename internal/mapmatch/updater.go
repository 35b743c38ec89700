package mapmatch

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/graph"
)

// searchBudgetLimit caps the path-enumeration travel distance. The DFS
// below has no node-count limit, so pathological graphs with many very
// short segments are bounded only by this length precondition.
const searchBudgetLimit = 1000.0

// ErrSearchBudgetExceeded reports an enumeration request at or beyond
// the hard length limit. A caller invariant breach, never produced by
// normal updates on sane inputs.
var ErrSearchBudgetExceeded = errors.New("mapmatch: path search length exceeds budget")

// graphPath is the mutable accumulator used only inside the path
// enumerator: the segment sequence plus its running length.
type graphPath struct {
	segments []*graph.Segment
	length   float64
}

func newGraphPath(start *graph.Segment) *graphPath {
	return &graphPath{segments: []*graph.Segment{start}, length: start.Length()}
}

func (p *graphPath) clone() *graphPath {
	out := &graphPath{
		segments: make([]*graph.Segment, len(p.segments)),
		length:   p.length,
	}
	copy(out.segments, p.segments)
	return out
}

func (p *graphPath) add(seg *graph.Segment) {
	p.segments = append(p.segments, seg)
	p.length += seg.Length()
}

func (p *graphPath) last() *graph.Segment { return p.segments[len(p.segments)-1] }

// Updater is the particle state-transition engine: it generates the
// initial particle population from the first observation and advances
// one particle per call thereafter. Single-threaded per invocation; the
// shared random source's draw order is the sole nondeterminism.
type Updater struct {
	network RoadNetwork
	motion  MotionEstimator
	params  Parameters
	rng     *rand.Rand
	lineage *Lineage

	initialObs Observation

	// sampledTransitionError records the process noise injected by the
	// last update. Diagnostic only.
	sampledTransitionError *mat.VecDense
}

// NewUpdater builds an updater anchored on the first observation of a
// vehicle's track.
func NewUpdater(network RoadNetwork, params Parameters, initialObs Observation, rng *rand.Rand) (*Updater, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("updater parameters: %w", err)
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Updater{
		network:    network,
		motion:     NewConstantVelocityModel(params),
		params:     params,
		rng:        rng,
		lineage:    NewLineage(),
		initialObs: initialObs,
	}, nil
}

// Lineage returns the ancestry arena shared by all particles this
// updater has produced.
func (u *Updater) Lineage() *Lineage { return u.lineage }

// SampledTransitionError returns the process noise injected during the
// most recent update. Diagnostic only.
func (u *Updater) SampledTransitionError() *mat.VecDense { return u.sampledTransitionError }

// pathsUpToLength enumerates, depth first, every simple forward
// extension of the accumulated path whose length meets the remaining
// travel budget. Dead ends are abandoned (empty result), not errors;
// a budget at or beyond searchBudgetLimit is a fatal caller error.
func (u *Updater) pathsUpToLength(start *graphPath, remaining float64) ([]*graphPath, error) {
	if remaining >= searchBudgetLimit {
		return nil, fmt.Errorf("%w: %.1f >= %.0f", ErrSearchBudgetExceeded, remaining, searchBudgetLimit)
	}
	last := start.last()
	if last.Length() >= remaining || remaining <= 0 {
		// The budget is satisfied within this segment.
		return []*graphPath{start}, nil
	}
	transfer := u.network.OutgoingAdjacent(last)
	if len(transfer) == 0 {
		// Dead end without meeting the length requirement. Abandon.
		return nil, nil
	}
	var out []*graphPath
	for _, seg := range transfer {
		next := start.clone()
		next.add(seg)
		extended, err := u.pathsUpToLength(next, remaining-last.Length())
		if err != nil {
			return nil, err
		}
		out = append(out, extended...)
	}
	return out, nil
}

// ComputeLogLikelihood returns the log density of the observation's
// projected location under the particle's motion-state conditional
// distribution. Used internally for initial-particle weighting and by
// the surrounding filter for importance weighting after updates.
func (u *Updater) ComputeLogLikelihood(particle *VehicleState, obs Observation) float64 {
	return particle.MotionStateParam.Conditional.LogProb(obs.ProjectedPoint())
}

// newInitialState builds a particle anchored on the given edge (the
// null edge for the off-road hypothesis) from the initial observation
// and the configured priors.
func (u *Updater) newInitialState(edge PathEdge) (*VehicleState, error) {
	p := u.params
	groundMean := mat.NewVecDense(4, []float64{
		u.initialObs.Point.X, u.initialObs.Point.Y, 0, 0,
	})
	groundCov := mat.NewSymDense(4, nil)
	velVariance := p.InitialStateVariance / (p.ObsFreq * p.ObsFreq)
	groundCov.SetSym(0, 0, p.InitialStateVariance)
	groundCov.SetSym(1, 1, p.InitialStateVariance)
	groundCov.SetSym(2, 2, velVariance)
	groundCov.SetSym(3, 3, velVariance)
	groundPrior := NewGaussian(groundMean, groundCov)

	state := &VehicleState{Parent: NoParent}

	var (
		pathState PathState
		prior     *TruncatedGaussian
		obsDist   *Gaussian
	)
	if edge.IsNull() {
		gs, err := GroundStateFromVector(groundMean)
		if err != nil {
			return nil, err
		}
		pathState = NewOffRoadPathState(gs)
		prior = NewTruncatedGaussian(groundMean, groundCov)
		obsDist = u.motion.ObservationDistribution(groundPrior, NullPathEdge)
	} else {
		roadPrior := GroundToRoad(groundPrior, edge)
		path := NewSingleEdgePath(edge.Segment)
		rs, err := RoadStateFromVector(roadPrior.Mean())
		if err != nil {
			return nil, err
		}
		pathState, err = NewOnRoadPathState(path, rs)
		if err != nil {
			return nil, err
		}
		prior = roadPrior
		obsDist = u.motion.ObservationDistribution(&roadPrior.Gaussian, path.FirstEdge())
	}

	state.MotionStateParam = BayesianParameter[*mat.VecDense, *Gaussian, *TruncatedGaussian]{
		Value:       obsDist.Mean(),
		Conditional: obsDist,
		Prior:       prior,
	}
	state.PathStateParam = BayesianParameter[PathState, *PathStateDistribution, *PathStateDistribution]{
		Value: pathState,
		Prior: &PathStateDistribution{
			Path:   pathState.Path(),
			Belief: NewTruncatedGaussian(pathState.MotionVector(), prior.Cov()),
		},
	}
	trans := NewEdgeTransitionDistribution(u.network, pathState, p.EdgeTransitionWeights, p.SearchVariance)
	if edge.IsNull() {
		trans.SetMotionState(groundMean)
	}
	state.EdgeTransitionParam = BayesianParameter[TransitionWeights, *EdgeTransitionDistribution, *TransitionPrior]{
		Value:       p.EdgeTransitionWeights,
		Conditional: trans,
		Prior:       p.EdgeTransitionPrior.Clone(),
	}
	return state, nil
}

// CreateInitialParticles builds the initial population from the first
// observation: for each of count draws, the off-road hypothesis and one
// candidate per nearby segment are weighted by transition log-prob plus
// observation log-likelihood (the local-optimal proposal), and a single
// draw is taken. Duplicate draws are counted, not deduplicated.
func (u *Updater) CreateInitialParticles(count int) ([]*VehicleState, error) {
	nullState, err := u.newInitialState(NullPathEdge)
	if err != nil {
		return nil, err
	}
	priorMean := nullState.MotionStateParam.Prior.Mean()
	priorCov := nullState.MotionStateParam.Prior.Cov()
	nearby := u.network.NearbySegments(priorMean, priorCov)

	population := make([]*VehicleState, 0, count)
	for i := 0; i < count; i++ {
		nullWeight := nullState.EdgeTransitionParam.Conditional.LogProb(nil) +
			u.ComputeLogLikelihood(nullState, u.initialObs)
		if !isFinite(nullWeight) && len(nearby) == 0 {
			return nil, fmt.Errorf("off-road is impossible and there are no edges to be on (weight=%v)", nullWeight)
		}

		candidates := []*VehicleState{nullState}
		logWeights := []float64{nullWeight}
		for _, seg := range nearby {
			onEdge, err := u.newInitialState(PathEdge{Segment: seg})
			if err != nil {
				return nil, err
			}
			w := onEdge.EdgeTransitionParam.Conditional.LogProb(seg) +
				u.ComputeLogLikelihood(onEdge, u.initialObs)
			candidates = append(candidates, onEdge)
			logWeights = append(logWeights, w)
		}

		population = append(population, candidates[sampleLogWeighted(u.rng, logWeights)])
	}
	return population, nil
}

// Update advances one particle through one observation interval. The
// input particle is never mutated; the result is a clone with all three
// Bayesian parameters rebuilt consistently with the sampled path and a
// lineage reference back to the input.
func (u *Updater) Update(previous *VehicleState) (*VehicleState, error) {
	updated := previous.Clone()

	// Predict the motion state forward and inject process noise. Only
	// the mean moves: the bootstrap filter samples states rather than
	// updating posteriors, so the covariance stays the model's.
	predicted := u.motion.Predict(&updated.MotionStateParam.Prior.Gaussian)
	predictedMean := predicted.Mean()
	noisyMean := u.motion.AddProcessNoise(predictedMean, u.rng)
	predicted.SetMean(noisyMean)
	u.recordTransitionError(noisyMean, predictedMean)

	currentEdge := updated.CurrentEdge()
	if !currentEdge.Equal(updated.PathState().Path().LastEdge()) {
		return nil, fmt.Errorf("particle edge %v is not the last edge of its path %v",
			currentEdge, updated.PathState().Path())
	}

	// Forward-only dynamics on road.
	if _, onRoad := updated.PathState().Motion().(RoadState); onRoad && predicted.Mean().AtVec(0) < 0 {
		return nil, fmt.Errorf("backward travel while on-road: projected distance %.3f", predicted.Mean().AtVec(0))
	}

	// Condition the transition distribution on where the particle is
	// now, then draw the single on/off-road indicator for this step.
	trans := updated.EdgeTransitionParam.Conditional
	if currentEdge.IsNull() {
		trans.SetCurrentEdge(nil)
		trans.SetMotionState(predicted.Mean())
	} else {
		trans.SetCurrentEdge(currentEdge.Segment)
	}
	indicator := trans.Sample(u.rng)

	var newPath *Path
	switch {
	case indicator == nil && !currentEdge.IsNull():
		// On-road going off-road: the in-path projection is invalid once
		// leaving the road, so re-anchor the previous ground-frame state
		// and redo prediction in ground coordinates.
		groundVec := previous.PathState().GroundView().Vector()
		groundDist := NewGaussian(groundVec, mat.NewSymDense(4, nil))
		predicted = u.motion.Predict(groundDist)
		offRoadMean := predicted.Mean()
		noisy := u.motion.AddProcessNoise(offRoadMean, u.rng)
		predicted.SetMean(noisy)
		u.recordTransitionError(noisy, offRoadMean)
		newPath = NullPath

	case indicator == nil:
		// Off-road staying off-road: the ground-frame prediction stands.
		newPath = NullPath

	case currentEdge.IsNull():
		// Off-road going on-road: project the ground belief onto the
		// sampled edge, anchored at distance 0.
		roadBelief := GroundToRoad(predicted, PathEdge{Segment: indicator})
		predicted = &roadBelief.Gaussian
		newPath = NewSingleEdgePath(indicator)

	default:
		// On-road staying on-road: sample a concrete path covering the
		// projected travel distance.
		var err error
		newPath, predicted, err = u.sampleOnRoadPath(currentEdge, predicted)
		if err != nil {
			return nil, err
		}
	}

	return u.rebuild(updated, previous, newPath, predicted)
}

// sampleOnRoadPath enumerates paths from the current segment out to the
// projected distance and picks one uniformly. When the network is too
// short or disconnected it degrades to an off-road hypothesis (null
// path, ground-frame belief) rather than failing.
func (u *Updater) sampleOnRoadPath(currentEdge PathEdge, predicted *Gaussian) (*Path, *Gaussian, error) {
	projectedDistance := predicted.Mean().AtVec(0)

	paths, err := u.pathsUpToLength(newGraphPath(currentEdge.Segment), projectedDistance)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		// No path of the desired distance exists. Forced degradation.
		return NullPath, RoadToGround(predicted, currentEdge), nil
	}

	chosen := paths[u.rng.Intn(len(paths))]

	edges := make([]PathEdge, 0, len(chosen.segments))
	var distance float64
	for _, seg := range chosen.segments {
		edges = append(edges, PathEdge{Segment: seg, DistToStart: distance})
		distance += seg.Length()
	}

	if edges[0].Segment != currentEdge.Segment {
		return nil, nil, fmt.Errorf("sampled path starts at %s, particle is on %s",
			edges[0].Segment.ID, currentEdge.Segment.ID)
	}
	if !edges[len(edges)-1].ContainsDistance(projectedDistance) {
		return nil, nil, fmt.Errorf("sampled path final edge %v does not contain projected distance %.3f",
			edges[len(edges)-1], projectedDistance)
	}

	newPath, err := NewPath(edges, u.network)
	if err != nil {
		return nil, nil, err
	}
	return newPath, predicted, nil
}

// rebuild reconstructs the particle's three Bayesian parameters
// consistently with the sampled path and the predicted belief.
func (u *Updater) rebuild(updated, previous *VehicleState, newPath *Path, predicted *Gaussian) (*VehicleState, error) {
	newPathState, err := NewPathState(newPath, predicted.Mean())
	if err != nil {
		return nil, err
	}

	var modelCov *mat.SymDense
	if newPathState.IsOnRoad() {
		modelCov = u.motion.RoadModelCovariance()
	} else {
		modelCov = u.motion.GroundModelCovariance()
	}

	// The motion-state prior must be relative to the edge it is on;
	// otherwise distance-along-path accumulates without bound.
	newEdgeBelief := NewTruncatedGaussian(newPathState.EdgeState(), modelCov)
	obsDist := u.motion.ObservationDistribution(predicted, newPathState.Edge())

	updated.MotionStateParam = BayesianParameter[*mat.VecDense, *Gaussian, *TruncatedGaussian]{
		Value:       obsDist.Mean(),
		Conditional: obsDist,
		Prior:       newEdgeBelief,
	}
	updated.PathStateParam = BayesianParameter[PathState, *PathStateDistribution, *PathStateDistribution]{
		Value: newPathState,
		Prior: &PathStateDistribution{
			Path:   newPath,
			Belief: NewTruncatedGaussian(newPathState.MotionVector(), modelCov),
		},
	}

	// The learned weight pairs carry forward; only the conditioning
	// context changes.
	previousTrans := updated.EdgeTransitionParam
	updated.EdgeTransitionParam = BayesianParameter[TransitionWeights, *EdgeTransitionDistribution, *TransitionPrior]{
		Value: previousTrans.Value,
		Conditional: NewEdgeTransitionDistribution(u.network, newPathState,
			previousTrans.Conditional.Weights(), u.params.SearchVariance),
		Prior: previousTrans.Prior.Clone(),
	}

	updated.Parent = u.lineage.Append(previous)
	return updated, nil
}

func (u *Updater) recordTransitionError(noisy, clean *mat.VecDense) {
	diff := mat.NewVecDense(noisy.Len(), nil)
	diff.SubVec(noisy, clean)
	u.sampledTransitionError = diff
}

// sampleLogWeighted draws an index proportional to exponentiated
// log-weights, shifted by the maximum for numerical stability.
func sampleLogWeighted(rng *rand.Rand, logWeights []float64) int {
	maxW := math.Inf(-1)
	for _, w := range logWeights {
		if w > maxW {
			maxW = w
		}
	}
	weights := make([]float64, len(logWeights))
	var total float64
	for i, w := range logWeights {
		if isFinite(w) {
			weights[i] = math.Exp(w - maxW)
		}
		total += weights[i]
	}
	if total <= 0 {
		return rng.Intn(len(logWeights))
	}
	r := rng.Float64() * total
	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(weights) - 1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package mapmatch

import (
	"gonum.org/v1/gonum/mat"
)

// BayesianParameter bundles a point estimate with its conditional
// distribution and prior belief. The same shape recurs for the motion
// state, the path state, and the edge transition, each with different
// concrete distribution types.
type BayesianParameter[V, C, P any] struct {
	Value       V
	Conditional C
	Prior       P
}

// PathStateDistribution is a distribution over states on a fixed path,
// parameterized by a truncated Gaussian over the path-relative (or
// ground-frame) motion vector.
type PathStateDistribution struct {
	Path   *Path
	Belief *TruncatedGaussian
}

// Clone returns an independent copy. The path itself is immutable and
// shared.
func (d *PathStateDistribution) Clone() *PathStateDistribution {
	if d == nil {
		return nil
	}
	return &PathStateDistribution{Path: d.Path, Belief: d.Belief.Clone()}
}

// ParticleID identifies a particle within a lineage arena.
type ParticleID int

// NoParent marks a root particle created by the initial generator.
const NoParent ParticleID = -1

// VehicleState is one particle: a full weighted hypothesis about the
// vehicle's motion state, road context, and transition behaviour.
// Mutated only by cloning inside the updater, never in place.
type VehicleState struct {
	// MotionStateParam: point estimate = observation-distribution mean,
	// conditional = observation distribution, prior = edge-relative
	// truncated belief.
	MotionStateParam BayesianParameter[*mat.VecDense, *Gaussian, *TruncatedGaussian]

	// PathStateParam: point estimate = the path state; the conditional
	// is unused in the bootstrap filter and stays nil.
	PathStateParam BayesianParameter[PathState, *PathStateDistribution, *PathStateDistribution]

	// EdgeTransitionParam: point estimate = the learned transition
	// weights, conditional = the transition distribution seeded with
	// the current path state, prior = the Dirichlet concentrations.
	EdgeTransitionParam BayesianParameter[TransitionWeights, *EdgeTransitionDistribution, *TransitionPrior]

	// Parent is the previous-step particle this one descends from, as
	// an index into the filter's lineage arena. Lineage only; never
	// used for mutation.
	Parent ParticleID
}

// Clone returns a deep copy sharing only immutable structure (paths,
// segments). The clone's parent reference is carried over; the updater
// overwrites it.
func (v *VehicleState) Clone() *VehicleState {
	out := &VehicleState{Parent: v.Parent}
	out.MotionStateParam = BayesianParameter[*mat.VecDense, *Gaussian, *TruncatedGaussian]{
		Value:       mat.VecDenseCopyOf(v.MotionStateParam.Value),
		Conditional: v.MotionStateParam.Conditional.Clone(),
		Prior:       v.MotionStateParam.Prior.Clone(),
	}
	out.PathStateParam = BayesianParameter[PathState, *PathStateDistribution, *PathStateDistribution]{
		Value:       v.PathStateParam.Value,
		Conditional: v.PathStateParam.Conditional.Clone(),
		Prior:       v.PathStateParam.Prior.Clone(),
	}
	out.EdgeTransitionParam = BayesianParameter[TransitionWeights, *EdgeTransitionDistribution, *TransitionPrior]{
		Value:       v.EdgeTransitionParam.Value,
		Conditional: v.EdgeTransitionParam.Conditional.Clone(),
		Prior:       v.EdgeTransitionParam.Prior.Clone(),
	}
	return out
}

// PathState returns the particle's current path state point estimate.
func (v *VehicleState) PathState() PathState { return v.PathStateParam.Value }

// CurrentEdge returns the edge the particle currently believes it is
// on, or the null edge when off-road.
func (v *VehicleState) CurrentEdge() PathEdge { return v.PathStateParam.Value.Edge() }

// IsOnRoad reports whether the particle's hypothesis is on-road.
func (v *VehicleState) IsOnRoad() bool { return v.PathStateParam.Value.IsOnRoad() }

// Lineage is an append-only arena of ancestor particles. Particles
// reference their parent by index, so pruning the live population
// during resampling never invalidates ancestry. Shared ancestors (the
// same particle resampled into several descendants) are stored once.
type Lineage struct {
	states []*VehicleState
	ids    map[*VehicleState]ParticleID
}

// NewLineage returns an empty arena.
func NewLineage() *Lineage {
	return &Lineage{ids: make(map[*VehicleState]ParticleID)}
}

// Append stores a state and returns its ID. Appending the same state
// again returns the existing ID.
func (l *Lineage) Append(s *VehicleState) ParticleID {
	if id, ok := l.ids[s]; ok {
		return id
	}
	l.states = append(l.states, s)
	id := ParticleID(len(l.states) - 1)
	l.ids[s] = id
	return id
}

// Get returns the state for the given ID, or nil for NoParent.
func (l *Lineage) Get(id ParticleID) *VehicleState {
	if id == NoParent || int(id) >= len(l.states) {
		return nil
	}
	return l.states[id]
}

// Len returns the number of stored ancestors.
func (l *Lineage) Len() int { return len(l.states) }

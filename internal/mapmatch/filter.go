package mapmatch

import (
	"fmt"
	"math"
	"math/rand"
)

// Filter is the sequential importance resampling loop around the
// updater: it owns one vehicle's particle population, the shared random
// source, and the lineage arena. Not safe for concurrent use; the
// surrounding service keys one filter per vehicle and serialises calls.
type Filter struct {
	updater   *Updater
	particles []*VehicleState
	rng       *rand.Rand

	steps   int
	lastESS float64
}

// NewFilter creates the initial particle population from the first
// observation of a track.
func NewFilter(network RoadNetwork, params Parameters, initialObs Observation, rng *rand.Rand) (*Filter, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	updater, err := NewUpdater(network, params, initialObs, rng)
	if err != nil {
		return nil, err
	}
	particles, err := updater.CreateInitialParticles(params.NumParticles)
	if err != nil {
		return nil, fmt.Errorf("create initial particles: %w", err)
	}
	return &Filter{updater: updater, particles: particles, rng: rng, steps: 1}, nil
}

// Particles returns the current population. The slice is shared and
// must not be modified; duplicate entries are resampled copies.
func (f *Filter) Particles() []*VehicleState { return f.particles }

// Updater returns the underlying state-transition engine.
func (f *Filter) Updater() *Updater { return f.updater }

// Steps returns the number of observations processed, counting the
// initial one.
func (f *Filter) Steps() int { return f.steps }

// Step advances every particle through the new observation, weights
// each by its observation log-likelihood, and resamples the population
// proportional to exponentiated weights. Particles whose update hits a
// fatal precondition abort the whole step; forced off-road degradations
// do not.
func (f *Filter) Step(obs Observation) error {
	updated := make([]*VehicleState, len(f.particles))
	logWeights := make([]float64, len(f.particles))
	for i, p := range f.particles {
		next, err := f.updater.Update(p)
		if err != nil {
			return fmt.Errorf("update particle %d: %w", i, err)
		}
		updated[i] = next
		logWeights[i] = f.updater.ComputeLogLikelihood(next, obs)
	}

	resampled := make([]*VehicleState, len(updated))
	for i := range resampled {
		resampled[i] = updated[sampleLogWeighted(f.rng, logWeights)]
	}
	f.particles = resampled
	f.steps++
	f.lastESS = EffectiveSampleSize(logWeights)
	return nil
}

// LastEffectiveSampleSize returns the ESS of the most recent step's
// pre-resample weights, or 0 before the first step.
func (f *Filter) LastEffectiveSampleSize() float64 { return f.lastESS }

// Estimate summarises the population: the mean ground position and
// velocity, and the modal edge with the share of particles on it (the
// empty ID with its share when the mode is off-road).
type Estimate struct {
	X  float64
	Y  float64
	VX float64
	VY float64

	EdgeID    string
	EdgeShare float64
	OnRoad    bool
}

// Estimate computes the population summary for the current step.
func (f *Filter) Estimate() Estimate {
	var est Estimate
	if len(f.particles) == 0 {
		return est
	}
	edgeCounts := make(map[string]int)
	for _, p := range f.particles {
		gs := p.PathState().GroundView()
		est.X += gs.Pos.X
		est.Y += gs.Pos.Y
		est.VX += gs.Vel.X
		est.VY += gs.Vel.Y
		if edge := p.CurrentEdge(); !edge.IsNull() {
			edgeCounts[edge.Segment.ID]++
		} else {
			edgeCounts[""]++
		}
	}
	n := float64(len(f.particles))
	est.X /= n
	est.Y /= n
	est.VX /= n
	est.VY /= n

	bestCount := -1
	for id, count := range edgeCounts {
		if count > bestCount || (count == bestCount && id < est.EdgeID) {
			bestCount = count
			est.EdgeID = id
		}
	}
	est.EdgeShare = float64(bestCount) / n
	est.OnRoad = est.EdgeID != ""
	return est
}

// EffectiveSampleSize returns the ESS of the given log-weights,
// 1/sum(w_i^2) after normalisation. Diagnostic for population
// degeneracy.
func EffectiveSampleSize(logWeights []float64) float64 {
	maxW := math.Inf(-1)
	for _, w := range logWeights {
		if w > maxW {
			maxW = w
		}
	}
	if !isFinite(maxW) {
		return 0
	}
	var sum, sumSq float64
	for _, w := range logWeights {
		v := math.Exp(w - maxW)
		sum += v
		sumSq += v * v
	}
	if sumSq == 0 {
		return 0
	}
	return sum * sum / sumSq
}

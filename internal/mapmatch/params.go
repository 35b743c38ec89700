package mapmatch

import "fmt"

// Parameters are the construction inputs of the engine. They are opaque
// pass-throughs to the predictor and prior constructors; the updater
// itself does not interpret them.
type Parameters struct {
	// NumParticles is the population size created by the initial
	// particle generator and maintained by the filter.
	NumParticles int

	// ObsFreq is the expected interval between observations in
	// seconds; it is the dt of the constant-velocity motion model.
	ObsFreq float64

	// GroundNoiseVariance is the white-noise acceleration variance of
	// the off-road (4-D) motion model, (m/s^2)^2.
	GroundNoiseVariance float64

	// RoadNoiseVariance is the white-noise acceleration variance of the
	// on-road (2-D) motion model, (m/s^2)^2.
	RoadNoiseVariance float64

	// ObsVariance is the GPS observation noise variance, m^2.
	ObsVariance float64

	// InitialStateVariance is the position variance of the prior belief
	// anchored on the first observation, m^2.
	InitialStateVariance float64

	// EdgeTransitionWeights are the initial on/off-road transition
	// probability pairs.
	EdgeTransitionWeights TransitionWeights

	// EdgeTransitionPrior holds the Dirichlet concentrations behind the
	// transition weights.
	EdgeTransitionPrior TransitionPrior

	// SearchVariance scales the nearby-edge query radius used when an
	// off-road particle considers moving onto the road, m^2.
	SearchVariance float64
}

// DefaultParameters returns the engine defaults. Production deployments
// override these from the tuning config.
func DefaultParameters() Parameters {
	return Parameters{
		NumParticles:         25,
		ObsFreq:              30,
		GroundNoiseVariance:  0.5,
		RoadNoiseVariance:    1.0,
		ObsVariance:          25,
		InitialStateVariance: 100,
		EdgeTransitionWeights: TransitionWeights{
			EdgeMotion: [2]float64{0.05, 0.95},
			FreeMotion: [2]float64{0.95, 0.05},
		},
		EdgeTransitionPrior: TransitionPrior{
			EdgeMotion: [2]float64{1, 19},
			FreeMotion: [2]float64{19, 1},
		},
		SearchVariance: 100,
	}
}

// Validate checks the parameters for values the engine cannot run with.
func (p Parameters) Validate() error {
	if p.NumParticles <= 0 {
		return fmt.Errorf("NumParticles must be positive, got %d", p.NumParticles)
	}
	if p.ObsFreq <= 0 {
		return fmt.Errorf("ObsFreq must be positive, got %v", p.ObsFreq)
	}
	if p.ObsVariance <= 0 {
		return fmt.Errorf("ObsVariance must be positive, got %v", p.ObsVariance)
	}
	if p.InitialStateVariance <= 0 {
		return fmt.Errorf("InitialStateVariance must be positive, got %v", p.InitialStateVariance)
	}
	if p.GroundNoiseVariance < 0 || p.RoadNoiseVariance < 0 {
		return fmt.Errorf("noise variances must be non-negative")
	}
	if p.SearchVariance <= 0 {
		return fmt.Errorf("SearchVariance must be positive, got %v", p.SearchVariance)
	}
	return nil
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/roadsense/mapmatch/internal/mapmatch"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for filter tuning
// parameters. All fields are pointers so that a partial JSON file only
// overrides what it names; the Get* methods supply fallbacks for the
// rest.
type TuningConfig struct {
	// Filter params
	NumParticles   *int     `json:"num_particles,omitempty"`
	ObsFreqSeconds *float64 `json:"obs_freq_seconds,omitempty"`

	// Motion model params
	GroundNoiseVariance  *float64 `json:"ground_noise_variance,omitempty"`
	RoadNoiseVariance    *float64 `json:"road_noise_variance,omitempty"`
	ObsVariance          *float64 `json:"obs_variance,omitempty"`
	InitialStateVariance *float64 `json:"initial_state_variance,omitempty"`

	// Edge transition params. Weight pairs are [leave, stay] for
	// on-edge motion and [stay, enter] for free motion.
	EdgeMotionWeights *[2]float64 `json:"edge_motion_weights,omitempty"`
	FreeMotionWeights *[2]float64 `json:"free_motion_weights,omitempty"`
	EdgeMotionPrior   *[2]float64 `json:"edge_motion_prior,omitempty"`
	FreeMotionPrior   *[2]float64 `json:"free_motion_prior,omitempty"`

	// Edge search params
	SearchVariance *float64 `json:"search_variance,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under
// the max file size. Fields omitted from the JSON file retain their
// default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory
// and common parent directories. Panics if the file cannot be loaded,
// intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.NumParticles != nil && *c.NumParticles <= 0 {
		return fmt.Errorf("num_particles must be positive, got %d", *c.NumParticles)
	}
	if c.ObsFreqSeconds != nil && *c.ObsFreqSeconds <= 0 {
		return fmt.Errorf("obs_freq_seconds must be positive, got %f", *c.ObsFreqSeconds)
	}
	if c.GroundNoiseVariance != nil && *c.GroundNoiseVariance < 0 {
		return fmt.Errorf("ground_noise_variance must be non-negative, got %f", *c.GroundNoiseVariance)
	}
	if c.RoadNoiseVariance != nil && *c.RoadNoiseVariance < 0 {
		return fmt.Errorf("road_noise_variance must be non-negative, got %f", *c.RoadNoiseVariance)
	}
	if c.ObsVariance != nil && *c.ObsVariance <= 0 {
		return fmt.Errorf("obs_variance must be positive, got %f", *c.ObsVariance)
	}
	if c.InitialStateVariance != nil && *c.InitialStateVariance <= 0 {
		return fmt.Errorf("initial_state_variance must be positive, got %f", *c.InitialStateVariance)
	}
	if c.SearchVariance != nil && *c.SearchVariance <= 0 {
		return fmt.Errorf("search_variance must be positive, got %f", *c.SearchVariance)
	}
	pairs := []struct {
		name string
		pair *[2]float64
	}{
		{"edge_motion_weights", c.EdgeMotionWeights},
		{"free_motion_weights", c.FreeMotionWeights},
		{"edge_motion_prior", c.EdgeMotionPrior},
		{"free_motion_prior", c.FreeMotionPrior},
	}
	for _, p := range pairs {
		if p.pair == nil {
			continue
		}
		if p.pair[0] < 0 || p.pair[1] < 0 {
			return fmt.Errorf("%s entries must be non-negative, got %v", p.name, *p.pair)
		}
		if p.pair[0]+p.pair[1] == 0 {
			return fmt.Errorf("%s must not be all-zero", p.name)
		}
	}
	return nil
}

// GetNumParticles returns the num_particles value or the default.
func (c *TuningConfig) GetNumParticles() int {
	if c.NumParticles == nil {
		return 25 // default
	}
	return *c.NumParticles
}

// GetObsFreqSeconds returns the obs_freq_seconds value or the default.
func (c *TuningConfig) GetObsFreqSeconds() float64 {
	if c.ObsFreqSeconds == nil {
		return 30 // default
	}
	return *c.ObsFreqSeconds
}

// GetGroundNoiseVariance returns the ground_noise_variance value or the default.
func (c *TuningConfig) GetGroundNoiseVariance() float64 {
	if c.GroundNoiseVariance == nil {
		return 0.5
	}
	return *c.GroundNoiseVariance
}

// GetRoadNoiseVariance returns the road_noise_variance value or the default.
func (c *TuningConfig) GetRoadNoiseVariance() float64 {
	if c.RoadNoiseVariance == nil {
		return 1.0
	}
	return *c.RoadNoiseVariance
}

// GetObsVariance returns the obs_variance value or the default.
func (c *TuningConfig) GetObsVariance() float64 {
	if c.ObsVariance == nil {
		return 25
	}
	return *c.ObsVariance
}

// GetInitialStateVariance returns the initial_state_variance value or the default.
func (c *TuningConfig) GetInitialStateVariance() float64 {
	if c.InitialStateVariance == nil {
		return 100
	}
	return *c.InitialStateVariance
}

// GetEdgeMotionWeights returns the edge_motion_weights pair or the default.
func (c *TuningConfig) GetEdgeMotionWeights() [2]float64 {
	if c.EdgeMotionWeights == nil {
		return [2]float64{0.05, 0.95}
	}
	return *c.EdgeMotionWeights
}

// GetFreeMotionWeights returns the free_motion_weights pair or the default.
func (c *TuningConfig) GetFreeMotionWeights() [2]float64 {
	if c.FreeMotionWeights == nil {
		return [2]float64{0.95, 0.05}
	}
	return *c.FreeMotionWeights
}

// GetEdgeMotionPrior returns the edge_motion_prior pair or the default.
func (c *TuningConfig) GetEdgeMotionPrior() [2]float64 {
	if c.EdgeMotionPrior == nil {
		return [2]float64{1, 19}
	}
	return *c.EdgeMotionPrior
}

// GetFreeMotionPrior returns the free_motion_prior pair or the default.
func (c *TuningConfig) GetFreeMotionPrior() [2]float64 {
	if c.FreeMotionPrior == nil {
		return [2]float64{19, 1}
	}
	return *c.FreeMotionPrior
}

// GetSearchVariance returns the search_variance value or the default.
func (c *TuningConfig) GetSearchVariance() float64 {
	if c.SearchVariance == nil {
		return 100
	}
	return *c.SearchVariance
}

// ToParameters converts the tuning config into engine parameters,
// applying defaults for every unset field.
func (c *TuningConfig) ToParameters() mapmatch.Parameters {
	return mapmatch.Parameters{
		NumParticles:         c.GetNumParticles(),
		ObsFreq:              c.GetObsFreqSeconds(),
		GroundNoiseVariance:  c.GetGroundNoiseVariance(),
		RoadNoiseVariance:    c.GetRoadNoiseVariance(),
		ObsVariance:          c.GetObsVariance(),
		InitialStateVariance: c.GetInitialStateVariance(),
		EdgeTransitionWeights: mapmatch.TransitionWeights{
			EdgeMotion: c.GetEdgeMotionWeights(),
			FreeMotion: c.GetFreeMotionWeights(),
		},
		EdgeTransitionPrior: mapmatch.TransitionPrior{
			EdgeMotion: c.GetEdgeMotionPrior(),
			FreeMotion: c.GetFreeMotionPrior(),
		},
		SearchVariance: c.GetSearchVariance(),
	}
}

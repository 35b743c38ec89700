// Package inference dispatches observation streams to per-vehicle
// map-matching filters. One vehicle's stream is processed serially;
// distinct vehicles are independent and may be processed concurrently,
// each owning its own filter, random source, and particle population.
package inference

import (
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadsense/mapmatch/internal/mapmatch"
)

// TraceRecord is the per-observation output of a vehicle's filter: the
// population estimate alongside the raw observation.
type TraceRecord struct {
	RunID     string
	VehicleID string
	Time      time.Time
	Step      int

	ObsX float64
	ObsY float64

	Estimate mapmatch.Estimate
}

// Instance is the inference state of a single vehicle. All calls are
// serialised by the instance mutex.
type Instance struct {
	mu sync.Mutex

	vehicleID string
	runID     string
	filter    *mapmatch.Filter
	records   []TraceRecord
}

// VehicleID returns the vehicle this instance tracks.
func (in *Instance) VehicleID() string { return in.vehicleID }

// RunID returns the identifier of this inference run.
func (in *Instance) RunID() string { return in.runID }

// Filter exposes the underlying particle filter for diagnostics.
func (in *Instance) Filter() *mapmatch.Filter { return in.filter }

// Records returns a copy of the trace records accumulated so far.
func (in *Instance) Records() []TraceRecord {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := make([]TraceRecord, len(in.records))
	copy(out, in.records)
	return out
}

// Service owns the vehicle → instance map. Safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	instances map[string]*Instance

	network mapmatch.RoadNetwork
	params  mapmatch.Parameters
	seed    func(vehicleID string) int64
	log     *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger replaces the service logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithSeeder replaces the per-vehicle random seed function. The default
// derives a stable seed from the vehicle ID so runs reproduce.
func WithSeeder(seed func(vehicleID string) int64) Option {
	return func(s *Service) { s.seed = seed }
}

// NewService builds a dispatch service over the given road network.
func NewService(network mapmatch.RoadNetwork, params mapmatch.Parameters, opts ...Option) (*Service, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("inference parameters: %w", err)
	}
	s := &Service{
		instances: make(map[string]*Instance),
		network:   network,
		params:    params,
		seed:      stableSeed,
		log:       log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// stableSeed hashes a vehicle ID to a seed so a replayed stream
// produces an identical run.
func stableSeed(vehicleID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(vehicleID))
	return int64(h.Sum64())
}

// Process routes one observation to its vehicle's instance, creating
// the instance (and its initial particle population) on first contact.
// Returns the trace record produced for this observation.
func (s *Service) Process(obs mapmatch.Observation) (TraceRecord, error) {
	if obs.VehicleID == "" {
		return TraceRecord{}, fmt.Errorf("observation missing vehicle ID")
	}
	instance, created, err := s.instance(obs)
	if err != nil {
		return TraceRecord{}, err
	}

	instance.mu.Lock()
	defer instance.mu.Unlock()

	if !created {
		if err := instance.filter.Step(obs); err != nil {
			return TraceRecord{}, fmt.Errorf("vehicle %s: %w", obs.VehicleID, err)
		}
	}

	rec := TraceRecord{
		RunID:     instance.runID,
		VehicleID: obs.VehicleID,
		Time:      obs.Time,
		Step:      instance.filter.Steps(),
		ObsX:      obs.Point.X,
		ObsY:      obs.Point.Y,
		Estimate:  instance.filter.Estimate(),
	}
	instance.records = append(instance.records, rec)
	return rec, nil
}

// instance returns the vehicle's instance, creating it on first
// contact. The boolean reports whether this call created it (in which
// case the observation has already been consumed as the filter's
// initial observation).
func (s *Service) instance(obs mapmatch.Observation) (*Instance, bool, error) {
	s.mu.RLock()
	existing := s.instances[obs.VehicleID]
	s.mu.RUnlock()
	if existing != nil {
		return existing, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.instances[obs.VehicleID]; existing != nil {
		return existing, false, nil
	}

	rng := rand.New(rand.NewSource(s.seed(obs.VehicleID)))
	filter, err := mapmatch.NewFilter(s.network, s.params, obs, rng)
	if err != nil {
		return nil, false, fmt.Errorf("vehicle %s: start filter: %w", obs.VehicleID, err)
	}
	instance := &Instance{
		vehicleID: obs.VehicleID,
		runID:     uuid.NewString(),
		filter:    filter,
	}
	s.instances[obs.VehicleID] = instance
	s.log.Printf("inference: started run %s for vehicle %s (%d particles)",
		instance.runID, obs.VehicleID, s.params.NumParticles)
	return instance, true, nil
}

// Instance returns the live instance for a vehicle, or nil.
func (s *Service) Instance(vehicleID string) *Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instances[vehicleID]
}

// Vehicles returns the IDs of all vehicles with live instances.
func (s *Service) Vehicles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.instances))
	for id := range s.instances {
		out = append(out, id)
	}
	return out
}

// Remove drops a vehicle's instance and its accumulated trace.
func (s *Service) Remove(vehicleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, vehicleID)
}

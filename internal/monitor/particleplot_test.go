package monitor

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roadsense/mapmatch/internal/geo"
	"github.com/roadsense/mapmatch/internal/graph"
	"github.com/roadsense/mapmatch/internal/mapmatch"
	"github.com/roadsense/mapmatch/internal/testutil"
)

func testFilter(t *testing.T) *mapmatch.Filter {
	t.Helper()

	g := graph.New()
	if _, err := g.AddSegment("a", geo.Polyline{{X: 0, Y: 0}, {X: 100, Y: 0}}); err != nil {
		t.Fatalf("AddSegment failed: %v", err)
	}

	params := mapmatch.DefaultParameters()
	params.NumParticles = 10
	params.ObsFreq = 1

	obs := mapmatch.Observation{
		VehicleID: "veh-1",
		Time:      time.Unix(0, 0),
		Point:     geo.Point{X: 5, Y: 1},
	}
	f, err := mapmatch.NewFilter(g, params, obs, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("NewFilter failed: %v", err)
	}
	return f
}

func TestNewParticlePlotter(t *testing.T) {
	pp := NewParticlePlotter("veh-1")

	if pp == nil {
		t.Fatal("NewParticlePlotter returned nil")
	}
	if pp.vehicleID != "veh-1" {
		t.Errorf("expected vehicleID 'veh-1', got '%s'", pp.vehicleID)
	}
	if pp.enabled {
		t.Error("expected enabled to be false initially")
	}
}

func TestParticlePlotter_StartStop(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	outputDir := t.TempDir()

	if err := pp.Start(outputDir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !pp.IsEnabled() {
		t.Error("expected plotter to be enabled after Start")
	}
	if pp.GetOutputDir() != outputDir {
		t.Errorf("expected outputDir '%s', got '%s'", outputDir, pp.GetOutputDir())
	}

	pp.Stop()
	if pp.IsEnabled() {
		t.Error("expected plotter to be disabled after Stop")
	}
}

func TestParticlePlotter_StartCreatesDirectory(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	nestedDir := filepath.Join(t.TempDir(), "nested", "plots")

	if err := pp.Start(nestedDir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := os.Stat(nestedDir); err != nil {
		t.Errorf("expected output directory to exist: %v", err)
	}
}

func TestParticlePlotter_SampleDisabled(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	f := testFilter(t)

	// Sampling before Start is a no-op.
	pp.Sample(f, mapmatch.Observation{}, mapmatch.Estimate{})
	if pp.GetSampleCount() != 0 {
		t.Errorf("expected 0 samples while disabled, got %d", pp.GetSampleCount())
	}
}

func TestParticlePlotter_SampleRecordsPopulation(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	if err := pp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f := testFilter(t)
	obs := mapmatch.Observation{Point: geo.Point{X: 5, Y: 1}}
	pp.Sample(f, obs, f.Estimate())
	pp.SetEffectiveSize(8.5)

	if pp.GetSampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", pp.GetSampleCount())
	}
	s := pp.samples[0]
	if len(s.Particles) != len(f.Particles()) {
		t.Errorf("expected %d particle samples, got %d", len(f.Particles()), len(s.Particles))
	}
	if s.ObsX != 5 || s.ObsY != 1 {
		t.Errorf("expected observation (5, 1), got (%f, %f)", s.ObsX, s.ObsY)
	}
	if s.EffectiveSize != 8.5 {
		t.Errorf("expected effective size 8.5, got %f", s.EffectiveSize)
	}
}

func TestParticlePlotter_GeneratePlots(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	outputDir := t.TempDir()
	if err := pp.Start(outputDir); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	f := testFilter(t)
	for i := 0; i < 3; i++ {
		obs := mapmatch.Observation{
			Time:  time.Unix(int64(i+1), 0),
			Point: geo.Point{X: float64(5 + i*10), Y: 1},
		}
		testutil.AssertNoError(t, f.Step(obs))
		pp.Sample(f, obs, f.Estimate())
		pp.SetEffectiveSize(f.LastEffectiveSampleSize())
	}
	pp.Stop()

	count, err := pp.GeneratePlots()
	testutil.AssertNoError(t, err)
	if count != 3 {
		t.Errorf("expected 3 plots, got %d", count)
	}

	for _, name := range []string{"particle_cloud.png", "track.png", "onroad_fraction.png", "ess.png"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestParticlePlotter_GeneratePlotsNoSamples(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	if err := pp.Start(t.TempDir()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	count, err := pp.GeneratePlots()
	if err != nil {
		t.Fatalf("GeneratePlots failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 plots with no samples, got %d", count)
	}
}

func TestParticlePlotter_GeneratePlotsWithoutStart(t *testing.T) {
	pp := NewParticlePlotter("veh-1")
	if _, err := pp.GeneratePlots(); err == nil {
		t.Error("expected error when output directory not configured")
	}
}

package inference

import (
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roadsense/mapmatch/internal/geo"
	"github.com/roadsense/mapmatch/internal/graph"
	"github.com/roadsense/mapmatch/internal/mapmatch"
)

func testNetwork(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	if _, err := g.AddSegment("a", geo.Polyline{{X: 0, Y: 0}, {X: 100, Y: 0}}); err != nil {
		t.Fatal(err)
	}
	return g
}

func testService(t *testing.T) *Service {
	t.Helper()
	p := mapmatch.DefaultParameters()
	p.NumParticles = 10
	p.ObsFreq = 1
	s, err := NewService(testNetwork(t), p, WithLogger(log.New(io.Discard, "", 0)))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func obsAt(vehicle string, x, y float64, step int) mapmatch.Observation {
	return mapmatch.Observation{
		VehicleID: vehicle,
		Time:      time.Unix(1700000000, 0).Add(time.Duration(step) * time.Second),
		Point:     geo.Point{X: x, Y: y},
	}
}

func TestProcessCreatesInstancePerVehicle(t *testing.T) {
	s := testService(t)

	rec, err := s.Process(obsAt("bus-1", 5, 1, 0))
	require.NoError(t, err)
	require.Equal(t, "bus-1", rec.VehicleID)
	require.Equal(t, 1, rec.Step)
	require.NotEmpty(t, rec.RunID)

	_, err = s.Process(obsAt("bus-2", 50, 1, 0))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"bus-1", "bus-2"}, s.Vehicles())

	// Distinct vehicles get distinct runs.
	require.NotEqual(t, s.Instance("bus-1").RunID(), s.Instance("bus-2").RunID())
}

func TestProcessAdvancesSteps(t *testing.T) {
	s := testService(t)
	for i := 0; i < 4; i++ {
		rec, err := s.Process(obsAt("bus-1", float64(5+10*i), 0.5, i))
		require.NoError(t, err)
		require.Equal(t, i+1, rec.Step)
	}
	require.Len(t, s.Instance("bus-1").Records(), 4)
}

func TestProcessRejectsMissingVehicleID(t *testing.T) {
	s := testService(t)
	_, err := s.Process(obsAt("", 0, 0, 0))
	require.Error(t, err)
}

func TestVehiclesAreIndependentAndReproducible(t *testing.T) {
	run := func() []TraceRecord {
		s := testService(t)
		var wg sync.WaitGroup
		for _, vehicle := range []string{"v1", "v2", "v3"} {
			wg.Add(1)
			go func(vehicle string) {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					if _, err := s.Process(obsAt(vehicle, float64(5+10*i), 1, i)); err != nil {
						t.Error(err)
						return
					}
				}
			}(vehicle)
		}
		wg.Wait()
		return s.Instance("v2").Records()
	}

	first := run()
	second := run()
	require.Len(t, first, 5)
	// Seeds derive from the vehicle ID, so interleaving with other
	// vehicles cannot change a vehicle's trajectory.
	for i := range first {
		require.Equal(t, first[i].Estimate, second[i].Estimate, "step %d", i)
	}
}

func TestStableSeed(t *testing.T) {
	if stableSeed("bus-42") != stableSeed("bus-42") {
		t.Error("stableSeed not deterministic for identical IDs")
	}
	if stableSeed("bus-42") == stableSeed("bus-43") {
		t.Error("stableSeed collides for distinct IDs")
	}
}

func TestRemoveDropsInstance(t *testing.T) {
	s := testService(t)
	_, err := s.Process(obsAt("bus-1", 5, 1, 0))
	require.NoError(t, err)
	s.Remove("bus-1")
	require.Nil(t, s.Instance("bus-1"))
	require.Empty(t, s.Vehicles())
}

// Command mapmatch replays a CSV observation log against a road
// network and writes map-matched traces.
//
// The observation file has one record per line:
//
//	vehicle_id,time,x,y
//
// where time is RFC3339 or unix seconds and x/y are planar metres in
// the same frame as the network GeoJSON.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/roadsense/mapmatch/internal/config"
	"github.com/roadsense/mapmatch/internal/geo"
	"github.com/roadsense/mapmatch/internal/graph"
	"github.com/roadsense/mapmatch/internal/inference"
	"github.com/roadsense/mapmatch/internal/mapmatch"
	"github.com/roadsense/mapmatch/internal/monitor"
	"github.com/roadsense/mapmatch/internal/storage"
	"github.com/roadsense/mapmatch/internal/units"
)

var (
	networkPath = flag.String("network", "", "Road network GeoJSON file (required)")
	obsPath     = flag.String("obs", "", "Observation CSV file (default stdin)")
	configPath  = flag.String("config", "", "Tuning config JSON (defaults used when unset)")
	dbPath      = flag.String("db", "", "SQLite file to persist traces (optional)")
	plotDir     = flag.String("plots", "", "Directory for diagnostic plots (optional)")
	speedUnits  = flag.String("units", units.MPS, "Speed units for output: "+units.ValidUnitsString())
	quiet       = flag.Bool("quiet", false, "Suppress per-trace CSV output on stdout")
)

func main() {
	flag.Parse()

	if *networkPath == "" {
		log.Fatal("-network is required")
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, valid values: %s", *speedUnits, units.ValidUnitsString())
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	params := cfg.ToParameters()

	network, err := graph.LoadGeoJSON(*networkPath)
	if err != nil {
		log.Fatalf("failed to load network: %v", err)
	}
	log.Printf("Loaded network: %d segments", network.NumSegments())

	svc, err := inference.NewService(network, params)
	if err != nil {
		log.Fatalf("failed to create inference service: %v", err)
	}

	var db *storage.TraceDB
	if *dbPath != "" {
		db, err = storage.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open trace database: %v", err)
		}
		defer db.Close()
	}

	in := os.Stdin
	if *obsPath != "" {
		f, err := os.Open(*obsPath)
		if err != nil {
			log.Fatalf("failed to open observation file: %v", err)
		}
		defer f.Close()
		in = f
	}

	plotters := make(map[string]*monitor.ParticlePlotter)

	if !*quiet {
		fmt.Println("vehicle_id,time,step,est_x,est_y,speed,edge_id,edge_share,on_road")
	}

	reader := csv.NewReader(in)
	reader.FieldsPerRecord = 4
	var pending []inference.TraceRecord
	line := 0
	processed := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			log.Fatalf("line %d: %v", line, err)
		}
		if line == 1 && record[0] == "vehicle_id" {
			continue // header
		}

		obs, err := parseObservation(record)
		if err != nil {
			log.Fatalf("line %d: %v", line, err)
		}

		trace, err := svc.Process(obs)
		if err != nil {
			log.Fatalf("line %d: %v", line, err)
		}
		processed++

		if *plotDir != "" {
			pp := plotters[obs.VehicleID]
			if pp == nil {
				pp = monitor.NewParticlePlotter(obs.VehicleID)
				dir := filepath.Join(*plotDir, obs.VehicleID)
				if err := pp.Start(dir); err != nil {
					log.Fatalf("failed to start plotter: %v", err)
				}
				plotters[obs.VehicleID] = pp
			}
			f := svc.Instance(obs.VehicleID).Filter()
			pp.Sample(f, obs, trace.Estimate)
			pp.SetEffectiveSize(f.LastEffectiveSampleSize())
		}

		if db != nil {
			pending = append(pending, trace)
			if len(pending) >= 100 {
				if err := db.InsertTraces(pending); err != nil {
					log.Fatalf("failed to persist traces: %v", err)
				}
				pending = pending[:0]
			}
		}

		if !*quiet {
			e := trace.Estimate
			speed := units.ConvertSpeed(math.Hypot(e.VX, e.VY), *speedUnits)
			fmt.Printf("%s,%s,%d,%.3f,%.3f,%.3f,%s,%.4f,%t\n",
				trace.VehicleID, trace.Time.Format(time.RFC3339), trace.Step,
				e.X, e.Y, speed, e.EdgeID, e.EdgeShare, e.OnRoad)
		}
	}

	if db != nil && len(pending) > 0 {
		if err := db.InsertTraces(pending); err != nil {
			log.Fatalf("failed to persist traces: %v", err)
		}
	}

	for id, pp := range plotters {
		pp.Stop()
		n, err := pp.GeneratePlots()
		if err != nil {
			log.Printf("plots for %s: %v", id, err)
			continue
		}
		log.Printf("Wrote %d plots for %s to %s", n, id, pp.GetOutputDir())
	}

	log.Printf("Processed %d observations for %d vehicles", processed, len(svc.Vehicles()))
}

// parseObservation converts a vehicle_id,time,x,y CSV record.
func parseObservation(record []string) (mapmatch.Observation, error) {
	var obs mapmatch.Observation
	obs.VehicleID = record[0]
	if obs.VehicleID == "" {
		return obs, fmt.Errorf("empty vehicle_id")
	}

	ts, err := parseTime(record[1])
	if err != nil {
		return obs, fmt.Errorf("invalid time %q: %w", record[1], err)
	}
	obs.Time = ts

	x, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return obs, fmt.Errorf("invalid x %q: %w", record[2], err)
	}
	y, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return obs, fmt.Errorf("invalid y %q: %w", record[3], err)
	}
	obs.Point = geo.Point{X: x, Y: y}
	return obs, nil
}

// parseTime accepts RFC3339 or unix seconds (fractional allowed).
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("not RFC3339 or unix seconds")
	}
	return time.Unix(0, int64(sec*float64(time.Second))), nil
}

// Package monitor records filter internals during a run and renders
// them as diagnostic PNG plots after the run. It is off by default and
// costs nothing when disabled.
package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roadsense/mapmatch/internal/mapmatch"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ParticlePlotter records the particle cloud over time for
// visualization. It samples the filter population on each call to
// Sample(), accumulating time series data that can be plotted after a
// run.
type ParticlePlotter struct {
	mu        sync.Mutex
	enabled   bool
	outputDir string
	vehicleID string

	samples []StepSample

	// startTime is the timestamp of the first sample
	startTime time.Time
	stepIdx   int
}

// ParticleSample represents one particle's projection at one step.
type ParticleSample struct {
	X, Y   float64
	OnRoad bool
}

// StepSample represents one snapshot of the filter state.
type StepSample struct {
	StepIdx   int
	Timestamp time.Time
	// Observation fed to the filter at this step
	ObsX, ObsY float64
	// Weighted posterior estimate
	EstX, EstY float64
	// Population diagnostics
	Particles     []ParticleSample
	OnRoadCount   int
	EffectiveSize float64
}

// NewParticlePlotter creates a plotter for the given vehicle.
func NewParticlePlotter(vehicleID string) *ParticlePlotter {
	return &ParticlePlotter{vehicleID: vehicleID}
}

// Start initializes the plotter for a new run.
// outputDir should be a timestamped directory (e.g., "plots/bus-42/20260830_101500")
func (pp *ParticlePlotter) Start(outputDir string) error {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	pp.outputDir = outputDir
	pp.enabled = true
	pp.startTime = time.Time{}
	pp.stepIdx = 0
	pp.samples = nil
	return nil
}

// Stop disables sampling. Call GeneratePlots() to produce output files.
func (pp *ParticlePlotter) Stop() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.enabled = false
}

// IsEnabled returns true if the plotter is currently recording.
func (pp *ParticlePlotter) IsEnabled() bool {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.enabled
}

// Sample captures the population state after one filter step.
// Call this once per observation.
func (pp *ParticlePlotter) Sample(f *mapmatch.Filter, obs mapmatch.Observation, est mapmatch.Estimate) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if !pp.enabled || f == nil {
		return
	}

	now := time.Now()
	if pp.startTime.IsZero() {
		pp.startTime = now
	}
	pp.stepIdx++

	particles := f.Particles()
	sample := StepSample{
		StepIdx:   pp.stepIdx,
		Timestamp: now,
		ObsX:      obs.Point.X,
		ObsY:      obs.Point.Y,
		EstX:      est.X,
		EstY:      est.Y,
		Particles: make([]ParticleSample, 0, len(particles)),
	}
	for _, p := range particles {
		ps := p.PathState()
		g := ps.GroundView()
		sample.Particles = append(sample.Particles, ParticleSample{
			X:      g.Pos.X,
			Y:      g.Pos.Y,
			OnRoad: ps.IsOnRoad(),
		})
		if ps.IsOnRoad() {
			sample.OnRoadCount++
		}
	}

	pp.samples = append(pp.samples, sample)
}

// GeneratePlots creates PNG files showing the particle cloud, the
// estimated track against raw observations, and the population
// diagnostics over time. Returns the number of plots generated.
func (pp *ParticlePlotter) GeneratePlots() (int, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()

	if pp.outputDir == "" {
		return 0, fmt.Errorf("no output directory configured")
	}
	if len(pp.samples) == 0 {
		return 0, nil
	}

	plotCount := 0
	if err := pp.generateCloudPlot(); err != nil {
		return plotCount, fmt.Errorf("cloud plot: %w", err)
	}
	plotCount++
	if err := pp.generateTrackPlot(); err != nil {
		return plotCount, fmt.Errorf("track plot: %w", err)
	}
	plotCount++
	if err := pp.generateDiagnosticsPlot(); err != nil {
		return plotCount, fmt.Errorf("diagnostics plot: %w", err)
	}
	plotCount++

	return plotCount, nil
}

// generateCloudPlot scatters every particle position, one colour per
// step, so edge-snapping and dispersion are visible at a glance.
func (pp *ParticlePlotter) generateCloudPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Particle Cloud", pp.vehicleID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	colors := generateColors(len(pp.samples))

	for i, s := range pp.samples {
		pts := make(plotter.XYs, 0, len(s.Particles))
		for _, part := range s.Particles {
			pts = append(pts, plotter.XY{X: part.X, Y: part.Y})
		}
		if len(pts) == 0 {
			continue
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		scatter.GlyphStyle.Color = colors[i]
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
	}

	file := filepath.Join(pp.outputDir, "particle_cloud.png")
	if err := p.Save(10*vg.Inch, 10*vg.Inch, file); err != nil {
		return fmt.Errorf("save cloud plot: %w", err)
	}
	return nil
}

// generateTrackPlot draws the posterior estimate track over the raw
// observations.
func (pp *ParticlePlotter) generateTrackPlot() error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Estimated Track", pp.vehicleID)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	obsPts := make(plotter.XYs, 0, len(pp.samples))
	estPts := make(plotter.XYs, 0, len(pp.samples))
	for _, s := range pp.samples {
		obsPts = append(obsPts, plotter.XY{X: s.ObsX, Y: s.ObsY})
		estPts = append(estPts, plotter.XY{X: s.EstX, Y: s.EstY})
	}

	obsScatter, err := plotter.NewScatter(obsPts)
	if err != nil {
		return err
	}
	obsScatter.GlyphStyle.Color = color.RGBA{R: 200, G: 60, B: 60, A: 255}
	obsScatter.GlyphStyle.Radius = vg.Points(2)
	p.Add(obsScatter)
	p.Legend.Add("observed", obsScatter)

	estLine, err := plotter.NewLine(estPts)
	if err != nil {
		return err
	}
	estLine.Color = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	estLine.Width = vg.Points(1.5)
	p.Add(estLine)
	p.Legend.Add("estimated", estLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	file := filepath.Join(pp.outputDir, "track.png")
	if err := p.Save(10*vg.Inch, 10*vg.Inch, file); err != nil {
		return fmt.Errorf("save track plot: %w", err)
	}
	return nil
}

// generateDiagnosticsPlot charts on-road fraction and effective sample
// size per step.
func (pp *ParticlePlotter) generateDiagnosticsPlot() error {
	pOn := plot.New()
	pOn.Title.Text = fmt.Sprintf("%s - On-Road Fraction", pp.vehicleID)
	pOn.X.Label.Text = "Step"
	pOn.Y.Label.Text = "Fraction"
	pOn.Y.Min = 0
	pOn.Y.Max = 1

	pESS := plot.New()
	pESS.Title.Text = fmt.Sprintf("%s - Effective Sample Size", pp.vehicleID)
	pESS.X.Label.Text = "Step"
	pESS.Y.Label.Text = "ESS"

	onPts := make(plotter.XYs, 0, len(pp.samples))
	essPts := make(plotter.XYs, 0, len(pp.samples))
	for _, s := range pp.samples {
		if n := len(s.Particles); n > 0 {
			onPts = append(onPts, plotter.XY{X: float64(s.StepIdx), Y: float64(s.OnRoadCount) / float64(n)})
		}
		if s.EffectiveSize > 0 {
			essPts = append(essPts, plotter.XY{X: float64(s.StepIdx), Y: s.EffectiveSize})
		}
	}

	onLine, err := plotter.NewLine(onPts)
	if err != nil {
		return err
	}
	onLine.Width = vg.Points(1)
	pOn.Add(onLine)

	onFile := filepath.Join(pp.outputDir, "onroad_fraction.png")
	if err := pOn.Save(14*vg.Inch, 6*vg.Inch, onFile); err != nil {
		return fmt.Errorf("save on-road plot: %w", err)
	}

	if len(essPts) > 0 {
		essLine, err := plotter.NewLine(essPts)
		if err != nil {
			return err
		}
		essLine.Width = vg.Points(1)
		pESS.Add(essLine)

		essFile := filepath.Join(pp.outputDir, "ess.png")
		if err := pESS.Save(14*vg.Inch, 6*vg.Inch, essFile); err != nil {
			return fmt.Errorf("save ess plot: %w", err)
		}
	}
	return nil
}

// SetEffectiveSize records the effective sample size for the most
// recent sample. Kept separate because resample weights are computed
// after the population snapshot.
func (pp *ParticlePlotter) SetEffectiveSize(ess float64) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if len(pp.samples) == 0 {
		return
	}
	pp.samples[len(pp.samples)-1].EffectiveSize = ess
}

// GetOutputDir returns the configured output directory.
func (pp *ParticlePlotter) GetOutputDir() string {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.outputDir
}

// GetSampleCount returns the number of recorded steps.
func (pp *ParticlePlotter) GetSampleCount() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.samples)
}

// generateColors creates a palette of distinct colors for step scatter
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

package mapmatch

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/geo"
)

// Observation is one noisy GPS fix, already projected into the local
// planar frame shared with the road network.
type Observation struct {
	VehicleID string
	Time      time.Time
	Point     geo.Point
}

// ProjectedPoint returns the observed position as a 2-vector.
func (o Observation) ProjectedPoint() *mat.VecDense {
	return mat.NewVecDense(2, []float64{o.Point.X, o.Point.Y})
}

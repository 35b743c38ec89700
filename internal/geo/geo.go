// Package geo provides planar geometry primitives shared by the road graph
// and the map-matching engine. All coordinates are projected metres in a
// local east/north frame; callers are responsible for projecting WGS84
// input before it reaches this package.
package geo

import "math"

// Point is a position (or free vector) in the local planar frame.
type Point struct {
	X float64
	Y float64
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{p.X + q.X, p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Scale returns p scaled by s.
func (p Point) Scale(s float64) Point { return Point{p.X * s, p.Y * s} }

// Dot returns the dot product of p and q treated as vectors.
func (p Point) Dot(q Point) float64 { return p.X*q.X + p.Y*q.Y }

// Norm returns the Euclidean length of p treated as a vector.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 { return p.Sub(q).Norm() }

// Polyline is an ordered sequence of at least two points.
type Polyline []Point

// Length returns the total length of the polyline.
func (pl Polyline) Length() float64 {
	var total float64
	for i := 1; i < len(pl); i++ {
		total += pl[i].Dist(pl[i-1])
	}
	return total
}

// PointAt returns the point at the given distance along the polyline.
// Distances are clamped to [0, Length()].
func (pl Polyline) PointAt(dist float64) Point {
	if len(pl) == 0 {
		return Point{}
	}
	if dist <= 0 {
		return pl[0]
	}
	remaining := dist
	for i := 1; i < len(pl); i++ {
		seg := pl[i].Sub(pl[i-1])
		segLen := seg.Norm()
		if remaining <= segLen && segLen > 0 {
			return pl[i-1].Add(seg.Scale(remaining / segLen))
		}
		remaining -= segLen
	}
	return pl[len(pl)-1]
}

// DirectionAt returns the unit tangent of the polyline at the given
// distance along it. For degenerate (zero-length) polylines the zero
// vector is returned.
func (pl Polyline) DirectionAt(dist float64) Point {
	if len(pl) < 2 {
		return Point{}
	}
	remaining := dist
	for i := 1; i < len(pl); i++ {
		seg := pl[i].Sub(pl[i-1])
		segLen := seg.Norm()
		if (remaining <= segLen || i == len(pl)-1) && segLen > 0 {
			return seg.Scale(1 / segLen)
		}
		remaining -= segLen
	}
	return Point{}
}

// Project returns the distance along the polyline of the point on the
// polyline closest to p, together with that closest point and the
// perpendicular offset from the polyline.
func (pl Polyline) Project(p Point) (along float64, closest Point, offset float64) {
	if len(pl) == 0 {
		return 0, Point{}, 0
	}
	if len(pl) == 1 {
		return 0, pl[0], p.Dist(pl[0])
	}
	best := math.Inf(1)
	var cumulative float64
	for i := 1; i < len(pl); i++ {
		seg := pl[i].Sub(pl[i-1])
		segLen := seg.Norm()
		t := 0.0
		if segLen > 0 {
			t = p.Sub(pl[i-1]).Dot(seg) / (segLen * segLen)
			t = math.Max(0, math.Min(1, t))
		}
		candidate := pl[i-1].Add(seg.Scale(t))
		d := p.Dist(candidate)
		if d < best {
			best = d
			along = cumulative + t*segLen
			closest = candidate
			offset = d
		}
		cumulative += segLen
	}
	return along, closest, offset
}

// Bounds returns the axis-aligned bounding box of the polyline as
// (minX, minY, maxX, maxY).
func (pl Polyline) Bounds() (minX, minY, maxX, maxY float64) {
	if len(pl) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY = pl[0].X, pl[0].Y
	maxX, maxY = pl[0].X, pl[0].Y
	for _, p := range pl[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return minX, minY, maxX, maxY
}

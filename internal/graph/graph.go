// Package graph holds the directed road-segment network the map-matching
// engine searches over. Segments are immutable once added; adjacency is
// directed (legal travel only), so forward traversal never revisits a
// segment unless the network itself contains a cycle shorter than the
// search budget.
package graph

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/roadsense/mapmatch/internal/geo"
)

// Segment is one atomic piece of road geometry. Referenced by path
// structures in the engine, never copied.
type Segment struct {
	ID       string
	Geometry geo.Polyline

	length float64
}

// Length returns the geometric length of the segment in metres.
func (s *Segment) Length() float64 { return s.length }

// Start returns the first point of the segment geometry.
func (s *Segment) Start() geo.Point { return s.Geometry[0] }

// End returns the last point of the segment geometry.
func (s *Segment) End() geo.Point { return s.Geometry[len(s.Geometry)-1] }

func (s *Segment) String() string {
	if s == nil {
		return "segment(nil)"
	}
	return fmt.Sprintf("segment(%s len=%.1f)", s.ID, s.length)
}

// Graph is an in-memory directed road network with a uniform grid index
// for radius queries. Safe for concurrent reads after construction;
// mutation (AddSegment/Connect) is not synchronised and must happen
// before the graph is shared.
type Graph struct {
	segments map[string]*Segment
	outgoing map[string][]*Segment

	cellSize float64
	cells    map[cellKey][]*Segment
}

type cellKey struct {
	cx int
	cy int
}

// DefaultCellSize is the spatial index cell edge in metres. Cells much
// smaller than typical segment lengths multiply index entries; much
// larger ones degrade radius queries to linear scans.
const DefaultCellSize = 50.0

// New returns an empty graph with the default index cell size.
func New() *Graph {
	return &Graph{
		segments: make(map[string]*Segment),
		outgoing: make(map[string][]*Segment),
		cellSize: DefaultCellSize,
		cells:    make(map[cellKey][]*Segment),
	}
}

// AddSegment adds a segment with the given geometry. The geometry must
// contain at least two points and have positive length.
func (g *Graph) AddSegment(id string, geometry geo.Polyline) (*Segment, error) {
	if len(geometry) < 2 {
		return nil, fmt.Errorf("segment %q: geometry needs at least 2 points, got %d", id, len(geometry))
	}
	length := geometry.Length()
	if length <= 0 {
		return nil, fmt.Errorf("segment %q: zero-length geometry", id)
	}
	if _, exists := g.segments[id]; exists {
		return nil, fmt.Errorf("segment %q: already present", id)
	}
	seg := &Segment{ID: id, Geometry: geometry, length: length}
	g.segments[id] = seg
	g.indexSegment(seg)
	return seg, nil
}

// Connect records that travel from segment fromID may continue onto
// segment toID.
func (g *Graph) Connect(fromID, toID string) error {
	from, ok := g.segments[fromID]
	if !ok {
		return fmt.Errorf("connect %s->%s: unknown segment %q", fromID, toID, fromID)
	}
	to, ok := g.segments[toID]
	if !ok {
		return fmt.Errorf("connect %s->%s: unknown segment %q", fromID, toID, toID)
	}
	g.outgoing[from.ID] = append(g.outgoing[from.ID], to)
	return nil
}

// Segment returns the segment with the given ID, or nil.
func (g *Graph) Segment(id string) *Segment { return g.segments[id] }

// NumSegments returns the number of segments in the graph.
func (g *Graph) NumSegments() int { return len(g.segments) }

// OutgoingAdjacent returns the segments reachable by legal travel from
// seg. The returned slice is shared and must not be modified.
func (g *Graph) OutgoingAdjacent(seg *Segment) []*Segment {
	if seg == nil {
		return nil
	}
	return g.outgoing[seg.ID]
}

// NearbySegments returns the segments within a radius of the given
// ground-frame position mean, with the radius scaled by the position
// covariance: three standard deviations of the largest position
// component plus a floor of one index cell. The mean's first two
// elements are the east/north position; trailing velocity elements are
// ignored.
func (g *Graph) NearbySegments(mean mat.Vector, cov mat.Symmetric) []*Segment {
	center := geo.Point{X: mean.AtVec(0), Y: mean.AtVec(1)}
	radius := g.cellSize
	if cov != nil && cov.SymmetricDim() >= 2 {
		sigma := math.Sqrt(math.Max(cov.At(0, 0), cov.At(1, 1)))
		if r := 3 * sigma; r > radius {
			radius = r
		}
	}
	return g.SegmentsWithin(center, radius)
}

// SegmentsWithin returns all segments whose geometry passes within
// radius metres of center, in deterministic (insertion-independent)
// order by segment ID is NOT guaranteed; callers needing determinism
// must sort.
func (g *Graph) SegmentsWithin(center geo.Point, radius float64) []*Segment {
	var out []*Segment
	seen := make(map[string]bool)
	minCX := int(math.Floor((center.X - radius) / g.cellSize))
	maxCX := int(math.Floor((center.X + radius) / g.cellSize))
	minCY := int(math.Floor((center.Y - radius) / g.cellSize))
	maxCY := int(math.Floor((center.Y + radius) / g.cellSize))
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			for _, seg := range g.cells[cellKey{cx, cy}] {
				if seen[seg.ID] {
					continue
				}
				seen[seg.ID] = true
				if _, _, offset := seg.Geometry.Project(center); offset <= radius {
					out = append(out, seg)
				}
			}
		}
	}
	return out
}

func (g *Graph) indexSegment(seg *Segment) {
	minX, minY, maxX, maxY := seg.Geometry.Bounds()
	minCX := int(math.Floor(minX / g.cellSize))
	maxCX := int(math.Floor(maxX / g.cellSize))
	minCY := int(math.Floor(minY / g.cellSize))
	maxCY := int(math.Floor(maxY / g.cellSize))
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			key := cellKey{cx, cy}
			g.cells[key] = append(g.cells[key], seg)
		}
	}
}

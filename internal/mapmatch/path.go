package mapmatch

import (
	"fmt"
	"math"
	"strings"

	"github.com/roadsense/mapmatch/internal/graph"
)

// distanceOnEdgeTolerance absorbs floating point drift when checking
// whether a distance along a path falls on a particular edge.
const distanceOnEdgeTolerance = 1e-7

// PathEdge is a road segment placed within a containing Path: the
// segment itself, the cumulative distance from the start of the path to
// the start of this edge, and whether the segment is traversed against
// its geometry. The zero-segment value is the distinguished null edge
// representing off-road.
type PathEdge struct {
	Segment     *graph.Segment
	DistToStart float64
	Reversed    bool
}

// NullPathEdge is the distinguished off-road edge.
var NullPathEdge = PathEdge{}

// IsNull reports whether the edge is the off-road null edge.
func (e PathEdge) IsNull() bool { return e.Segment == nil }

// Length returns the length of the underlying segment, or 0 for the
// null edge.
func (e PathEdge) Length() float64 {
	if e.IsNull() {
		return 0
	}
	return e.Segment.Length()
}

// ContainsDistance reports whether the given distance along the
// containing path falls on this edge.
func (e PathEdge) ContainsDistance(dist float64) bool {
	if e.IsNull() {
		return false
	}
	return dist >= e.DistToStart-distanceOnEdgeTolerance &&
		dist <= e.DistToStart+e.Segment.Length()+distanceOnEdgeTolerance
}

// Equal reports whether two path edges reference the same segment at
// the same offset sign.
func (e PathEdge) Equal(other PathEdge) bool {
	if e.IsNull() || other.IsNull() {
		return e.IsNull() && other.IsNull()
	}
	return e.Segment == other.Segment &&
		math.Signbit(e.DistToStart) == math.Signbit(other.DistToStart)
}

func (e PathEdge) String() string {
	if e.IsNull() {
		return "edge(null)"
	}
	return fmt.Sprintf("edge(%s @%.1f)", e.Segment.ID, e.DistToStart)
}

// Path is an ordered contiguous sequence of path edges. The empty path
// is the distinguished null path representing off-road travel.
type Path struct {
	edges       []PathEdge
	totalLength float64
}

// NullPath is the distinguished off-road path.
var NullPath = &Path{}

// NewPath builds a path from edges. Consecutive edges must be
// graph-adjacent and offsets must accumulate contiguously; violations
// indicate a construction bug and return an error.
func NewPath(edges []PathEdge, g adjacencySource) (*Path, error) {
	if len(edges) == 0 {
		return NullPath, nil
	}
	var cumulative float64
	for i, e := range edges {
		if e.IsNull() {
			return nil, fmt.Errorf("path edge %d: null edge inside a non-null path", i)
		}
		if math.Abs(e.DistToStart-cumulative) > distanceOnEdgeTolerance {
			return nil, fmt.Errorf("path edge %d (%s): offset %.6f, want %.6f",
				i, e.Segment.ID, e.DistToStart, cumulative)
		}
		if i > 0 && g != nil {
			if !isAdjacent(g, edges[i-1].Segment, e.Segment) {
				return nil, fmt.Errorf("path edges %d-%d: %s and %s are not graph-adjacent",
					i-1, i, edges[i-1].Segment.ID, e.Segment.ID)
			}
		}
		cumulative += e.Segment.Length()
	}
	return &Path{edges: edges, totalLength: cumulative}, nil
}

// NewSingleEdgePath returns a path containing just the given segment,
// anchored at distance 0.
func NewSingleEdgePath(seg *graph.Segment) *Path {
	return &Path{
		edges:       []PathEdge{{Segment: seg}},
		totalLength: seg.Length(),
	}
}

// IsNull reports whether the path is the off-road null path.
func (p *Path) IsNull() bool { return len(p.edges) == 0 }

// Edges returns the path's edges. The slice is shared; callers must not
// modify it.
func (p *Path) Edges() []PathEdge { return p.edges }

// TotalLength returns the sum of the constituent segment lengths.
func (p *Path) TotalLength() float64 { return p.totalLength }

// FirstEdge returns the first edge, or the null edge for the null path.
func (p *Path) FirstEdge() PathEdge {
	if p.IsNull() {
		return NullPathEdge
	}
	return p.edges[0]
}

// LastEdge returns the last edge, or the null edge for the null path.
func (p *Path) LastEdge() PathEdge {
	if p.IsNull() {
		return NullPathEdge
	}
	return p.edges[len(p.edges)-1]
}

// EdgeAtDistance returns the edge containing the given distance along
// the path. Distances past the end resolve to the last edge; negative
// distances to the first.
func (p *Path) EdgeAtDistance(dist float64) PathEdge {
	if p.IsNull() {
		return NullPathEdge
	}
	for _, e := range p.edges {
		if e.ContainsDistance(dist) {
			return e
		}
	}
	if dist < 0 {
		return p.edges[0]
	}
	return p.edges[len(p.edges)-1]
}

func (p *Path) String() string {
	if p.IsNull() {
		return "path(null)"
	}
	ids := make([]string, len(p.edges))
	for i, e := range p.edges {
		ids[i] = e.Segment.ID
	}
	return fmt.Sprintf("path(%s len=%.1f)", strings.Join(ids, "->"), p.totalLength)
}

// adjacencySource is the slice of the road network contract needed for
// path validation.
type adjacencySource interface {
	OutgoingAdjacent(*graph.Segment) []*graph.Segment
}

func isAdjacent(g adjacencySource, from, to *graph.Segment) bool {
	for _, next := range g.OutgoingAdjacent(from) {
		if next == to {
			return true
		}
	}
	return false
}

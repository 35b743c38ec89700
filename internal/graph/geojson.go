package graph

import (
	"fmt"
	"math"
	"os"
	"sort"

	geojson "github.com/paulmach/go.geojson"

	"github.com/roadsense/mapmatch/internal/geo"
)

// endpointTolerance is the maximum distance, in metres, between two
// segment endpoints for them to count as the same junction when
// building adjacency from GeoJSON input.
const endpointTolerance = 0.5

// LoadGeoJSON reads a FeatureCollection of LineString features and
// builds a directed graph from it. Coordinates must already be
// projected planar metres (the same frame as the observations).
//
// Each LineString becomes one directed segment; unless the feature has
// a truthy "oneway" property, a reversed twin with the suffix ":r" is
// added as well. Adjacency is derived from coincident endpoints.
func LoadGeoJSON(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read road network: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse road network geojson: %w", err)
	}
	return FromFeatureCollection(fc)
}

// FromFeatureCollection builds a graph from an already-parsed
// FeatureCollection. See LoadGeoJSON for the expected shape.
func FromFeatureCollection(fc *geojson.FeatureCollection) (*Graph, error) {
	g := New()
	for i, feature := range fc.Features {
		if feature.Geometry == nil || !feature.Geometry.IsLineString() {
			continue
		}
		line := feature.Geometry.LineString
		pl := make(geo.Polyline, 0, len(line))
		for _, coord := range line {
			if len(coord) < 2 {
				return nil, fmt.Errorf("feature %d: coordinate with fewer than 2 values", i)
			}
			pl = append(pl, geo.Point{X: coord[0], Y: coord[1]})
		}

		id := featureID(feature, i)
		if _, err := g.AddSegment(id, pl); err != nil {
			return nil, err
		}
		if !isOneway(feature.Properties) {
			reversed := make(geo.Polyline, len(pl))
			for j, p := range pl {
				reversed[len(pl)-1-j] = p
			}
			if _, err := g.AddSegment(id+":r", reversed); err != nil {
				return nil, err
			}
		}
	}
	connectByEndpoints(g)
	return g, nil
}

func featureID(feature *geojson.Feature, index int) string {
	if feature.ID != nil {
		return fmt.Sprintf("%v", feature.ID)
	}
	if v, err := feature.PropertyString("id"); err == nil && v != "" {
		return v
	}
	return fmt.Sprintf("way-%d", index)
}

func isOneway(props map[string]interface{}) bool {
	switch v := props["oneway"].(type) {
	case bool:
		return v
	case string:
		return v == "yes" || v == "true" || v == "1"
	case float64:
		return v != 0
	}
	return false
}

// connectByEndpoints links every segment whose end point coincides with
// another segment's start point. Endpoints are bucketed on a grid of
// endpointTolerance so the pass stays linear in the segment count.
//
// Segments are visited in sorted-ID order so adjacency lists come out
// identical across loads of the same input. Replaying a run with a
// fixed seed depends on that: adjacency order indexes the transition
// draw and the path enumeration.
func connectByEndpoints(g *Graph) {
	type bucket struct{ bx, by int }
	key := func(p geo.Point) bucket {
		return bucket{
			bx: int(math.Floor(p.X / endpointTolerance)),
			by: int(math.Floor(p.Y / endpointTolerance)),
		}
	}
	ordered := make([]*Segment, 0, len(g.segments))
	for _, seg := range g.segments {
		ordered = append(ordered, seg)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	starts := make(map[bucket][]*Segment)
	for _, seg := range ordered {
		starts[key(seg.Start())] = append(starts[key(seg.Start())], seg)
	}
	for _, seg := range ordered {
		end := seg.End()
		k := key(end)
		// Check the endpoint's bucket and its eight neighbours so
		// junctions straddling a bucket boundary still connect.
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for _, next := range starts[bucket{k.bx + dx, k.by + dy}] {
					if next.ID == seg.ID {
						continue
					}
					// Skip the reversed twin of this segment: a U-turn at
					// every junction is not legal travel.
					if next.ID == seg.ID+":r" || seg.ID == next.ID+":r" {
						continue
					}
					if end.Dist(next.Start()) <= endpointTolerance {
						g.outgoing[seg.ID] = append(g.outgoing[seg.ID], next)
					}
				}
			}
		}
		out := g.outgoing[seg.ID]
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
}

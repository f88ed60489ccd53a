package boundary

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang/geo/s2"
)

// region is one polygon: an outer loop plus optional holes.
type region struct {
	outer *s2.Loop
	holes []*s2.Loop
}

func (r region) contains(p s2.Point) bool {
	if !r.outer.ContainsPoint(p) {
		return false
	}
	for _, h := range r.holes {
		if h.ContainsPoint(p) {
			return false
		}
	}
	return true
}

type neighborhood struct {
	key     string
	name    string
	regions []region
}

// Index holds the neighborhood boundaries in feature order.
type Index struct {
	collection    FeatureCollection
	neighborhoods []neighborhood
}

// Load reads a GeoJSON FeatureCollection from path.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}
	return Parse(data)
}

// Parse builds an Index from GeoJSON bytes. Features without a name or with an
// unsupported geometry stay in the collection but are not locatable.
func Parse(data []byte) (*Index, error) {
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decode boundaries: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("decode boundaries: expected FeatureCollection, got %q", fc.Type)
	}

	idx := &Index{collection: fc}
	for i, f := range fc.Features {
		name := f.Name()
		if name == "" {
			slog.Debug("Skipping unnamed boundary feature", "index", i)
			continue
		}

		polys, err := f.Geometry.rings()
		if err != nil {
			slog.Warn("Skipping boundary feature", "name", name, "error", err)
			continue
		}

		n := neighborhood{key: normalizeName(name), name: name}
		for _, rings := range polys {
			if r, ok := buildRegion(rings); ok {
				n.regions = append(n.regions, r)
			}
		}
		idx.neighborhoods = append(idx.neighborhoods, n)
	}
	return idx, nil
}

func buildRegion(rings []ring) (region, bool) {
	if len(rings) == 0 {
		return region{}, false
	}
	outer, ok := buildLoop(rings[0])
	if !ok {
		return region{}, false
	}
	r := region{outer: outer}
	for _, h := range rings[1:] {
		if hole, ok := buildLoop(h); ok {
			r.holes = append(r.holes, hole)
		}
	}
	return r, true
}

// buildLoop converts a GeoJSON ring into a normalized s2 loop, so winding
// order does not matter.
func buildLoop(rg ring) (*s2.Loop, bool) {
	pts := make([]s2.Point, 0, len(rg))
	for _, pos := range rg {
		if len(pos) < 2 {
			continue
		}
		pts = append(pts, s2.PointFromLatLng(s2.LatLngFromDegrees(pos[1], pos[0])))
	}
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return nil, false
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop, true
}

// Locate returns the normalized name of the first neighborhood containing the point.
func (idx *Index) Locate(lat, lon float64) (string, bool) {
	p := s2.PointFromLatLng(s2.LatLngFromDegrees(lat, lon))
	for _, n := range idx.neighborhoods {
		for _, r := range n.regions {
			if r.contains(p) {
				return n.key, true
			}
		}
	}
	return "", false
}

// Names returns the normalized neighborhood names in feature order.
func (idx *Index) Names() []string {
	out := make([]string, 0, len(idx.neighborhoods))
	for _, n := range idx.neighborhoods {
		out = append(out, n.key)
	}
	return out
}

// DisplayName returns the name as spelled in the boundary file.
func (idx *Index) DisplayName(key string) (string, bool) {
	key = normalizeName(key)
	for _, n := range idx.neighborhoods {
		if n.key == key {
			return n.name, true
		}
	}
	return "", false
}

func (idx *Index) Len() int { return len(idx.neighborhoods) }

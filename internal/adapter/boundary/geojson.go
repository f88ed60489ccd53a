package boundary

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FeatureCollection is the subset of GeoJSON the map layer consumes.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   Geometry       `json:"geometry"`
}

// Geometry keeps coordinates raw so unsupported types pass through untouched.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// nameKeys lists the accepted name property spellings, in lookup order.
var nameKeys = []string{"name", "Name", "NAME"}

// Name returns the feature's display name, or "" when none of the name
// properties hold a string.
func (f Feature) Name() string {
	for _, k := range nameKeys {
		if s, ok := f.Properties[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ring is a closed sequence of [lon, lat] positions.
type ring [][]float64

// rings decodes Polygon and MultiPolygon coordinates into polygons, each a
// slice of rings with the outer ring first.
func (g Geometry) rings() ([][]ring, error) {
	switch g.Type {
	case "Polygon":
		var poly []ring
		if err := json.Unmarshal(g.Coordinates, &poly); err != nil {
			return nil, fmt.Errorf("decode polygon: %w", err)
		}
		return [][]ring{poly}, nil
	case "MultiPolygon":
		var multi [][]ring
		if err := json.Unmarshal(g.Coordinates, &multi); err != nil {
			return nil, fmt.Errorf("decode multipolygon: %w", err)
		}
		return multi, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

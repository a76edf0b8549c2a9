// Package geo reads spatial bounds from GeoParquet metadata and WKB values.
package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// MetadataKey is the Parquet key-value metadata entry holding GeoParquet
// column descriptions.
const MetadataKey = "geo"

// ErrNoGeometry is returned when a file carries no usable geometry metadata.
var ErrNoGeometry = errors.New("no geometry column")

// Metadata is the subset of the GeoParquet "geo" document this plugin uses.
type Metadata struct {
	Version       string                    `json:"version"`
	PrimaryColumn string                    `json:"primary_column"`
	Columns       map[string]ColumnMetadata `json:"columns"`
}

// ColumnMetadata describes one geometry column.
type ColumnMetadata struct {
	Encoding      string          `json:"encoding"`
	GeometryTypes []string        `json:"geometry_types"`
	BBox          []float64       `json:"bbox,omitempty"`
	CRS           json.RawMessage `json:"crs,omitempty"`
}

// ParseMetadata decodes a GeoParquet "geo" metadata value.
func ParseMetadata(raw string) (*Metadata, error) {
	var md Metadata
	if err := json.Unmarshal([]byte(raw), &md); err != nil {
		return nil, fmt.Errorf("failed to parse geo metadata: %w", err)
	}
	if md.PrimaryColumn == "" {
		return nil, ErrNoGeometry
	}
	if _, ok := md.Columns[md.PrimaryColumn]; !ok {
		return nil, fmt.Errorf("%w: primary column %q is not described", ErrNoGeometry, md.PrimaryColumn)
	}
	return &md, nil
}

// Primary returns the primary geometry column description.
func (m *Metadata) Primary() ColumnMetadata {
	return m.Columns[m.PrimaryColumn]
}

// Bounds returns the primary column bbox. The second result is false when the
// bbox is absent or malformed.
func (m *Metadata) Bounds() (orb.Bound, bool) {
	return BBoxBound(m.Primary().BBox)
}

// BBoxBound converts a GeoParquet bbox ([minx, miny, maxx, maxy] or the 3D
// [minx, miny, minz, maxx, maxy, maxz]) into a 2D bound.
func BBoxBound(bbox []float64) (orb.Bound, bool) {
	switch len(bbox) {
	case 4:
		return orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}, true
	case 6:
		return orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[3], bbox[4]}}, true
	default:
		return orb.Bound{}, false
	}
}

// BoundsFromWKB unions the bounds of WKB-encoded geometries. Empty values are
// skipped; the second result is false when nothing was decoded.
func BoundsFromWKB(values [][]byte) (orb.Bound, bool, error) {
	var (
		b     orb.Bound
		found bool
	)
	for i, v := range values {
		if len(v) == 0 {
			continue
		}
		g, err := wkb.Unmarshal(v)
		if err != nil {
			return orb.Bound{}, false, fmt.Errorf("failed to decode geometry %d: %w", i, err)
		}
		b, found = union(b, found, g.Bound())
	}
	return b, found, nil
}

// Union merges bounds. The second result is false when bounds is empty.
func Union(bounds ...orb.Bound) (orb.Bound, bool) {
	var (
		b     orb.Bound
		found bool
	)
	for _, next := range bounds {
		b, found = union(b, found, next)
	}
	return b, found
}

func union(acc orb.Bound, found bool, next orb.Bound) (orb.Bound, bool) {
	if !found {
		return next, true
	}
	return acc.Union(next), true
}

// Format renders a bound as "[minx, miny, maxx, maxy]".
func Format(b orb.Bound) string {
	return fmt.Sprintf("[%g, %g, %g, %g]", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
}

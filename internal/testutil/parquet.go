package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GenerateParquet creates an in-memory Parquet file with the given schema and
// row count. Each column is filled with deterministic test data; binary
// columns hold WKB points (i, i).
func GenerateParquet(sc *arrow.Schema, numRows int) ([]byte, error) {
	return generate(sc, numRows, nil)
}

// GeoOptions controls the GeoParquet metadata written by GenerateGeoParquet.
type GeoOptions struct {
	// BBox is written to the column metadata when non-empty.
	BBox []float64
	// Offset shifts the generated points to (Offset+i, Offset+i).
	Offset float64
}

// GenerateGeoParquet creates a GeoParquet file with GeoTestSchema, numRows
// WKB points and a "geo" metadata document describing the geometry column.
func GenerateGeoParquet(numRows int, opts GeoOptions) ([]byte, error) {
	col := map[string]any{
		"encoding":       "WKB",
		"geometry_types": []string{"Point"},
	}
	if len(opts.BBox) > 0 {
		col["bbox"] = opts.BBox
	}
	md, err := json.Marshal(map[string]any{
		"version":        "1.1.0",
		"primary_column": "geometry",
		"columns":        map[string]any{"geometry": col},
	})
	if err != nil {
		return nil, err
	}
	return generate(GeoTestSchema(), numRows, &geoDoc{json: string(md), offset: opts.Offset})
}

type geoDoc struct {
	json   string
	offset float64
}

func generate(sc *arrow.Schema, numRows int, geo *geoDoc) ([]byte, error) {
	alloc := memory.DefaultAllocator
	builder := array.NewRecordBuilder(alloc, sc)
	defer builder.Release()

	var offset float64
	if geo != nil {
		offset = geo.offset
	}
	for i := 0; i < numRows; i++ {
		for j, field := range sc.Fields() {
			switch field.Type.ID() {
			case arrow.INT64:
				builder.Field(j).(*array.Int64Builder).Append(int64(i))
			case arrow.FLOAT64:
				builder.Field(j).(*array.Float64Builder).Append(float64(i) * 1.1)
			case arrow.STRING:
				builder.Field(j).(*array.StringBuilder).Append(fmt.Sprintf("val_%d", i))
			case arrow.BOOL:
				builder.Field(j).(*array.BooleanBuilder).Append(i%2 == 0)
			case arrow.BINARY:
				p := orb.Point{offset + float64(i), offset + float64(i)}
				b, err := wkb.Marshal(p)
				if err != nil {
					return nil, err
				}
				builder.Field(j).(*array.BinaryBuilder).Append(b)
			default:
				builder.Field(j).AppendNull()
			}
		}
	}

	rec := builder.NewRecordBatch()
	defer rec.Release()

	var buf bytes.Buffer
	writer, err := pqarrow.NewFileWriter(sc, &buf, nil, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	if err := writer.Write(rec); err != nil {
		return nil, fmt.Errorf("failed to write record to parquet: %w", err)
	}
	if geo != nil {
		if err := writer.AppendKeyValueMetadata("geo", geo.json); err != nil {
			return nil, fmt.Errorf("failed to append geo metadata: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteFile writes data to dir/rel, creating parent directories, and returns
// the slash-separated path.
func WriteFile(dir, rel string, data []byte) (string, error) {
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", err
	}
	return filepath.ToSlash(p), nil
}

// SimpleTestSchema returns a simple Arrow schema for testing: (id: int64, name: string).
func SimpleTestSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)
}

// DifferentTestSchema returns a schema that conflicts with SimpleTestSchema on
// the type of "name": (id: int64, name: float64).
func DifferentTestSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.PrimitiveTypes.Float64},
	}, nil)
}

// GeoTestSchema returns (id: int64, name: string, geometry: binary).
func GeoTestSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "geometry", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)
}

package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/infobloxopen/cq-source-geoparquet/internal/catalog"
	"github.com/infobloxopen/cq-source-geoparquet/internal/geo"
	"github.com/paulmach/orb"
)

// Inspect reads the Arrow schema and spatial bounds of one file. Bounds come
// from the GeoParquet bbox when present and from a scan of the primary
// geometry column otherwise.
func (c *Client) Inspect(ctx context.Context, uri string) (*catalog.FileInfo, error) {
	path, cleanup, err := c.localPath(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file %s: %w", uri, err)
	}
	defer func() { _ = pf.Close() }()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{
		Parallel:  true,
		BatchSize: int64(c.spec.RowsPerRecord),
	}, memory.DefaultAllocator)
	if err != nil {
		return nil, fmt.Errorf("failed to create arrow reader for %s: %w", uri, err)
	}

	sc, err := reader.Schema()
	if err != nil {
		return nil, fmt.Errorf("failed to read schema from %s: %w", uri, err)
	}
	info := &catalog.FileInfo{Schema: sc}

	raw := pf.MetaData().KeyValueMetadata().FindValue(geo.MetadataKey)
	if raw == nil {
		return info, nil
	}
	md, err := geo.ParseMetadata(*raw)
	if err != nil {
		c.logger.Warn().Err(err).Str("uri", uri).Msg("ignoring unusable geo metadata")
		return info, nil
	}
	if b, ok := md.Bounds(); ok {
		info.Bounds, info.HasBounds = b, true
		return info, nil
	}

	b, ok, err := scanBounds(ctx, pf, reader, md.PrimaryColumn)
	if errors.Is(err, geo.ErrNoGeometry) {
		c.logger.Warn().Err(err).Str("uri", uri).Msg("cannot compute bounds")
		return info, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to compute bounds of %s: %w", uri, err)
	}
	info.Bounds, info.HasBounds = b, ok
	return info, nil
}

// scanBounds unions the bounds of every WKB value in column.
func scanBounds(ctx context.Context, pf *file.Reader, reader *pqarrow.FileReader, column string) (orb.Bound, bool, error) {
	idx := pf.MetaData().Schema.ColumnIndexByName(column)
	if idx < 0 {
		return orb.Bound{}, false, fmt.Errorf("%w: %q not found", geo.ErrNoGeometry, column)
	}
	rr, err := reader.GetRecordReader(ctx, []int{idx}, nil)
	if err != nil {
		return orb.Bound{}, false, err
	}
	defer rr.Release()

	var (
		bound orb.Bound
		found bool
	)
	for rr.Next() {
		values, err := wkbValues(rr.RecordBatch().Column(0))
		if err != nil {
			return orb.Bound{}, false, err
		}
		b, ok, err := geo.BoundsFromWKB(values)
		if err != nil {
			return orb.Bound{}, false, err
		}
		switch {
		case ok && found:
			bound, _ = geo.Union(bound, b)
		case ok:
			bound, found = b, true
		}
	}
	if err := rr.Err(); err != nil {
		return orb.Bound{}, false, err
	}
	return bound, found, nil
}

func wkbValues(col arrow.Array) ([][]byte, error) {
	type binaryArray interface {
		arrow.Array
		Value(i int) []byte
	}
	arr, ok := col.(binaryArray)
	if !ok {
		return nil, fmt.Errorf("%w: geometry column is %s, not WKB", geo.ErrNoGeometry, col.DataType())
	}
	values := make([][]byte, 0, arr.Len())
	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			continue
		}
		values = append(values, arr.Value(i))
	}
	return values, nil
}

// streamRecords reads a file and sends its Arrow record batches to records.
func (c *Client) streamRecords(ctx context.Context, uri string, batchSize int, records chan<- arrow.RecordBatch) error {
	path, cleanup, err := c.localPath(ctx, uri)
	if err != nil {
		return err
	}
	defer cleanup()

	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return fmt.Errorf("failed to open parquet file %s: %w", uri, err)
	}
	defer func() { _ = pf.Close() }()

	reader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{
		Parallel:  true,
		BatchSize: int64(batchSize),
	}, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("failed to create arrow reader for %s: %w", uri, err)
	}

	rr, err := reader.GetRecordReader(ctx, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to get record reader for %s: %w", uri, err)
	}
	defer rr.Release()

	for rr.Next() {
		rec := rr.RecordBatch()
		rec.Retain()
		select {
		case records <- rec:
		case <-ctx.Done():
			rec.Release()
			return ctx.Err()
		}
	}
	if err := rr.Err(); err != nil {
		return fmt.Errorf("error reading records from %s: %w", uri, err)
	}
	return nil
}

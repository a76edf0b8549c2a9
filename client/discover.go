package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/infobloxopen/cq-source-geoparquet/internal/catalog"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"github.com/infobloxopen/cq-source-geoparquet/internal/geo"
	"github.com/paulmach/orb"
)

// DiscoveredTable is one catalog table together with its CloudQuery table.
type DiscoveredTable struct {
	Name        string
	Key         string
	Objects     []discovery.Object
	ArrowSchema *arrow.Schema
	Bounds      orb.Bound
	HasBounds   bool
	Table       *schema.Table
}

// discover refreshes the catalog, reads each table's union schema and bounds
// and builds the CloudQuery tables.
func (c *Client) discover(ctx context.Context) ([]DiscoveredTable, error) {
	if err := c.catalog.Refresh(ctx); err != nil {
		return nil, err
	}

	entries := c.catalog.Tables()
	tables := make([]DiscoveredTable, 0, len(entries))
	for _, t := range entries {
		sc, err := t.Schema(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema of table %s: %w", t.Name, err)
		}
		b, hasBounds, err := t.Bounds(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read bounds of table %s: %w", t.Name, err)
		}
		tables = append(tables, DiscoveredTable{
			Name:        t.Name,
			Key:         t.Key,
			Objects:     t.Objects,
			ArrowSchema: sc,
			Bounds:      b,
			HasBounds:   hasBounds,
			Table:       buildTable(t, sc, b, hasBounds),
		})
	}
	return tables, nil
}

// buildTable turns a union schema into an incremental CloudQuery table.
func buildTable(t *catalog.Table, sc *arrow.Schema, b orb.Bound, hasBounds bool) *schema.Table {
	columns := make(schema.ColumnList, sc.NumFields())
	for i := 0; i < sc.NumFields(); i++ {
		columns[i] = schema.NewColumnFromArrowField(sc.Field(i))
	}
	for _, col := range t.PartitionColumns() {
		if c := columns.Get(col); c != nil && c.Description == "" {
			c.Description = "Hive partition value"
		}
	}

	desc := fmt.Sprintf("Files matching %s", t.Key)
	if hasBounds {
		desc += "; bounds " + geo.Format(b)
	}
	table := &schema.Table{
		Name:          t.Name,
		Description:   desc,
		Columns:       columns,
		IsIncremental: true,
	}
	schema.AddCqIDs(table)
	return table
}

// filterObjectsByCursor returns objects modified strictly after cursor. A
// zero cursor or a zero modification time keeps the object.
func filterObjectsByCursor(objects []discovery.Object, cursor time.Time) []discovery.Object {
	if cursor.IsZero() {
		return objects
	}
	var filtered []discovery.Object
	for _, obj := range objects {
		if obj.LastModified.IsZero() || obj.LastModified.After(cursor) {
			filtered = append(filtered, obj)
		}
	}
	return filtered
}

// maxLastModified returns the latest modification time among objects.
func maxLastModified(objects []discovery.Object) time.Time {
	var max time.Time
	for _, obj := range objects {
		if obj.LastModified.After(max) {
			max = obj.LastModified
		}
	}
	return max
}

// isMalformedParquetError checks if the error is from a malformed Parquet file.
func isMalformedParquetError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"not a parquet file",
		"invalid parquet",
		"parquet: invalid",
		"magic number",
		"failed to open parquet",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

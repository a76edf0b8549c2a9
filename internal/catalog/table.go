package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"github.com/infobloxopen/cq-source-geoparquet/internal/geo"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Table is one logical table of a snapshot. Its name, key and members never
// change; schema and bounds are inspected on first use.
type Table struct {
	Name    string
	Key     string
	Objects []discovery.Object

	partitionColumns []string
	inspector        Inspector
	concurrency      int
	logger           zerolog.Logger

	mu        sync.Mutex
	loaded    bool
	schema    *arrow.Schema
	bounds    orb.Bound
	hasBounds bool
}

func (c *Catalog) newTable(name, key string, objects []discovery.Object) *Table {
	var cols []string
	seen := make(map[string]bool)
	for _, o := range objects {
		for _, kv := range partition.Values(o.URI) {
			if !seen[kv.Key] {
				seen[kv.Key] = true
				cols = append(cols, kv.Key)
			}
		}
	}
	return &Table{
		Name:             name,
		Key:              key,
		Objects:          objects,
		partitionColumns: cols,
		inspector:        c.inspector,
		concurrency:      c.cfg.Concurrency,
		logger:           c.logger.With().Str("table", name).Logger(),
	}
}

// Files returns the member file URIs in partition map order.
func (t *Table) Files() []string {
	return discovery.URIs(t.Objects)
}

// PartitionColumns returns the Hive partition keys found in member paths, in
// first-seen order.
func (t *Table) PartitionColumns() []string {
	return t.partitionColumns
}

func (t *Table) sameContents(other *Table) bool {
	if t.Key != other.Key || len(t.Objects) != len(other.Objects) {
		return false
	}
	for i := range t.Objects {
		a, b := t.Objects[i], other.Objects[i]
		if a.URI != b.URI || a.Size != b.Size || !a.LastModified.Equal(b.LastModified) {
			return false
		}
	}
	return true
}

// Schema returns the union of the member file schemas followed by any
// partition columns the files do not carry themselves.
func (t *Table) Schema(ctx context.Context) (*arrow.Schema, error) {
	if err := t.load(ctx); err != nil {
		return nil, err
	}
	return t.schema, nil
}

// Bounds returns the union of member file bounds. The second result is false
// when no member reported bounds.
func (t *Table) Bounds(ctx context.Context) (orb.Bound, bool, error) {
	if err := t.load(ctx); err != nil {
		return orb.Bound{}, false, err
	}
	return t.bounds, t.hasBounds, nil
}

// load inspects every member once. Failures are not cached.
func (t *Table) load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.loaded {
		return nil
	}

	infos := make([]*FileInfo, len(t.Objects))
	g, gctx := errgroup.WithContext(ctx)
	if t.concurrency > 0 {
		g.SetLimit(t.concurrency)
	}
	for i, o := range t.Objects {
		g.Go(func() error {
			info, err := t.inspector.Inspect(gctx, o.URI)
			if err != nil {
				return fmt.Errorf("failed to inspect %s: %w", o.URI, err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	schemas := make([]*arrow.Schema, len(infos))
	var bounds []orb.Bound
	for i, info := range infos {
		schemas[i] = info.Schema
		if info.HasBounds {
			bounds = append(bounds, info.Bounds)
		}
	}
	sc, err := UnionSchemas(schemas)
	if err != nil {
		return fmt.Errorf("table %s: %w", t.Name, err)
	}

	t.schema = withPartitionColumns(sc, t.partitionColumns)
	t.bounds, t.hasBounds = geo.Union(bounds...)
	t.loaded = true

	ev := t.logger.Debug().Int("files", len(t.Objects)).Int("columns", t.schema.NumFields())
	if t.hasBounds {
		ev = ev.Str("bounds", geo.Format(t.bounds))
	}
	ev.Msg("table inspected")
	return nil
}

// UnionSchemas merges schemas by field name in first-seen order. A field
// missing from some schemas becomes nullable; the same name with different
// types is an ErrSchemaConflict.
func UnionSchemas(schemas []*arrow.Schema) (*arrow.Schema, error) {
	var fields []arrow.Field
	index := make(map[string]int)
	count := make(map[string]int)
	var md arrow.Metadata

	for si, sc := range schemas {
		if sc == nil {
			continue
		}
		if si == 0 {
			md = sc.Metadata()
		}
		for _, f := range sc.Fields() {
			count[f.Name]++
			i, ok := index[f.Name]
			if !ok {
				index[f.Name] = len(fields)
				fields = append(fields, f)
				continue
			}
			if !arrow.TypeEqual(fields[i].Type, f.Type) {
				return nil, fmt.Errorf("%w: column %q is %s in one file and %s in another",
					ErrSchemaConflict, f.Name, fields[i].Type, f.Type)
			}
			fields[i].Nullable = fields[i].Nullable || f.Nullable
		}
	}

	for i := range fields {
		if count[fields[i].Name] < len(schemas) {
			fields[i].Nullable = true
		}
	}
	return arrow.NewSchema(fields, &md), nil
}

func withPartitionColumns(sc *arrow.Schema, cols []string) *arrow.Schema {
	fields := sc.Fields()
	for _, col := range cols {
		if sc.HasField(col) {
			continue
		}
		fields = append(fields, arrow.Field{Name: col, Type: arrow.BinaryTypes.String, Nullable: true})
	}
	md := sc.Metadata()
	return arrow.NewSchema(fields, &md)
}

package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu      sync.Mutex
	objects []discovery.Object
	err     error
	calls   int
}

func (f *fakeLister) List(ctx context.Context, pattern string) ([]discovery.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]discovery.Object(nil), f.objects...), nil
}

func (f *fakeLister) set(objects []discovery.Object, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects = objects
	f.err = err
}

type fakeInspector struct {
	mu    sync.Mutex
	infos map[string]*FileInfo
	def   *FileInfo
	calls map[string]int
}

func (f *fakeInspector) Inspect(ctx context.Context, uri string) (*FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[uri]++
	if info, ok := f.infos[uri]; ok {
		return info, nil
	}
	if f.def != nil {
		return f.def, nil
	}
	return nil, errors.New("unreadable file")
}

func objects(uris ...string) []discovery.Object {
	out := make([]discovery.Object, len(uris))
	for i, u := range uris {
		out[i] = discovery.Object{URI: u, Size: 1, LastModified: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	}
	return out
}

var s3Files = []string{
	"s3://mybucket/data/theme=lines/type=line/part-0.parquet",
	"s3://mybucket/data/theme=lines/type=multiline/part-0.parquet",
	"s3://mybucket/data/theme=points/type=point/part-0.parquet",
	"s3://mybucket/data/theme=lines/type=line/part-1.parquet",
}

func simpleSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "geometry", Type: arrow.BinaryTypes.Binary, Nullable: true},
	}, nil)
}

func newCatalog(t *testing.T, cfg Config, l Lister, in Inspector) *Catalog {
	t.Helper()
	c, err := New(cfg, l, in, zerolog.New(zerolog.NewTestWriter(t)))
	require.NoError(t, err)
	return c
}

func intPtr(v int) *int { return &v }

func TestCatalog_TableNames(t *testing.T) {
	lister := &fakeLister{objects: objects(s3Files...)}
	inspector := &fakeInspector{def: &FileInfo{Schema: simpleSchema()}}

	tests := []struct {
		name  string
		depth *int
		want  []string
	}{
		{"full depth", nil, []string{"theme_lines_type_line", "theme_lines_type_multiline", "theme_points_type_point"}},
		{"depth one", intPtr(1), []string{"theme_lines", "theme_points"}},
		{"depth zero", intPtr(0), []string{"data"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCatalog(t, Config{Pattern: "s3://mybucket/**/*", MaxHiveDepth: tt.depth}, lister, inspector)
			names, err := c.TableNames(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)

			var total int
			for _, tbl := range c.Tables() {
				total += len(tbl.Files())
			}
			assert.Equal(t, len(s3Files), total)
		})
	}
}

func TestCatalog_NegativeDepth(t *testing.T) {
	_, err := New(Config{Pattern: "s3://b/**/*", MaxHiveDepth: intPtr(-1)}, &fakeLister{}, &fakeInspector{}, zerolog.Nop())
	require.ErrorIs(t, err, partition.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "-1")
}

func TestCatalog_InvalidConfig(t *testing.T) {
	_, err := New(Config{Pattern: "s3://b/**/*", Collision: "drop"}, &fakeLister{}, &fakeInspector{}, zerolog.Nop())
	assert.ErrorIs(t, err, partition.ErrInvalidArgument)

	_, err = New(Config{Pattern: "s3://b/**/*"}, nil, &fakeInspector{}, zerolog.Nop())
	assert.ErrorIs(t, err, partition.ErrInvalidArgument)
}

func TestCatalog_NameCollisionSuffix(t *testing.T) {
	lister := &fakeLister{objects: objects(
		"/d1/year=2023/a.parquet",
		"/d2/year=2023/b.parquet",
		"/d3/year=2023/c.parquet",
		"/d1/year=2023/d.parquet",
	)}
	c := newCatalog(t, Config{Pattern: "/**/*"}, lister, &fakeInspector{})

	names, err := c.TableNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"year_2023", "year_2023_2", "year_2023_3"}, names)

	tbl, err := c.Table("year_2023_2")
	require.NoError(t, err)
	assert.Equal(t, "/d2/year=2023/*", tbl.Key)

	again, err := c.TableNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, names, again)
}

func TestCatalog_NameCollisionError(t *testing.T) {
	lister := &fakeLister{objects: objects("/d1/year=2023/a.parquet", "/d2/year=2023/b.parquet")}
	c := newCatalog(t, Config{Pattern: "/**/*", Collision: CollisionError}, lister, &fakeInspector{})

	_, err := c.TableNames(context.Background())
	require.ErrorIs(t, err, ErrNameCollision)
	assert.Empty(t, c.Tables())
}

func TestCatalog_DiscoveryFailureKeepsSnapshot(t *testing.T) {
	lister := &fakeLister{objects: objects(s3Files...)}
	c := newCatalog(t, Config{Pattern: "s3://mybucket/**/*", MaxHiveDepth: intPtr(1)}, lister, &fakeInspector{})

	require.NoError(t, c.Refresh(context.Background()))
	before := c.Tables()
	require.Len(t, before, 2)

	listErr := errors.New("connection reset")
	lister.set(nil, listErr)
	err := c.Refresh(context.Background())
	require.ErrorIs(t, err, listErr)

	assert.Equal(t, before, c.Tables())
	_, err = c.Table("theme_lines")
	assert.NoError(t, err)
}

func TestCatalog_TableNotFound(t *testing.T) {
	c := newCatalog(t, Config{Pattern: "s3://b/**/*"}, &fakeLister{}, &fakeInspector{})
	_, err := c.Schema(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTableNotFound)
	_, _, err = c.Bounds(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestCatalog_SchemaAndBounds(t *testing.T) {
	lister := &fakeLister{objects: objects(s3Files...)}
	withName := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String},
	}, nil)
	inspector := &fakeInspector{
		infos: map[string]*FileInfo{
			s3Files[0]: {Schema: simpleSchema(), HasBounds: true, Bounds: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}},
			s3Files[1]: {Schema: withName, HasBounds: true, Bounds: orb.Bound{Min: orb.Point{-5, 2}, Max: orb.Point{0, 3}}},
			s3Files[3]: {Schema: simpleSchema()},
		},
	}
	c := newCatalog(t, Config{Pattern: "s3://mybucket/**/*", MaxHiveDepth: intPtr(1), Concurrency: 2}, lister, inspector)
	require.NoError(t, c.Refresh(context.Background()))

	sc, err := c.Schema(context.Background(), "theme_lines")
	require.NoError(t, err)

	var names []string
	for _, f := range sc.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"id", "geometry", "name", "theme", "type"}, names)

	f, _ := sc.FieldsByName("name")
	require.Len(t, f, 1)
	assert.True(t, f[0].Nullable, "column missing from some files is nullable")
	f, _ = sc.FieldsByName("id")
	assert.False(t, f[0].Nullable)

	b, ok, err := c.Bounds(context.Background(), "theme_lines")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, b.Equal(orb.Bound{Min: orb.Point{-5, 0}, Max: orb.Point{1, 3}}))

	// Cached: a second call does not inspect again.
	_, err = c.Schema(context.Background(), "theme_lines")
	require.NoError(t, err)
	assert.Equal(t, 1, inspector.calls[s3Files[0]])

	// Unchanged tables survive a refresh with their cache.
	require.NoError(t, c.Refresh(context.Background()))
	_, err = c.Schema(context.Background(), "theme_lines")
	require.NoError(t, err)
	assert.Equal(t, 1, inspector.calls[s3Files[0]])

	// theme_points has an unreadable member.
	_, err = c.Schema(context.Background(), "theme_points")
	assert.Error(t, err)
}

func TestCatalog_SchemaConflict(t *testing.T) {
	lister := &fakeLister{objects: objects("/d/a.parquet", "/d/b.parquet")}
	inspector := &fakeInspector{infos: map[string]*FileInfo{
		"/d/a.parquet": {Schema: arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.PrimitiveTypes.Int64}}, nil)},
		"/d/b.parquet": {Schema: arrow.NewSchema([]arrow.Field{{Name: "id", Type: arrow.BinaryTypes.String}}, nil)},
	}}
	c := newCatalog(t, Config{Pattern: "/d/*"}, lister, inspector)
	require.NoError(t, c.Refresh(context.Background()))

	_, err := c.Schema(context.Background(), "d")
	assert.ErrorIs(t, err, ErrSchemaConflict)
}

func TestCatalog_ConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	setA := objects(s3Files...)
	setB := objects("/other/year=2024/a.parquet", "/other/year=2025/b.parquet")
	lister := &fakeLister{objects: setA}
	c := newCatalog(t, Config{Pattern: "/**/*"}, lister, &fakeInspector{})
	require.NoError(t, c.Refresh(context.Background()))

	valid := map[int]bool{3: true, 2: true}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan string, 100)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				tables := c.Tables()
				if !valid[len(tables)] {
					errs <- "partial snapshot observed"
					return
				}
				files := 0
				for _, tbl := range tables {
					files += len(tbl.Files())
				}
				if files != len(setA) && files != len(setB) {
					errs <- "snapshot with mixed members observed"
					return
				}
			}
		}()
	}

	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			lister.set(setB, nil)
		} else {
			lister.set(setA, nil)
		}
		require.NoError(t, c.Refresh(context.Background()))
	}
	cancel()
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}

func TestUnionSchemas_Empty(t *testing.T) {
	sc, err := UnionSchemas(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, sc.NumFields())
}

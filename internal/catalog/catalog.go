// Package catalog registers one logical table per partition group of a
// location pattern and serves consistent snapshots of them.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
)

var (
	// ErrNameCollision is returned under CollisionError when two partition
	// keys sanitize to the same table name.
	ErrNameCollision = errors.New("table name collision")
	// ErrTableNotFound is returned for names absent from the current snapshot.
	ErrTableNotFound = errors.New("table not found")
	// ErrSchemaConflict is returned when member files disagree on a column type.
	ErrSchemaConflict = errors.New("schema conflict")
)

// CollisionPolicy decides what happens when two partition keys map to the
// same table name.
type CollisionPolicy string

const (
	// CollisionSuffix keeps the first key's name and appends "_2", "_3", ...
	// to later keys in partition map order.
	CollisionSuffix CollisionPolicy = "suffix"
	// CollisionError fails the refresh.
	CollisionError CollisionPolicy = "error"
)

// Lister is the file discovery collaborator.
type Lister interface {
	List(ctx context.Context, pattern string) ([]discovery.Object, error)
}

// FileInfo is what the file-reading engine reports about one member file.
type FileInfo struct {
	Schema    *arrow.Schema
	Bounds    orb.Bound
	HasBounds bool
}

// Inspector reads the schema and spatial bounds of one file.
type Inspector interface {
	Inspect(ctx context.Context, uri string) (*FileInfo, error)
}

// Config configures a Catalog.
type Config struct {
	Pattern      string
	MaxHiveDepth *int
	Collision    CollisionPolicy
	// Concurrency bounds parallel file inspection; values < 1 mean unlimited.
	Concurrency int
}

type snapshot struct {
	tables []*Table
	byName map[string]*Table
}

// Catalog owns the partition map of one location pattern. Readers always see
// a complete snapshot: refreshes build a new one and publish it atomically,
// and a failed refresh keeps the previous snapshot.
type Catalog struct {
	cfg       Config
	lister    Lister
	inspector Inspector
	logger    zerolog.Logger

	refreshMu sync.Mutex
	current   atomic.Pointer[snapshot]
}

// New validates cfg and returns an empty catalog. Call Refresh or TableNames
// to populate it.
func New(cfg Config, lister Lister, inspector Inspector, logger zerolog.Logger) (*Catalog, error) {
	if err := partition.CheckDepth(cfg.MaxHiveDepth); err != nil {
		return nil, err
	}
	switch cfg.Collision {
	case "":
		cfg.Collision = CollisionSuffix
	case CollisionSuffix, CollisionError:
	default:
		return nil, fmt.Errorf("%w: unknown name collision policy %q", partition.ErrInvalidArgument, cfg.Collision)
	}
	if lister == nil || inspector == nil {
		return nil, fmt.Errorf("%w: lister and inspector are required", partition.ErrInvalidArgument)
	}

	c := &Catalog{
		cfg:       cfg,
		lister:    lister,
		inspector: inspector,
		logger:    logger.With().Str("module", "catalog").Str("pattern", cfg.Pattern).Logger(),
	}
	c.current.Store(&snapshot{byName: map[string]*Table{}})
	return c, nil
}

// Refresh lists the pattern, rebuilds the partition map and publishes a new
// snapshot. Tables whose key and member files are unchanged keep their cached
// schema and bounds.
func (c *Catalog) Refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	objects, err := c.lister.List(ctx, c.cfg.Pattern)
	if err != nil {
		return err
	}
	groups, err := partition.BuildMap(c.cfg.Pattern, discovery.URIs(objects), c.cfg.MaxHiveDepth)
	if err != nil {
		return err
	}
	names, err := c.assignNames(groups)
	if err != nil {
		return err
	}

	byURI := make(map[string]discovery.Object, len(objects))
	for _, o := range objects {
		byURI[o.URI] = o
	}

	prev := c.current.Load()
	next := &snapshot{
		tables: make([]*Table, 0, len(groups)),
		byName: make(map[string]*Table, len(groups)),
	}
	reused := 0
	for i, g := range groups {
		members := make([]discovery.Object, len(g.Files))
		for j, f := range g.Files {
			members[j] = byURI[f]
		}
		t := c.newTable(names[i], g.Key, members)
		if old, ok := prev.byName[t.Name]; ok && old.sameContents(t) {
			t = old
			reused++
		}
		next.tables = append(next.tables, t)
		next.byName[t.Name] = t
	}
	c.current.Store(next)

	c.logger.Info().
		Int("files", len(objects)).
		Int("tables", len(next.tables)).
		Int("reused", reused).
		Msg("catalog refreshed")
	return nil
}

func (c *Catalog) assignNames(groups []partition.Group) ([]string, error) {
	names := make([]string, len(groups))
	owner := make(map[string]string, len(groups))
	for i, g := range groups {
		base := partition.BuildName(g.Key)
		name := base
		if first, taken := owner[name]; taken {
			if c.cfg.Collision == CollisionError {
				return nil, fmt.Errorf("%w: %q and %q both map to %q", ErrNameCollision, first, g.Key, base)
			}
			for n := 2; taken; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
				_, taken = owner[name]
			}
			c.logger.Warn().
				Str("key", g.Key).
				Str("conflicts_with", first).
				Str("table", name).
				Msg("table name collision, using suffixed name")
		}
		owner[name] = g.Key
		names[i] = name
	}
	return names, nil
}

// TableNames refreshes the catalog and returns the table names in partition
// map order.
func (c *Catalog) TableNames(ctx context.Context) ([]string, error) {
	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}
	tables := c.Tables()
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names, nil
}

// Tables returns the tables of the current snapshot.
func (c *Catalog) Tables() []*Table {
	snap := c.current.Load()
	out := make([]*Table, len(snap.tables))
	copy(out, snap.tables)
	return out
}

// Table looks a table up in the current snapshot.
func (c *Catalog) Table(name string) (*Table, error) {
	t, ok := c.current.Load().byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t, nil
}

// Schema returns the union schema of a table.
func (c *Catalog) Schema(ctx context.Context, name string) (*arrow.Schema, error) {
	t, err := c.Table(name)
	if err != nil {
		return nil, err
	}
	return t.Schema(ctx)
}

// Bounds returns the spatial bounds of a table.
func (c *Catalog) Bounds(ctx context.Context, name string) (orb.Bound, bool, error) {
	t, err := c.Table(name)
	if err != nil {
		return orb.Bound{}, false, err
	}
	return t.Bounds(ctx)
}

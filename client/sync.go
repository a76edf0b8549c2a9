package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cloudquery/plugin-sdk/v4/message"
	"github.com/cloudquery/plugin-sdk/v4/plugin"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/cloudquery/plugin-sdk/v4/state"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"golang.org/x/sync/errgroup"
)

// syncTables performs the full sync pipeline: discover tables, emit migrations,
// then stream records for each member file with optional incremental filtering.
func (c *Client) syncTables(ctx context.Context, options plugin.SyncOptions, res chan<- message.SyncMessage) error {
	stateClient, err := state.NewConnectedClient(ctx, options.BackendOptions)
	if err != nil {
		return fmt.Errorf("failed to initialize state backend: %w", err)
	}
	defer func() {
		if err := stateClient.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to close state client")
		}
	}()

	tables, err := c.discover(ctx)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	c.logger.Info().
		Int("discovered_tables", len(tables)).
		Msg("discovery complete")

	allTables := make(schema.Tables, 0, len(tables))
	tableMap := make(map[string]*DiscoveredTable, len(tables))
	for i := range tables {
		allTables = append(allTables, tables[i].Table)
		tableMap[tables[i].Name] = &tables[i]
	}

	filtered, err := allTables.FilterDfs(options.Tables, options.SkipTables, options.SkipDependentTables)
	if err != nil {
		return fmt.Errorf("failed to filter tables: %w", err)
	}

	c.logger.Info().Int("tables", len(filtered)).Msg("starting sync")

	location := c.locationKey()
	for _, table := range filtered {
		if err := ctx.Err(); err != nil {
			return err
		}

		dt, ok := tableMap[table.Name]
		if !ok {
			continue
		}

		cursor, err := GetCursor(ctx, stateClient, location, table.Name)
		if err != nil {
			c.logger.Warn().Err(err).Str("table", table.Name).Msg("failed to read cursor, performing full sync for table")
			cursor = time.Time{}
		}

		objects := filterObjectsByCursor(dt.Objects, cursor)

		c.logger.Info().
			Str("table", table.Name).
			Str("key", dt.Key).
			Int("total_objects", len(dt.Objects)).
			Int("new_objects", len(objects)).
			Bool("incremental", !cursor.IsZero()).
			Msg("syncing table")

		res <- &message.SyncMigrateTable{Table: table}

		if len(objects) == 0 {
			c.logger.Debug().Str("table", table.Name).Msg("no new objects, skipping table")
			continue
		}

		if err := c.syncTableObjects(ctx, table, objects, res); err != nil {
			return fmt.Errorf("failed to sync table %s: %w", table.Name, err)
		}

		if maxMod := maxLastModified(objects); !maxMod.IsZero() {
			if err := SetCursor(ctx, stateClient, location, table.Name, maxMod); err != nil {
				c.logger.Warn().Err(err).Str("table", table.Name).Msg("failed to set cursor")
			}
		}
	}

	if err := stateClient.Flush(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("failed to flush state backend")
	}

	c.logger.Info().Msg("sync complete")
	return nil
}

// syncTableObjects processes all member files of a table, at most
// spec.Concurrency at a time (unbounded when negative). The first failing file
// cancels the others.
func (c *Client) syncTableObjects(ctx context.Context, table *schema.Table, objects []discovery.Object, res chan<- message.SyncMessage) error {
	g, gctx := errgroup.WithContext(ctx)
	if c.spec.Concurrency > 0 {
		g.SetLimit(c.spec.Concurrency)
	}
	for _, obj := range objects {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return c.syncObject(gctx, table, obj, res)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// syncObject streams records from a single member file, conforms them to the
// table schema and emits SyncInsert messages.
func (c *Client) syncObject(ctx context.Context, table *schema.Table, obj discovery.Object, res chan<- message.SyncMessage) error {
	records := make(chan arrow.RecordBatch, 1)
	errCh := make(chan error, 1)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		defer close(records)
		errCh <- c.streamRecords(streamCtx, obj.URI, c.spec.RowsPerRecord, records)
	}()

	target := table.ToArrowSchema()
	var (
		totalRows int64
		convErr   error
	)
	for rec := range records {
		if convErr != nil {
			rec.Release()
			continue
		}
		out, err := conformRecord(memory.DefaultAllocator, rec, target, obj.URI)
		rec.Release()
		if err != nil {
			convErr = err
			cancel()
			continue
		}
		totalRows += out.NumRows()
		res <- &message.SyncInsert{Record: out}
	}
	streamErr := <-errCh
	if convErr != nil {
		return fmt.Errorf("failed to sync object %s: %w", obj.URI, convErr)
	}

	if err := streamErr; err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			c.logger.Warn().
				Str("uri", obj.URI).
				Str("table", table.Name).
				Msg("object deleted between list and read, skipping")
			return nil
		}

		if isMalformedParquetError(err) {
			c.logger.Warn().
				Err(err).
				Str("uri", obj.URI).
				Str("table", table.Name).
				Msg("malformed parquet file, skipping")
			return nil
		}

		return fmt.Errorf("failed to sync object %s: %w", obj.URI, err)
	}

	c.logger.Debug().
		Str("uri", obj.URI).
		Str("table", table.Name).
		Int64("rows", totalRows).
		Int64("size_bytes", obj.Size).
		Msg("object synced")

	return nil
}

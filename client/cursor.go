package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudquery/plugin-sdk/v4/state"
	"github.com/infobloxopen/cq-source-geoparquet/internal/connstr"
)

// CursorKey returns the state backend key for a table's incremental cursor.
// The location is hashed so keys stay short and free of URI syntax.
func CursorKey(location, tableName string) string {
	return fmt.Sprintf("geoparquet/%s/%s/last_modified_cursor", connstr.PoolKey(location, nil), tableName)
}

// GetCursor retrieves the stored cursor timestamp for a table.
// Returns zero-time if no cursor exists or the value cannot be parsed.
func GetCursor(ctx context.Context, sc state.Client, location, tableName string) (time.Time, error) {
	val, err := sc.GetKey(ctx, CursorKey(location, tableName))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get cursor for %s: %w", tableName, err)
	}
	if val == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, val)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// SetCursor stores the cursor timestamp for a table.
func SetCursor(ctx context.Context, sc state.Client, location, tableName string, cursor time.Time) error {
	return sc.SetKey(ctx, CursorKey(location, tableName), cursor.UTC().Format(time.RFC3339Nano))
}

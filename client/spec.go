package client

import (
	"fmt"

	"github.com/infobloxopen/cq-source-geoparquet/internal/catalog"
	"github.com/infobloxopen/cq-source-geoparquet/internal/connstr"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
)

// Spec is the user-facing configuration for the GeoParquet source plugin.
type Spec struct {
	// Location is a file, directory or glob on the local filesystem, in S3
	// (s3://bucket/...) or over HTTP. It may carry options as a query string,
	// e.g. "s3://bucket/**/*?s3_region=us-west-2".
	Location string `json:"location"`
	// MaxHiveDepth bounds how many key=value directory levels stay separate
	// tables. Unset keeps every level, 0 collapses everything into one table.
	MaxHiveDepth   *int   `json:"max_hive_depth,omitempty"`
	NameCollision  string `json:"name_collision,omitempty"`
	Region         string `json:"region,omitempty"`
	LocalProfile   string `json:"local_profile,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	PathStyle      bool   `json:"path_style,omitempty"`
	FileType       string `json:"filetype,omitempty"`
	RowsPerRecord  int    `json:"rows_per_record,omitempty"`
	Concurrency    int    `json:"concurrency,omitempty"`
	HTTPMaxRetries int    `json:"http_max_retries,omitempty"`
}

// SetDefaults applies default values for optional fields.
func (s *Spec) SetDefaults() {
	if s.FileType == "" {
		s.FileType = "parquet"
	}
	if s.RowsPerRecord == 0 {
		s.RowsPerRecord = 500
	}
	if s.Concurrency == 0 {
		s.Concurrency = 50
	}
	if s.HTTPMaxRetries == 0 {
		s.HTTPMaxRetries = 3
	}
	if s.NameCollision == "" {
		s.NameCollision = string(catalog.CollisionSuffix)
	}
}

// Validate checks that required fields are set and values are valid.
func (s *Spec) Validate() error {
	if s.Location == "" {
		return fmt.Errorf("location is required")
	}
	if err := partition.CheckDepth(s.MaxHiveDepth); err != nil {
		return err
	}
	switch catalog.CollisionPolicy(s.NameCollision) {
	case catalog.CollisionSuffix, catalog.CollisionError:
	default:
		return fmt.Errorf("unsupported name_collision: %q; supported: suffix, error", s.NameCollision)
	}
	if s.FileType != "parquet" {
		return fmt.Errorf("unsupported filetype: %q; supported: parquet", s.FileType)
	}
	if s.RowsPerRecord < 1 {
		return fmt.Errorf("rows_per_record must be at least 1")
	}

	_, params, err := connstr.FromPattern(s.Location)
	if err != nil {
		return fmt.Errorf("invalid location options: %w", err)
	}
	switch discovery.Scheme(s.Location) {
	case "s3":
		if s.Region == "" && params[optRegion] == "" {
			return fmt.Errorf("region is required for s3 locations")
		}
	case "", "file", "http", "https":
	default:
		return fmt.Errorf("unsupported location scheme in %q", s.Location)
	}
	return nil
}

// Extension returns the file extension discovery filters on.
func (s *Spec) Extension() string {
	return "." + s.FileType
}

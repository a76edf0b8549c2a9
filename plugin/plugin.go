// Package plugin provides the CloudQuery plugin wiring for cq-source-geoparquet.
package plugin

import (
	"github.com/infobloxopen/cq-source-geoparquet/client"

	"github.com/cloudquery/plugin-sdk/v4/plugin"
)

// Version is set at build time via ldflags.
var (
	Version = "development"
)

// Plugin returns a new CloudQuery source plugin serving Hive-partitioned
// GeoParquet datasets as tables.
func Plugin() *plugin.Plugin {
	return plugin.NewPlugin(
		"cq-source-geoparquet",
		Version,
		client.Configure,
	)
}

package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cloudquery/plugin-sdk/v4/message"
	"github.com/cloudquery/plugin-sdk/v4/plugin"
	"github.com/cloudquery/plugin-sdk/v4/schema"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/infobloxopen/cq-source-geoparquet/internal/catalog"
	"github.com/infobloxopen/cq-source-geoparquet/internal/connstr"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
	"github.com/rs/zerolog"
)

// Client implements the CloudQuery SourceClient interface for GeoParquet
// locations.
type Client struct {
	plugin.UnimplementedDestination

	logger  zerolog.Logger
	spec    Spec
	query   string
	s3      *s3Pool
	http    *retryablehttp.Client
	catalog *catalog.Catalog
}

// Configure is the NewClientFunc that the plugin SDK calls to create a Client.
func Configure(ctx context.Context, logger zerolog.Logger, specBytes []byte, opts plugin.NewClientOptions) (plugin.Client, error) {
	var spec Spec
	if err := json.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal spec: %w", err)
	}
	spec.SetDefaults()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spec: %w", err)
	}
	c, err := New(ctx, logger, spec)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// New builds a client for an already validated spec.
func New(ctx context.Context, logger zerolog.Logger, spec Spec) (*Client, error) {
	_, query := partition.SplitQuery(spec.Location)
	c := &Client{
		logger: logger,
		spec:   spec,
		query:  query,
		s3:     newS3Pool(spec),
		http:   discovery.NewRetryableClient(spec.HTTPMaxRetries),
	}

	router := &discovery.Router{
		Local: discovery.NewLocalLister(spec.Extension()),
		S3: discovery.NewS3Lister(func(ctx context.Context, query string) (s3.ListObjectsV2APIClient, error) {
			client, err := c.s3.get(ctx, query)
			if err != nil {
				return nil, err
			}
			return client, nil
		}, spec.Extension()),
		HTTP: discovery.NewHTTPLister(c.http),
	}

	if discovery.Scheme(spec.Location) == "s3" {
		if _, err := c.s3.get(ctx, query); err != nil {
			return nil, err
		}
	}

	cat, err := catalog.New(catalog.Config{
		Pattern:      spec.Location,
		MaxHiveDepth: spec.MaxHiveDepth,
		Collision:    catalog.CollisionPolicy(spec.NameCollision),
		Concurrency:  spec.Concurrency,
	}, router, c, logger)
	if err != nil {
		return nil, err
	}
	c.catalog = cat
	return c, nil
}

// ID returns a unique identifier for this client instance. Query options are
// normalized so their order does not change the ID.
func (c *Client) ID() string {
	return "cq-source-geoparquet:" + c.locationKey()
}

func (c *Client) locationKey() string {
	loc, params, err := connstr.FromPattern(c.spec.Location)
	if err != nil {
		return c.spec.Location
	}
	return connstr.Build(loc, params)
}

// Tables returns the tables of the current partition map.
func (c *Client) Tables(ctx context.Context, options plugin.TableOptions) (schema.Tables, error) {
	tables, err := c.discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tables: %w", err)
	}

	allTables := make(schema.Tables, 0, len(tables))
	for _, dt := range tables {
		allTables = append(allTables, dt.Table)
	}

	filtered, err := allTables.FilterDfs(options.Tables, options.SkipTables, options.SkipDependentTables)
	if err != nil {
		return nil, fmt.Errorf("failed to filter tables: %w", err)
	}

	return filtered, nil
}

// Sync streams the rows of every selected table to the destination.
func (c *Client) Sync(ctx context.Context, options plugin.SyncOptions, res chan<- message.SyncMessage) error {
	return c.syncTables(ctx, options, res)
}

// Close releases resources held by the client.
func (c *Client) Close(ctx context.Context) error {
	c.http.HTTPClient.CloseIdleConnections()
	c.logger.Debug().Int("s3_clients", c.s3.size()).Msg("client closed")
	return nil
}

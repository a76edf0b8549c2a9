package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/infobloxopen/cq-source-geoparquet/internal/connstr"
)

// Location query options understood for S3, named after their DuckDB
// counterparts.
const (
	optRegion   = "s3_region"
	optEndpoint = "s3_endpoint"
	optURLStyle = "s3_url_style"
)

// s3Settings are the inputs that make two S3 clients different.
type s3Settings struct {
	Region    string
	Endpoint  string
	PathStyle bool
	Profile   string
}

func (s s3Settings) params() map[string]string {
	p := map[string]string{
		"region":     s.Region,
		"path_style": strconv.FormatBool(s.PathStyle),
	}
	if s.Endpoint != "" {
		p["endpoint"] = s.Endpoint
	}
	if s.Profile != "" {
		p["profile"] = s.Profile
	}
	return p
}

// s3Pool caches S3 clients by the pool key of their settings.
type s3Pool struct {
	defaults s3Settings

	mu      sync.Mutex
	clients map[string]*s3.Client
}

func newS3Pool(spec Spec) *s3Pool {
	return &s3Pool{
		defaults: s3Settings{
			Region:    spec.Region,
			Endpoint:  spec.Endpoint,
			PathStyle: spec.PathStyle,
			Profile:   spec.LocalProfile,
		},
		clients: make(map[string]*s3.Client),
	}
}

// settings overlays location query options on the configured defaults.
func (p *s3Pool) settings(query string) (s3Settings, error) {
	params, err := connstr.ParseQuery(query)
	if err != nil {
		return s3Settings{}, fmt.Errorf("invalid location options: %w", err)
	}
	s := p.defaults
	if v := params[optRegion]; v != "" {
		s.Region = v
	}
	if v := params[optEndpoint]; v != "" {
		s.Endpoint = v
	}
	switch params[optURLStyle] {
	case "path":
		s.PathStyle = true
	case "vhost":
		s.PathStyle = false
	}
	return s, nil
}

func (p *s3Pool) get(ctx context.Context, query string) (*s3.Client, error) {
	s, err := p.settings(query)
	if err != nil {
		return nil, err
	}
	key := connstr.PoolKey("s3", s.params())

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[key]; ok {
		return c, nil
	}

	cfgOpts := []func(*config.LoadOptions) error{
		config.WithRegion(s.Region),
	}
	if s.Profile != "" {
		cfgOpts = append(cfgOpts, config.WithSharedConfigProfile(s.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	var s3Opts []func(*s3.Options)
	if s.Endpoint != "" {
		endpoint := s.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s.PathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	c := s3.NewFromConfig(cfg, s3Opts...)
	p.clients[key] = c
	return c, nil
}

func (p *s3Pool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

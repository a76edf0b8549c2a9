package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/infobloxopen/cq-source-geoparquet/internal/discovery"
)

// localPath returns a path on the local filesystem holding the file at uri.
// Remote files are spooled to a temp file which cleanup removes.
func (c *Client) localPath(ctx context.Context, uri string) (string, func(), error) {
	switch discovery.Scheme(uri) {
	case "s3":
		return c.downloadS3(ctx, uri)
	case "http", "https":
		return c.downloadHTTP(ctx, uri)
	default:
		return strings.TrimPrefix(uri, "file://"), func() {}, nil
	}
}

func (c *Client) downloadS3(ctx context.Context, uri string) (string, func(), error) {
	bucket, key, err := discovery.ParseS3(uri)
	if err != nil {
		return "", nil, err
	}
	client, err := c.s3.get(ctx, c.query)
	if err != nil {
		return "", nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	defer func() { _ = resp.Body.Close() }()
	return spool(resp.Body, uri)
}

func (c *Client) downloadHTTP(ctx context.Context, uri string) (string, func(), error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build request for %s: %w", uri, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("failed to download %s: %w", uri, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", nil, fmt.Errorf("failed to download %s: unexpected status %s", uri, resp.Status)
	}
	return spool(resp.Body, uri)
}

// spool copies body into a temp file and returns its path and a cleanup
// function.
func spool(body io.Reader, uri string) (string, func(), error) {
	tmpFile, err := os.CreateTemp("", "cq-geoparquet-*.parquet")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmpFile.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := io.Copy(tmpFile, body); err != nil {
		_ = tmpFile.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to write temp file for %s: %w", uri, err)
	}
	if err := tmpFile.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to close temp file for %s: %w", uri, err)
	}
	return name, cleanup, nil
}

package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/infobloxopen/cq-source-geoparquet/internal/partition"
)

// S3ClientFunc resolves the S3 client for a pattern's query string, so that
// options such as "?s3_region=us-west-2" select the right endpoint.
type S3ClientFunc func(ctx context.Context, query string) (s3.ListObjectsV2APIClient, error)

// S3Lister lists objects with ListObjectsV2.
type S3Lister struct {
	client S3ClientFunc
	ext    string
}

// NewS3Lister returns a lister that keeps wildcard matches ending in ext.
func NewS3Lister(client S3ClientFunc, ext string) *S3Lister {
	return &S3Lister{client: client, ext: ext}
}

// ParseS3 splits "s3://bucket/key" into bucket and key.
func ParseS3(location string) (string, string, error) {
	rest, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	bucket, key, _ := strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %q", location)
	}
	return bucket, key, nil
}

// List pages through the static key prefix of pattern and returns matching
// objects as s3:// URIs.
func (l *S3Lister) List(ctx context.Context, pattern string) ([]Object, error) {
	loc, query := partition.SplitQuery(pattern)
	bucket, keyPattern, err := ParseS3(loc)
	if err != nil {
		return nil, err
	}
	client, err := l.client(ctx, query)
	if err != nil {
		return nil, err
	}

	exact := !partition.HasWildcard(keyPattern)
	var m *Matcher
	prefix := keyPattern
	if !exact {
		if m, err = NewMatcher(keyPattern); err != nil {
			return nil, err
		}
		prefix = StaticPrefix(keyPattern)
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var objects []Object
	paginator := s3.NewListObjectsV2Paginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapS3Error(err, bucket)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if exact {
				if key != keyPattern {
					continue
				}
			} else if strings.HasSuffix(key, "/") || !m.Match(key) || !hasExtension(key, l.ext) {
				continue
			}
			o := Object{
				URI:  "s3://" + bucket + "/" + key,
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				o.LastModified = obj.LastModified.UTC()
			}
			objects = append(objects, o)
		}
	}

	return objects, nil
}

// wrapS3Error adds user-friendly context to common S3 failures.
func wrapS3Error(err error, bucket string) error {
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "accessdenied") || strings.Contains(lower, "403") {
		return fmt.Errorf("access denied for bucket %q: verify IAM permissions (s3:ListBucket, s3:GetObject): %w", bucket, err)
	}
	if strings.Contains(lower, "nosuchbucket") || strings.Contains(lower, "404") {
		return fmt.Errorf("bucket not found: %q, verify the bucket name and region: %w", bucket, err)
	}
	return fmt.Errorf("failed to list objects in bucket %s: %w", bucket, err)
}

package client

import (
	"context"
	"testing"
)

func TestS3Pool_Settings(t *testing.T) {
	p := newS3Pool(Spec{Region: "us-east-1", Endpoint: "http://localhost:4566"})

	tests := []struct {
		name  string
		query string
		want  s3Settings
	}{
		{"defaults", "", s3Settings{Region: "us-east-1", Endpoint: "http://localhost:4566"}},
		{"region override", "?s3_region=eu-west-1", s3Settings{Region: "eu-west-1", Endpoint: "http://localhost:4566"}},
		{"path style", "?s3_url_style=path", s3Settings{Region: "us-east-1", Endpoint: "http://localhost:4566", PathStyle: true}},
		{"endpoint", "?s3_endpoint=minio:9000&s3_region=x", s3Settings{Region: "x", Endpoint: "minio:9000"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := p.settings(tc.query)
			if err != nil {
				t.Fatalf("settings: %v", err)
			}
			if got != tc.want {
				t.Errorf("settings(%q) = %+v, want %+v", tc.query, got, tc.want)
			}
		})
	}
}

func TestS3Pool_ReusesClients(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	ctx := context.Background()
	p := newS3Pool(Spec{Region: "us-east-1"})

	a, err := p.get(ctx, "?s3_region=eu-west-1&s3_url_style=path")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := p.get(ctx, "?s3_url_style=path&s3_region=eu-west-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != b {
		t.Error("option order should not create a second client")
	}
	if _, err := p.get(ctx, ""); err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.size() != 2 {
		t.Errorf("pool size = %d, want 2", p.size())
	}
}

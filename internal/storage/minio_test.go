package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"docportal/internal/config"
)

func TestNewMinIO_RejectsIncompleteConfig(t *testing.T) {
	full := config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "documents"}

	tests := []struct {
		name   string
		mutate func(c *config.MinIOConfig)
		want   string
	}{
		{"no endpoint", func(c *config.MinIOConfig) { c.Endpoint = "" }, "endpoint is required"},
		{"no access key", func(c *config.MinIOConfig) { c.AccessKey = "" }, "credentials are required"},
		{"no secret key", func(c *config.MinIOConfig) { c.SecretKey = "" }, "credentials are required"},
		{"no bucket", func(c *config.MinIOConfig) { c.Bucket = "" }, "bucket is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := full
			tt.mutate(&cfg)
			s, err := NewMinIO(context.Background(), cfg)
			assert.Nil(t, s)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

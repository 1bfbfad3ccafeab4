package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DatabaseURL string // PROCURE_DATABASE_URL (required)
	HTTPAddr    string // PROCURE_HTTP_ADDR (default ":8080")
	NATSURL     string // PROCURE_NATS_URL (optional, empty = no events)
	AuthToken   string // PROCURE_AUTH_TOKEN (optional, empty = auth disabled)

	// Blob storage settings
	BlobS3Bucket   string // PROCURE_BLOB_S3_BUCKET (enables S3 when set)
	BlobS3Endpoint string // PROCURE_BLOB_S3_ENDPOINT (custom endpoint for MinIO)
	BlobS3Region   string // PROCURE_BLOB_S3_REGION (default "us-east-1")

	// Document extraction settings
	ExtractorURL     string        // PROCURE_EXTRACTOR_URL (optional, empty = extraction disabled)
	ExtractorTimeout time.Duration // PROCURE_EXTRACTOR_TIMEOUT (default 30s)
}

func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:    os.Getenv("PROCURE_DATABASE_URL"),
		HTTPAddr:       envOrDefault("PROCURE_HTTP_ADDR", ":8080"),
		NATSURL:        os.Getenv("PROCURE_NATS_URL"),
		AuthToken:      os.Getenv("PROCURE_AUTH_TOKEN"),
		BlobS3Bucket:   os.Getenv("PROCURE_BLOB_S3_BUCKET"),
		BlobS3Endpoint: os.Getenv("PROCURE_BLOB_S3_ENDPOINT"),
		BlobS3Region:   envOrDefault("PROCURE_BLOB_S3_REGION", "us-east-1"),
		ExtractorURL:   os.Getenv("PROCURE_EXTRACTOR_URL"),
	}
	if c.DatabaseURL == "" {
		return nil, fmt.Errorf("PROCURE_DATABASE_URL is required")
	}

	timeoutStr := envOrDefault("PROCURE_EXTRACTOR_TIMEOUT", "30s")
	d, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("PROCURE_EXTRACTOR_TIMEOUT: %w", err)
	}
	c.ExtractorTimeout = d

	return c, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

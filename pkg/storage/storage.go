// Package storage keeps uploaded document blobs on the local filesystem or
// in an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

// Storage stores opaque blobs under caller-chosen keys.
type Storage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Config selects the backend. When S3_BUCKET is set S3 is used, otherwise
// blobs go to STORAGE_DIR.
type Config struct {
	Dir            string `env:"STORAGE_DIR" envDefault:"./data/uploads"`
	Bucket         string `env:"S3_BUCKET"`
	Region         string `env:"S3_REGION" envDefault:"us-east-1"`
	AccessKeyID    string `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"S3_SECRET_KEY"`
	Endpoint       string `env:"S3_ENDPOINT"`
	ForcePathStyle bool   `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
}

func (c Config) S3Enabled() bool {
	return c.Bucket != ""
}

// New returns the backend matching cfg.
func New(ctx context.Context, cfg Config) (Storage, error) {
	if cfg.S3Enabled() {
		return NewS3Storage(ctx, cfg)
	}
	return NewLocalStorage(cfg.Dir)
}

// DocumentKey builds the storage key for an uploaded document.
func DocumentKey(userID, documentID, fileName string) string {
	name := SanitizeFilename(fileName)
	return path.Join("documents", userID, documentID+"-"+name)
}

// SanitizeFilename strips directories and characters that are unsafe in keys.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	return key, nil
}

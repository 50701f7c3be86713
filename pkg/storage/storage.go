// Package storage keeps uploaded contact files as opaque blobs on the local
// filesystem or in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// Storage is a flat key/value blob store.
type Storage interface {
	// Put writes r under key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get opens the object. The caller closes the reader.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object. Missing objects return ErrObjectNotFound.
	Delete(ctx context.Context, key string) error
	// Exists reports whether the object is present.
	Exists(ctx context.Context, key string) bool
}

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Config selects and configures the backend.
type Config struct {
	Driver   string `env:"STORAGE_DRIVER" envDefault:"local"`
	LocalDir string `env:"STORAGE_LOCAL_DIR" envDefault:"./data/uploads"`
	S3       S3Config
}

// New builds the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config, opts ...S3Option) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverLocal, "":
		return NewLocal(cfg.LocalDir)
	case DriverS3:
		return NewS3(ctx, cfg.S3, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

// ObjectKey builds the key for an uploaded file: uploads/<user>/<file>/<name>.
func ObjectKey(userID, fileID, filename string) string {
	return path.Join("uploads", userID, fileID, SanitizeFilename(filename))
}

// SanitizeFilename strips directories and NUL bytes from a client-supplied name.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	filename = strings.ReplaceAll(filename, "\x00", "")

	if filename == "." || filename == ".." || filename == "" || filename == "/" {
		filename = "unnamed"
	}
	return filename
}

func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(filepath.ToSlash(key), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key, nil
}

// Package store provides the key/value backends used to persist the best
// match score across sessions.
package store

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Backend is a minimal key/value store
type Backend interface {
	// Get returns the value for key; ok is false when the key is absent
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources
	Close() error
}

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// DefaultDBFile is the sqlite database used when no path is configured
const DefaultDBFile = "chime.sqlite3"

// Config selects and configures a backend
type Config struct {
	Backend       string
	Path          string
	MongoURI      string
	MongoDatabase string
}

// Open creates the backend named by cfg.Backend
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendSQLite, "":
		path := cfg.Path
		if path == "" {
			path = os.Getenv("CHIME_DB_PATH")
		}
		if path == "" {
			path = DefaultDBFile
		}
		return NewSQLite(path)
	case BackendMongo:
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store backend: %q (valid: memory, sqlite, mongo)", cfg.Backend)
	}
}

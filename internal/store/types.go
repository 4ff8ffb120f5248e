// Package store provides the durable string-keyed storage behind the
// identity record.
//
// Backends:
//   - sqlite: a single-table key/value database (default)
//   - redis: a shared key/value server, for kiosks that share one profile
//   - memory: process-local, for tests and ephemeral runs
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend is a durable string-keyed store.
type Backend interface {
	// Get returns the value stored under key. ok is false when the key
	// does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the backend's resources.
	Close() error
}

var (
	// ErrCorrupt is returned when a stored value fails its integrity check.
	ErrCorrupt = errors.New("store: value failed integrity check")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("store: backend closed")

	// ErrUnknownType is returned by Open for an unsupported backend type.
	ErrUnknownType = errors.New("store: unknown backend type")
)

// Backend type names accepted by Open.
const (
	TypeSQLite = "sqlite"
	TypeRedis  = "redis"
	TypeMemory = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Type string

	// Path is the sqlite database file.
	Path string

	// BusyTimeout is the sqlite busy timeout.
	BusyTimeout time.Duration

	// RedisAddr, RedisDB and KeyPrefix configure the redis backend.
	RedisAddr string
	RedisDB   int
	KeyPrefix string
}

// Open creates the backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	switch opts.Type {
	case TypeSQLite, "":
		return OpenSQLite(opts.Path, opts.BusyTimeout)
	case TypeRedis:
		return OpenRedis(ctx, RedisConfig{
			Addr:      opts.RedisAddr,
			DB:        opts.RedisDB,
			KeyPrefix: opts.KeyPrefix,
		})
	case TypeMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, opts.Type)
	}
}

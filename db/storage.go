package db

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Storage is the durable key-value collaborator the session layer persists into.
// Read reports absence with ok=false rather than an error.
type Storage interface {
	Read(ctx context.Context, key string) (value string, ok bool, err error)
	Write(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	// Apply performs every write and removal of batch, or none of them.
	Apply(ctx context.Context, batch Batch) error
	io.Closer
}

// Batch is a set of changes applied together by Storage.Apply.
type Batch struct {
	Writes  map[string]string
	Removes []string
}

// Options selects and configures a Storage backend.
type Options struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
}

// Open returns the Storage for opts.Backend. The sqlite backend initializes
// the global database at Path and closes it on Close.
func Open(ctx context.Context, opts Options) (Storage, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		if err := InitDB(); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return &closingStorage{Storage: NewGormStorage(GetDB()), close: CloseDB}, nil
	case BackendRedis:
		return ConnectRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisPrefix)
	case BackendMemory:
		log.Warn().Msg("Using in-memory session storage; the session will not survive a restart")
		return NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

type closingStorage struct {
	Storage
	close func() error
}

func (s *closingStorage) Close() error { return s.close() }

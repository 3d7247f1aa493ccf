package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Adapter is a minimal key/value capability. Get reports ok=false for a key
// that was never written; an error means the backend itself failed.
type Adapter interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Config selects and parameterises a backend.
type Config struct {
	Backend string
	// Path is the data directory of the file backend.
	Path string
	// DSN is the postgres connection string.
	DSN string
}

// Open returns the adapter described by cfg plus a close func. When the durable
// backend cannot be opened the error is logged and a Memory adapter is returned
// instead; the returned Adapter is never nil.
func Open(ctx context.Context, cfg Config) (Adapter, func() error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(), noop

	case BackendFile:
		f, err := NewFile(cfg.Path)
		if err != nil {
			slog.Warn("storage: file backend unavailable, using memory", "path", cfg.Path, "err", err)
			return NewMemory(), noop
		}
		slog.Info("storage: using file backend", "path", cfg.Path)
		return f, noop

	case BackendPostgres:
		pg, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			slog.Warn("storage: postgres backend unavailable, using memory", "err", err)
			return NewMemory(), noop
		}
		slog.Info("storage: using postgres backend")
		return pg, pg.Close

	default:
		slog.Warn("storage: unknown backend, using memory", "backend", cfg.Backend)
		return NewMemory(), noop
	}
}

// Validate reports whether backend is a known backend name.
func Validate(backend string) error {
	switch backend {
	case "", BackendMemory, BackendFile, BackendPostgres:
		return nil
	}
	return fmt.Errorf("unknown storage backend %q", backend)
}

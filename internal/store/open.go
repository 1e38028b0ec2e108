package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Open returns the backend named by kind rooted at path. KindNone returns a
// nil Store: callers treat that as "no durable storage available". The
// returned close func is never nil.
func Open(ctx context.Context, kind Kind, path string, logger *slog.Logger) (Store, func() error, error) {
	noop := func() error { return nil }
	switch kind {
	case KindFile, "":
		return NewFileStore(path, logger), noop, nil
	case KindSQLite:
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return nil, noop, fmt.Errorf("create store dir: %w", err)
			}
		}
		st, err := NewSQLiteStore(path, logger)
		if err != nil {
			return nil, noop, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, noop, fmt.Errorf("migrate %s: %w", path, err)
		}
		return st, st.Close, nil
	case KindMemory:
		return NewMemoryStore(), noop, nil
	case KindNone:
		return nil, noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown storage kind %q (want file, sqlite, memory or none)", kind)
	}
}

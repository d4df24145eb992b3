package audit

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"
)

type OpenOptions struct {
	// DatabaseURL selects the Postgres store; Dir is used otherwise.
	DatabaseURL string
	Dir         string
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the configured store. The caller registers the "postgres"
// driver and closes the returned closer.
func Open(ctx context.Context, opts OpenOptions) (Store, io.Closer, error) {
	if opts.DatabaseURL == "" {
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, nil, err
		}
		return fs, nopCloser{}, nil
	}
	db, err := sql.Open("postgres", opts.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("audit db open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("audit db ping: %w", err)
	}
	store := NewPGStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, db, nil
}

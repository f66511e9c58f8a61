// Package postgres is the networked Store backend: a pooled
// database/sql client over lib/pq, with pgvector columns for embedding
// and face-vector similarity queries. It mirrors the connection-pool
// wrapper the original photo-sorter kept around *sql.DB, generalised to
// implement the full store.Store contract.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Backend implements store.Store against a PostgreSQL server.
type Backend struct {
	db *sql.DB
}

// Open connects, configures pool limits, verifies connectivity, and
// applies any pending migrations before returning.
func Open(ctx context.Context, url string, poolSize int) (*Backend, error) {
	if url == "" {
		return nil, errors.New("postgres: connection URL is required")
	}
	if poolSize <= 0 {
		poolSize = 10
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize / 2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	b := &Backend{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return b, nil
}

// Close releases the underlying connection pool.
func (b *Backend) Close() error {
	return b.db.Close()
}

// DB exposes the underlying connection pool for the cross-backend
// migration utility, which needs raw table access that the Store
// contract deliberately does not expose (explicit id preservation,
// FK-ordered bulk copy).
func (b *Backend) DB() *sql.DB {
	return b.db
}

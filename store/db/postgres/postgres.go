// Package postgres implements the store driver on PostgreSQL with the
// pgvector extension for native vector distance computation.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hbt123-123/firemark/internal/profile"
	"github.com/hbt123-123/firemark/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a connection to the PostgreSQL instance described by the
// profile DSN.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping db")
	}

	return &DB{db: db, profile: profile}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Migrate creates the schema. The embedding column dimension is fixed
// at deployment level by the profile.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return errors.Wrap(err, "failed to enable pgvector extension")
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory (
			id SERIAL PRIMARY KEY,
			uid TEXT NOT NULL UNIQUE,
			creator_id INTEGER NOT NULL,
			memory_type TEXT NOT NULL,
			content TEXT NOT NULL,
			context TEXT NOT NULL DEFAULT '',
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_creator_type ON memory (creator_id, memory_type)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_creator_created ON memory (creator_id, created_ts)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_embedding (
			id SERIAL PRIMARY KEY,
			memory_id INTEGER NOT NULL UNIQUE REFERENCES memory (id) ON DELETE CASCADE,
			creator_id INTEGER NOT NULL,
			memory_type TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_ts BIGINT NOT NULL
		)`, d.profile.EmbeddingDim),
		`CREATE INDEX IF NOT EXISTS idx_memory_embedding_creator_type ON memory_embedding (creator_id, memory_type)`,
	}

	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "failed to migrate schema")
		}
	}
	return nil
}

// placeholder returns the positional parameter for the given 1-based index.
func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

// placeholders returns "$1, $2, ..., $n".
func placeholders(n int) string {
	list := make([]string, n)
	for i := range list {
		list[i] = placeholder(i + 1)
	}
	return strings.Join(list, ", ")
}

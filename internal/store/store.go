// Package store is the durable Postgres-backed persistence layer for the
// hive kernel (spec.md §6). It follows the teacher's db package: one
// pgxpool.Pool, a schema file loaded at startup, and small per-table
// methods that take a context and use parameterized queries.
package store

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps the connection pool shared by every component that needs
// durable state.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool and verifies connectivity.
func Connect(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	log.Println("[Store] connected to Postgres")
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema loads and executes schema.sql. All DDL is idempotent
// (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) so it is safe
// to run on every startup.
func (s *Store) InitSchema(ctx context.Context) error {
	schemaBytes, err := os.ReadFile("internal/store/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}
	if _, err := s.pool.Exec(ctx, string(schemaBytes)); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	log.Println("[Store] schema initialized")
	return nil
}

// Pool exposes the underlying pool for components (e.g. the operator's
// read-only status queries) that need direct access.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// pruneToRowCap keeps at most maxRows of the newest rows (by id) in an
// append-only table, deleting the oldest overflow in one statement. This
// is the ring-buffer pruning strategy spec.md §6 requires for
// contribution_ledger, hive_planner_log, and the gossip report tables.
func (s *Store) pruneToRowCap(ctx context.Context, table string, maxRows int) error {
	sql := fmt.Sprintf(`
		DELETE FROM %s
		WHERE id IN (
			SELECT id FROM %s ORDER BY id DESC OFFSET $1
		)
	`, table, table)
	_, err := s.pool.Exec(ctx, sql, maxRows)
	return err
}

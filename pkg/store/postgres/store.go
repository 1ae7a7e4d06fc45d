// Package postgres provides a PostgreSQL-backed implementation of
// [store.TranscriptStore] on top of a [pgxpool.Pool].
//
// The store does not create its own schema on startup: [Migrate] is a
// separate, explicitly invoked step. Running against a database that has not
// been provisioned yet is a supported condition; writes then fail with
// SQLSTATE 42P01 (undefined_table), which the persistence sink treats as
// "storage not provisioned" and downgrades to a no-op.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eburon-ai/orbit/pkg/store"
)

// Compile-time interface check.
var _ store.TranscriptStore = (*Store)(nil)

// defaultListLimit bounds ListByOwner when the caller passes no limit.
const defaultListLimit = 200

const ddlTranscriptions = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id          UUID         PRIMARY KEY,
    user_id     TEXT         NOT NULL,
    room_name   TEXT         NOT NULL,
    sender      TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_user_created
    ON transcriptions (user_id, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_transcriptions_room
    ON transcriptions (room_name);
`

// Store is a PostgreSQL-backed transcript store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New establishes a connection pool to the PostgreSQL database at dsn and
// verifies connectivity with a ping. It does not run migrations; call
// [Migrate] separately to provision the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the transcriptions table and its indexes. It is idempotent
// and safe to run on every invocation of the migrate command.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscriptions); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Migrate provisions the schema using the store's own pool.
func (s *Store) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool)
}

// Save implements [store.TranscriptStore].
func (s *Store) Save(ctx context.Context, entry store.Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcriptions (id, user_id, room_name, sender, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.OwnerID, entry.RoomName, string(entry.Sender), entry.Text, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: save entry: %w", err)
	}
	return nil
}

// ListByOwner implements [store.TranscriptStore]. Entries are returned newest
// first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit int) ([]store.Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, room_name, sender, text, created_at
		FROM transcriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list entries: %w", err)
	}
	defer rows.Close()

	var entries []store.Entry
	for rows.Next() {
		var e store.Entry
		var sender string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.RoomName, &sender, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres store: scan entry: %w", err)
		}
		e.Sender = store.Sender(sender)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres store: iterate entries: %w", err)
	}
	return entries, nil
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

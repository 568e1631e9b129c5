package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/facedetector/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages the PostgreSQL pool backing the transfer audit log.
// Workers record concurrently, so it holds a pool rather than a single connection.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Auto-Migration
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			peer TEXT NOT NULL,
			expected INT NOT NULL,
			started_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS transfers (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT REFERENCES sessions(id) ON DELETE CASCADE,
			ordinal INT NOT NULL,
			file_name TEXT NOT NULL,
			digest TEXT NOT NULL,
			payload_size BIGINT NOT NULL,
			result_size BIGINT NOT NULL,
			face_count INT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS transfers_session_id_idx ON transfers (session_id);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// RecordSession registers a newly accepted session.
func (s *Store) RecordSession(ctx context.Context, sess types.Session) error {
	started := sess.Started
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, peer, expected, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET expected = EXCLUDED.expected
	`, sess.ID, sess.Peer, int64(sess.Expected), started)
	return err
}

// RecordTransfer saves the outcome of one processed transfer.
func (s *Store) RecordTransfer(ctx context.Context, rec types.TransferRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transfers (session_id, ordinal, file_name, digest, payload_size, result_size,
			face_count, outcome, error, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rec.SessionID, rec.Ordinal, rec.FileName, rec.Digest, rec.PayloadSize, rec.ResultSize,
		rec.FaceCount, string(rec.Outcome), rec.Error, rec.Duration.Milliseconds(), created)
	return err
}

// ListTransfers returns the most recent transfers, newest first.
// A non-positive limit returns everything.
func (s *Store) ListTransfers(ctx context.Context, limit int) ([]types.TransferRecord, error) {
	query := `
		SELECT t.session_id, s.peer, t.ordinal, t.file_name, t.digest, t.payload_size, t.result_size,
			t.face_count, t.outcome, t.error, t.duration_ms, t.created_at
		FROM transfers t JOIN sessions s ON s.id = t.session_id
		ORDER BY t.created_at DESC, t.id DESC`
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = s.pool.Query(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = s.pool.Query(ctx, query)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.TransferRecord
	for rows.Next() {
		var rec types.TransferRecord
		var outcome string
		var durationMS int64
		if err := rows.Scan(&rec.SessionID, &rec.Peer, &rec.Ordinal, &rec.FileName, &rec.Digest,
			&rec.PayloadSize, &rec.ResultSize, &rec.FaceCount, &outcome, &rec.Error, &durationMS,
			&rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Outcome = types.Outcome(outcome)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Reset drops all application tables to clear the database state.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		DROP TABLE IF EXISTS transfers CASCADE;
		DROP TABLE IF EXISTS sessions CASCADE;
	`)
	return err
}

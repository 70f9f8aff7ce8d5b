package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists audit entries into a `job_audit_log` table via
// pgx. Columns: audit_id bigserial, job_id bigint, event_kind text,
// actor_id text null, payload jsonb, prev_hash text, chain_hash text,
// created_at timestamptz.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LatestEntry(ctx context.Context, jobID int64) (*Entry, error) {
	const q = `
		SELECT audit_id, job_id, event_kind, actor_id, payload, prev_hash, chain_hash, created_at
		FROM job_audit_log
		WHERE job_id = $1
		ORDER BY audit_id DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, q, jobID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: fetch latest entry for job %d: %w", jobID, err)
	}
	return entry, nil
}

func (s *PostgresStore) Insert(ctx context.Context, e *Entry) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("audit: marshal payload: %w", err)
	}
	const q = `
		INSERT INTO job_audit_log (job_id, event_kind, actor_id, payload, prev_hash, chain_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING audit_id
	`
	row := s.pool.QueryRow(ctx, q, e.JobID, string(e.EventKind), e.ActorID, payload, e.PrevHash, e.ChainHash, e.CreatedAt)
	if err := row.Scan(&e.AuditID); err != nil {
		return fmt.Errorf("audit: insert entry for job %d: %w", e.JobID, err)
	}
	return nil
}

func (s *PostgresStore) ListByJob(ctx context.Context, jobID int64) ([]*Entry, error) {
	const q = `
		SELECT audit_id, job_id, event_kind, actor_id, payload, prev_hash, chain_hash, created_at
		FROM job_audit_log
		WHERE job_id = $1
		ORDER BY audit_id ASC
	`
	rows, err := s.pool.Query(ctx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("audit: list entries for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("audit: scan entry for job %d: %w", jobID, err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: iterate entries for job %d: %w", jobID, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var eventKind string
	var payload []byte
	if err := row.Scan(&e.AuditID, &e.JobID, &eventKind, &e.ActorID, &payload, &e.PrevHash, &e.ChainHash, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.EventKind = EventKind(eventKind)
	if err := json.Unmarshal(payload, &e.Payload); err != nil {
		return nil, fmt.Errorf("audit: decode payload: %w", err)
	}
	return &e, nil
}

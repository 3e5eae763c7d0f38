package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists the event log in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE engine_events (
//	    seq     BIGSERIAL PRIMARY KEY,
//	    id      UUID NOT NULL UNIQUE,
//	    kind    TEXT NOT NULL,
//	    at      TIMESTAMPTZ NOT NULL,
//	    payload JSONB NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the event table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS engine_events (
			seq     BIGSERIAL PRIMARY KEY,
			id      UUID NOT NULL UNIQUE,
			kind    TEXT NOT NULL,
			at      TIMESTAMPTZ NOT NULL,
			payload JSONB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure event schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendBatch(ctx context.Context, events []Event) ([]Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append batch: %w", err)
	}
	defer tx.Rollback()

	appended := make([]Event, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("marshal event payload: %w", err)
		}
		var seq uint64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO engine_events (id, kind, at, payload)
			VALUES ($1, $2, $3, $4)
			RETURNING seq
		`, event.ID, string(event.Kind), event.At, payload).Scan(&seq)
		if err != nil {
			return nil, fmt.Errorf("append event: %w", err)
		}
		event.Seq = seq
		appended = append(appended, event)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append batch: %w", err)
	}
	return appended, nil
}

func (s *PostgresStore) ListAfter(ctx context.Context, afterSeq uint64, limit int, kinds []Kind) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `
		SELECT seq, payload FROM engine_events
		WHERE seq > $1
		ORDER BY seq ASC
		LIMIT $2
	`
	args := []any{afterSeq, limit}
	if len(kinds) > 0 {
		query = `
			SELECT seq, payload FROM engine_events
			WHERE seq > $1 AND kind = ANY($3::text[])
			ORDER BY seq ASC
			LIMIT $2
		`
		kindStrings := make([]string, len(kinds))
		for i, k := range kinds {
			kindStrings[i] = string(k)
		}
		args = append(args, pq.Array(kindStrings))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var seq uint64
		var payload []byte
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("unmarshal event payload: %w", err)
		}
		event.Seq = seq
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

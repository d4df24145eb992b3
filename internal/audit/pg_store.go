package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ILLUVRSE/training-pipeline/internal/signer"
)

// PGStore persists the audit chain in Postgres.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const schemaDDL = `
	CREATE TABLE IF NOT EXISTS pipeline_events (
		id         UUID PRIMARY KEY,
		run_id     TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload    JSONB NOT NULL,
		prev_hash  TEXT NOT NULL DEFAULT '',
		hash       TEXT NOT NULL,
		signature  TEXT NOT NULL,
		signer_id  TEXT NOT NULL,
		ts         TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS pipeline_events_run_id_idx ON pipeline_events (run_id, ts);
`

// EnsureSchema creates the events table when missing.
func (p *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("create pipeline_events: %w", err)
	}
	return nil
}

func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGStore) lastHash(ctx context.Context, tx *sql.Tx) (string, error) {
	var h string
	err := tx.QueryRowContext(ctx, `SELECT hash FROM pipeline_events ORDER BY ts DESC LIMIT 1 FOR UPDATE`).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return h, nil
}

func (p *PGStore) Append(ctx context.Context, ev *Event, s signer.Signer) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	prev, err := p.lastHash(ctx, tx)
	if err != nil {
		return fmt.Errorf("fetch last hash: %w", err)
	}
	if err := seal(ev, prev, s); err != nil {
		return err
	}
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_events
		  (id, run_id, event_type, payload, prev_hash, hash, signature, signer_id, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, ev.ID, ev.RunID, ev.EventType, payload, ev.PrevHash, ev.Hash, ev.Signature, ev.SignerID, ev.Ts)
	if err != nil {
		return fmt.Errorf("insert pipeline_event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const selectEvent = `SELECT id, run_id, event_type, payload, prev_hash, hash, signature, signer_id, ts FROM pipeline_events`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		ev      Event
		payload []byte
		ts      time.Time
	)
	if err := row.Scan(&ev.ID, &ev.RunID, &ev.EventType, &payload, &ev.PrevHash, &ev.Hash, &ev.Signature, &ev.SignerID, &ts); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", ev.ID, err)
		}
	}
	ev.Ts = ts.UTC()
	return &ev, nil
}

func (p *PGStore) Get(ctx context.Context, id string) (*Event, error) {
	ev, err := scanEvent(p.db.QueryRowContext(ctx, selectEvent+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pipeline_event: %w", err)
	}
	return ev, nil
}

func (p *PGStore) ListByRun(ctx context.Context, runID string) ([]*Event, error) {
	rows, err := p.db.QueryContext(ctx, selectEvent+` WHERE run_id=$1 ORDER BY ts ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query pipeline_events: %w", err)
	}
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pipeline_event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

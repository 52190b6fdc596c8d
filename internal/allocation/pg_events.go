package allocation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is the part of *pgxpool.Pool the sink needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgEventSink appends audit events to the event_logs table.
type PgEventSink struct {
	db execer
}

func NewPgEventSink(db execer) *PgEventSink {
	return &PgEventSink{db: db}
}

func (p *PgEventSink) Record(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	var tokenID *uuid.UUID
	if ev.TokenID != uuid.Nil {
		id := ev.TokenID
		tokenID = &id
	}

	_, err = p.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, token_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.Type, tokenID, data, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

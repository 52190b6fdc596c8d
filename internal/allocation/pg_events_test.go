package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecer struct {
	sql  string
	args []any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sql = sql
	f.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func TestPgEventSink_Record(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPgEventSink(db)

	tokenID := uuid.New()
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	err := sink.Record(context.Background(), Event{
		Type:      EventTokenBumped,
		TokenID:   tokenID,
		Payload:   map[string]any{"slot_id": "s-1"},
		CreatedAt: at,
	})
	require.NoError(t, err)

	assert.Contains(t, db.sql, "INSERT INTO event_logs")
	require.Len(t, db.args, 4)
	assert.Equal(t, EventTokenBumped, db.args[0])

	gotID, ok := db.args[1].(*uuid.UUID)
	require.True(t, ok)
	assert.Equal(t, tokenID, *gotID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(db.args[2].([]byte), &payload))
	assert.Equal(t, "s-1", payload["slot_id"])

	gotAt, ok := db.args[3].(*time.Time)
	require.True(t, ok)
	assert.True(t, at.Equal(*gotAt))
}

func TestPgEventSink_NullableColumns(t *testing.T) {
	db := &fakeExecer{}
	sink := NewPgEventSink(db)

	require.NoError(t, sink.Record(context.Background(), Event{Type: EventTokenRequested}))

	assert.Nil(t, db.args[1].(*uuid.UUID))
	assert.Nil(t, db.args[3].(*time.Time))
}

func TestPgEventSink_ExecError(t *testing.T) {
	db := &fakeExecer{err: errors.New("connection reset")}
	sink := NewPgEventSink(db)

	err := sink.Record(context.Background(), Event{Type: EventTokenCancelled, TokenID: uuid.New()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert event log")
}

package audit_test

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/training-pipeline/internal/audit"
)

var eventColumns = []string{"id", "run_id", "event_type", "payload", "prev_hash", "hash", "signature", "signer_id", "ts"}

func TestPGStoreAppendFirstEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT hash FROM pipeline_events").WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectExec("INSERT INTO pipeline_events").
		WithArgs(sqlmock.AnyArg(), "run-1", audit.EventPipelineStarted, sqlmock.AnyArg(), "", sqlmock.AnyArg(), sqlmock.AnyArg(), "test-signer", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := newSigner(t)
	ev := &audit.Event{RunID: "run-1", EventType: audit.EventPipelineStarted, Payload: map[string]interface{}{"k": "v"}}
	require.NoError(t, audit.NewPGStore(db).Append(context.Background(), ev, s))
	assert.NotEmpty(t, ev.ID)
	require.NoError(t, audit.VerifyChain([]*audit.Event{ev}, ed25519.PublicKey(s.PublicKey())))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreAppendLinksToHead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	head := "ab12"
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT hash FROM pipeline_events").WillReturnRows(sqlmock.NewRows([]string{"hash"}).AddRow(head))
	mock.ExpectExec("INSERT INTO pipeline_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	ev := &audit.Event{RunID: "run-1", EventType: "x", Payload: map[string]interface{}{}}
	require.NoError(t, audit.NewPGStore(db).Append(context.Background(), ev, newSigner(t)))
	assert.Equal(t, head, ev.PrevHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreAppendInsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT hash FROM pipeline_events").WillReturnRows(sqlmock.NewRows([]string{"hash"}))
	mock.ExpectExec("INSERT INTO pipeline_events").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err = audit.NewPGStore(db).Append(context.Background(), &audit.Event{RunID: "r", EventType: "x", Payload: 1}, newSigner(t))
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreGetAndList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery("SELECT id, run_id, event_type, payload").
		WithArgs("ev-1").
		WillReturnRows(sqlmock.NewRows(eventColumns).AddRow("ev-1", "run-1", "x", []byte(`{"accepted":true}`), "", "h1", "sig", "signer", ts))
	mock.ExpectQuery("SELECT id, run_id, event_type, payload").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(eventColumns))
	mock.ExpectQuery("SELECT id, run_id, event_type, payload (.+) WHERE run_id").
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow("ev-1", "run-1", "x", []byte(`{}`), "", "h1", "sig", "signer", ts).
			AddRow("ev-2", "run-1", "y", []byte(`{}`), "h1", "h2", "sig", "signer", ts.Add(time.Second)))

	store := audit.NewPGStore(db)
	ctx := context.Background()

	ev, err := store.Get(ctx, "ev-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"accepted": true}, ev.Payload)
	assert.Equal(t, ts, ev.Ts)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, audit.ErrNotFound)

	events, err := store.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "h1", events[1].PrevHash)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPGStoreEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS pipeline_events").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, audit.NewPGStore(db).EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

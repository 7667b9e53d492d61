package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var eventColumns = []string{
	"id", "label", "success", "total_backoff_ms", "fallback_path", "final_error",
	"prompt_tokens", "completion_tokens", "total_tokens", "created_at",
}

var attemptColumns = []string{"event_id", "attempt", "variant", "duration_ms", "success", "error"}

func newStore(t *testing.T) (*TelemetryStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTelemetryStore(db), mock
}

func sampleEvent() *events.TelemetryEvent {
	e := events.NewTelemetryEvent("exercise")
	e.Success = true
	e.TotalBackoffMs = 250
	e.FallbackPath = append(e.FallbackPath, "proxied", "direct")
	e.Attempts = append(e.Attempts,
		events.AttemptRecord{Attempt: 1, Variant: "proxied", DurationMs: 40, Error: "proxy refused"},
		events.AttemptRecord{Attempt: 2, Variant: "direct", DurationMs: 900, Success: true},
	)
	e.Usage = &events.Usage{PromptTokens: 12, CompletionTokens: 30, TotalTokens: 42}
	return e
}

func TestSaveEvent(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	e := sampleEvent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO telemetry_events").
		WithArgs(e.ID.String(), "exercise", true, int64(250), []byte(`["proxied","direct"]`),
			sqlmock.AnyArg(), int64(12), int64(30), int64(42), e.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO telemetry_attempts").
		WithArgs(e.ID.String(), int64(1), "proxied", int64(40), false, "proxy refused").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO telemetry_attempts").
		WithArgs(e.ID.String(), int64(2), "direct", int64(900), true, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveEvent(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEventAsListener(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	e := events.NewTelemetryEvent("transcript_expansion")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO telemetry_events").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var listener events.Listener = s
	require.NoError(t, listener.HandleTelemetry(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEventRollsBackOnDuplicate(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	e := sampleEvent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO telemetry_events").
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode, ConstraintName: "telemetry_events_pkey"})
	mock.ExpectRollback()

	err := s.SaveEvent(context.Background(), e)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	var se *store.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "save", se.Operation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveEventNil(t *testing.T) {
	t.Parallel()

	s, _ := newStore(t)
	assert.ErrorIs(t, s.SaveEvent(context.Background(), nil), store.ErrInvalidEntity)
}

func TestGetEvent(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	id := uuid.New()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM telemetry_events WHERE id").
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(id.String(), "exercise", false, int64(0), []byte(`["direct"]`), "exercise failed after 3 attempts",
				nil, nil, nil, created))
	mock.ExpectQuery("FROM telemetry_attempts").
		WillReturnRows(sqlmock.NewRows(attemptColumns).
			AddRow(id.String(), int64(1), "direct", int64(100), false, "upstream status 503"))

	got, err := s.GetEvent(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.False(t, got.Success)
	assert.Equal(t, []string{"direct"}, got.FallbackPath)
	assert.Equal(t, "exercise failed after 3 attempts", got.FinalError)
	assert.Nil(t, got.Usage)
	assert.Equal(t, created, got.CreatedAt)
	require.Len(t, got.Attempts, 1)
	assert.Equal(t, "upstream status 503", got.Attempts[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventNotFound(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	mock.ExpectQuery("FROM telemetry_events WHERE id").WillReturnRows(sqlmock.NewRows(eventColumns))

	_, err := s.GetEvent(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrTelemetryEventNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecentEvents(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	newer, older := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(eventColumns).
			AddRow(newer.String(), "exercise", true, int64(0), []byte(`["proxied"]`), nil,
				int64(1), int64(2), int64(3), now).
			AddRow(older.String(), "exercise", true, int64(10), []byte(`[]`), nil,
				nil, nil, nil, now.Add(-time.Minute)))
	mock.ExpectQuery("FROM telemetry_attempts").
		WillReturnRows(sqlmock.NewRows(attemptColumns).
			AddRow(newer.String(), int64(1), "proxied", int64(5), true, nil).
			AddRow(older.String(), int64(1), "direct", int64(7), false, "timeout").
			AddRow(older.String(), int64(2), "direct", int64(8), true, nil))

	got, err := s.RecentEvents(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, newer, got[0].ID)
	require.NotNil(t, got[0].Usage)
	assert.Equal(t, 3, got[0].Usage.TotalTokens)
	assert.Len(t, got[0].Attempts, 1)

	assert.Equal(t, older, got[1].ID)
	assert.Empty(t, got[1].FallbackPath)
	assert.NotNil(t, got[1].FallbackPath)
	assert.Len(t, got[1].Attempts, 2)
	assert.Equal(t, "timeout", got[1].Attempts[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentEventsDefaultLimit(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	mock.ExpectQuery("ORDER BY created_at DESC").
		WithArgs(int64(DefaultRecentLimit)).
		WillReturnRows(sqlmock.NewRows(eventColumns))

	got, err := s.RecentEvents(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeBefore(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectExec("DELETE FROM telemetry_events").
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := s.PurgeBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPurgeBeforeError(t *testing.T) {
	t.Parallel()

	s, mock := newStore(t)
	mock.ExpectExec("DELETE FROM telemetry_events").WillReturnError(sql.ErrConnDone)

	_, err := s.PurgeBefore(context.Background(), time.Now())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

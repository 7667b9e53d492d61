package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-gen/internal/events"
	"github.com/phrazzld/scry-gen/internal/platform/logger"
	"github.com/phrazzld/scry-gen/internal/store"
)

// DefaultRecentLimit applies when RecentEvents is called with limit <= 0.
const DefaultRecentLimit = 50

const entityTelemetryEvent = "telemetry event"

// TelemetryStore implements store.TelemetryStore.
type TelemetryStore struct {
	db *sql.DB
}

var _ store.TelemetryStore = (*TelemetryStore)(nil)

// NewTelemetryStore creates a store on db.
func NewTelemetryStore(db *sql.DB) *TelemetryStore {
	return &TelemetryStore{db: db}
}

// HandleTelemetry implements events.Listener so the store can be attached
// to a TelemetrySink.
func (s *TelemetryStore) HandleTelemetry(ctx context.Context, event *events.TelemetryEvent) error {
	return s.SaveEvent(ctx, event)
}

// SaveEvent inserts the event and its attempts in one transaction.
func (s *TelemetryStore) SaveEvent(ctx context.Context, event *events.TelemetryEvent) error {
	if event == nil {
		return fmt.Errorf("%w: event is nil", store.ErrInvalidEntity)
	}

	path, err := json.Marshal(nonNil(event.FallbackPath))
	if err != nil {
		return fmt.Errorf("failed to encode fallback path: %w", err)
	}

	var prompt, completion, total sql.NullInt64
	if u := event.Usage; u != nil {
		prompt = sql.NullInt64{Int64: int64(u.PromptTokens), Valid: true}
		completion = sql.NullInt64{Int64: int64(u.CompletionTokens), Valid: true}
		total = sql.NullInt64{Int64: int64(u.TotalTokens), Valid: true}
	}

	err = store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO telemetry_events
				(id, label, success, total_backoff_ms, fallback_path, final_error,
				 prompt_tokens, completion_tokens, total_tokens, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			event.ID, event.Label, event.Success, event.TotalBackoffMs, path,
			nullString(event.FinalError), prompt, completion, total, event.CreatedAt,
		)
		if err != nil {
			return MapError(err)
		}

		for _, a := range event.Attempts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO telemetry_attempts
					(event_id, attempt, variant, duration_ms, success, error)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				event.ID, a.Attempt, a.Variant, a.DurationMs, a.Success, nullString(a.Error),
			)
			if err != nil {
				return MapError(err)
			}
		}
		return nil
	})
	if err != nil {
		logger.FromContext(ctx).Error("failed to save telemetry event",
			"event_id", event.ID.String(),
			"label", event.Label,
			"error", err)
		return store.NewStoreError(entityTelemetryEvent, "save", err)
	}
	return nil
}

const selectEventColumns = `
	SELECT id, label, success, total_backoff_ms, fallback_path, final_error,
	       prompt_tokens, completion_tokens, total_tokens, created_at
	FROM telemetry_events`

// GetEvent loads one event with its attempts.
func (s *TelemetryStore) GetEvent(ctx context.Context, id uuid.UUID) (*events.TelemetryEvent, error) {
	row := s.db.QueryRowContext(ctx, selectEventColumns+` WHERE id = $1`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrTelemetryEventNotFound
	}
	if err != nil {
		return nil, store.NewStoreError(entityTelemetryEvent, "get", MapError(err))
	}

	if err := s.loadAttempts(ctx, []*events.TelemetryEvent{event}); err != nil {
		return nil, err
	}
	return event, nil
}

// RecentEvents returns up to limit events, newest first, with their attempts.
func (s *TelemetryStore) RecentEvents(ctx context.Context, limit int) ([]*events.TelemetryEvent, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, selectEventColumns+` ORDER BY created_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, store.NewStoreError(entityTelemetryEvent, "list", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	out := make([]*events.TelemetryEvent, 0, limit)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, store.NewStoreError(entityTelemetryEvent, "list", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, store.NewStoreError(entityTelemetryEvent, "list", err)
	}

	if err := s.loadAttempts(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// PurgeBefore deletes events older than cutoff. Attempts cascade.
func (s *TelemetryStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM telemetry_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, store.NewStoreError(entityTelemetryEvent, "purge", MapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	logger.FromContext(ctx).Info("purged telemetry events", "deleted", n, "cutoff", cutoff)
	return n, nil
}

func (s *TelemetryStore) loadAttempts(ctx context.Context, list []*events.TelemetryEvent) error {
	if len(list) == 0 {
		return nil
	}

	byID := make(map[uuid.UUID]*events.TelemetryEvent, len(list))
	ids := make([]string, 0, len(list))
	for _, e := range list {
		byID[e.ID] = e
		ids = append(ids, e.ID.String())
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to encode event ids: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, attempt, variant, duration_ms, success, error
		FROM telemetry_attempts
		WHERE event_id IN (SELECT jsonb_array_elements_text($1::jsonb)::uuid)
		ORDER BY event_id, attempt`, idsJSON)
	if err != nil {
		return store.NewStoreError("telemetry attempt", "list", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			eventID uuid.UUID
			a       events.AttemptRecord
			msg     sql.NullString
		)
		if err := rows.Scan(&eventID, &a.Attempt, &a.Variant, &a.DurationMs, &a.Success, &msg); err != nil {
			return store.NewStoreError("telemetry attempt", "list", err)
		}
		a.Error = msg.String
		if e, ok := byID[eventID]; ok {
			e.Attempts = append(e.Attempts, a)
		}
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*events.TelemetryEvent, error) {
	var (
		e                         events.TelemetryEvent
		path                      []byte
		finalError                sql.NullString
		prompt, completion, total sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.Label, &e.Success, &e.TotalBackoffMs, &path, &finalError,
		&prompt, &completion, &total, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	e.FinalError = finalError.String
	e.Attempts = make([]events.AttemptRecord, 0, 4)
	if err := json.Unmarshal(path, &e.FallbackPath); err != nil {
		return nil, fmt.Errorf("failed to decode fallback path: %w", err)
	}
	if e.FallbackPath == nil {
		e.FallbackPath = []string{}
	}
	if prompt.Valid || completion.Valid || total.Valid {
		e.Usage = &events.Usage{
			PromptTokens:     int(prompt.Int64),
			CompletionTokens: int(completion.Int64),
			TotalTokens:      int(total.Int64),
		}
	}
	return &e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

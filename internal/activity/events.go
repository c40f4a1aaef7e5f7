// Package activity records engagement events such as topic completions.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TypeTopicCompleted is logged each time a topic is marked done.
const TypeTopicCompleted = "topic_completed"

const dbTimeout = 5 * time.Second

// Event represents an activity event persisted to the activity_events table.
type Event struct {
	UserID    string
	EventType string
	Data      map[string]any
	CreatedAt time.Time
}

// Logger defines event logging behavior.
type Logger interface {
	LogEvent(ctx context.Context, event Event) error
}

// NopLogger ignores all events.
type NopLogger struct{}

func (NopLogger) LogEvent(context.Context, Event) error {
	return nil
}

// MemoryLogger stores events in memory for tests and single-process runs.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryLogger() *MemoryLogger {
	return &MemoryLogger{
		events: []Event{},
	}
}

func (l *MemoryLogger) LogEvent(_ context.Context, event Event) error {
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()

	return nil
}

func (l *MemoryLogger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event{}, l.events...)
}

// PostgresLogger inserts events into the activity_events table.
type PostgresLogger struct {
	pool *pgxpool.Pool
}

func NewPostgresLogger(pool *pgxpool.Pool) *PostgresLogger {
	return &PostgresLogger{pool: pool}
}

func (l *PostgresLogger) LogEvent(ctx context.Context, event Event) error {
	if l == nil || l.pool == nil {
		return fmt.Errorf("event logger pool is nil")
	}
	if event.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if event.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	payload := event.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := l.pool.Exec(ctx,
		`INSERT INTO activity_events (user_id, event_type, data, created_at)
		 VALUES ($1, $2, $3::jsonb, $4)`,
		event.UserID,
		event.EventType,
		string(data),
		createdAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	slog.Debug("event logged",
		"type", event.EventType,
		"user_id", event.UserID,
	)
	return nil
}

// CompletionHook returns a zero-argument callback that records a
// topic_completed event for userID. Logging failures are reported through
// slog only.
func CompletionHook(logger Logger, userID string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
		defer cancel()
		if err := logger.LogEvent(ctx, Event{UserID: userID, EventType: TypeTopicCompleted}); err != nil {
			slog.Warn("logging completion failed", "user_id", userID, "error", err)
		}
	}
}

// Package audit reports every generated statement before it is executed.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Event describes one generated statement about to run against the store.
type Event struct {
	ID        string    `json:"id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	Provider  string    `json:"provider,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent stamps a fresh id and time.
func NewEvent(traceID, question, sql, provider string) Event {
	return Event{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		Question:  question,
		SQL:       sql,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
}

type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// LogRecorder writes events to a structured logger.
type LogRecorder struct {
	logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, event Event) error {
	r.logger.InfoContext(ctx, "generated_sql",
		slog.String("audit_id", event.ID),
		slog.String("trace_id", event.TraceID),
		slog.String("question", event.Question),
		slog.String("sql", event.SQL),
		slog.String("provider", event.Provider),
	)
	return nil
}

// Multi fans an event out to every recorder and joins their errors.
type Multi []Recorder

func (m Multi) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Package audit provides the activity log sink for security-relevant events.
package audit

import (
	"log/slog"

	"github.com/google/uuid"
)

// Level represents the severity label attached to an audit record.
type Level string

const (
	LevelInfo     Level = "INFO"
	LevelError    Level = "ERROR"
	LevelActivity Level = "ACTIVITY"
)

// UnknownActor is recorded when no authenticated identity is available.
const UnknownActor = "unknown"

// Recorder appends audit records to the configured slog logger. Every denial
// and failure path that matters for security (login failure, CSRF mismatch,
// access denial, reset token issuance and consumption) goes through here.
type Recorder struct {
	logger *slog.Logger
}

// NewRecorder creates a Recorder on top of the given logger. A nil logger
// falls back to slog.Default().
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

// Record appends a single audit record carrying the acting identity. Each
// record gets a unique event id so entries can be referenced individually.
func (r *Recorder) Record(level Level, message string, actor string) {
	if actor == "" {
		actor = UnknownActor
	}
	eventID := uuid.New().String()
	switch level {
	case LevelError:
		r.logger.Error(message, "actor", actor, "audit", string(level), "eventId", eventID)
	default:
		r.logger.Info(message, "actor", actor, "audit", string(level), "eventId", eventID)
	}
}

// Activity records a user activity event, the most common audit level.
func (r *Recorder) Activity(message string, actor string) {
	r.Record(LevelActivity, message, actor)
}

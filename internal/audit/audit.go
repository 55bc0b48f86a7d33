// Package audit writes the structured, append-only trail of
// security-relevant events: logins, lockouts, token rotation/revocation,
// and time-entry mutations performed by an admin on another user's
// behalf.
package audit

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit entry.
type EventType string

const (
	EventUserRegistered EventType = "USER_REGISTERED"
	EventLoginSuccess   EventType = "LOGIN_SUCCESS"
	EventLoginFailed    EventType = "LOGIN_FAILED"
	EventLoginLockout   EventType = "LOGIN_LOCKOUT"
	EventLogout         EventType = "LOGOUT"
	EventTokenRotated   EventType = "TOKEN_ROTATED"
	EventTokenRevoked   EventType = "TOKEN_REVOKED"
	EventTimerStart     EventType = "TIMER_START"
	EventTimerStop      EventType = "TIMER_STOP"
	EventEntryMutated   EventType = "TIME_ENTRY_MUTATED"
	EventEntryDeleted   EventType = "TIME_ENTRY_DELETED"
)

// Logger is the contract every domain component logs security events
// through.
type Logger interface {
	Log(ctx context.Context, actorID uuid.UUID, action EventType, resource string, metadata map[string]string)
}

// JSONLogger writes structured logs to stdout with a dedicated
// "log_type" marker so aggregators can route audit entries to a
// separate index from general application logs.
type JSONLogger struct {
	logger *slog.Logger
}

// NewJSONLogger constructs a JSONLogger with its own handler instance,
// independent of the main application logger's formatting.
func NewJSONLogger() *JSONLogger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &JSONLogger{logger: slog.New(handler)}
}

func (l *JSONLogger) Log(ctx context.Context, actorID uuid.UUID, action EventType, resource string, metadata map[string]string) {
	fields := []any{
		slog.String("log_type", "AUDIT_TRAIL"),
		slog.String("actor_id", actorID.String()),
		slog.String("action", string(action)),
		slog.String("resource", resource),
		slog.Time("timestamp_utc", time.Now().UTC()),
	}
	for k, v := range metadata {
		fields = append(fields, slog.String("meta_"+k, v))
	}
	l.logger.InfoContext(ctx, "audit_event", fields...)
}

// NoopLogger discards every event; used in tests that don't assert on
// the audit trail.
type NoopLogger struct{}

func (NoopLogger) Log(context.Context, uuid.UUID, EventType, string, map[string]string) {}

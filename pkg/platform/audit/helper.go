package audit

import (
	"context"
	"log/slog"

	id "fedcred/pkg/domain"
	"fedcred/pkg/requestcontext"
)

// Emitter is the interface for audit event emission.
// Satisfied by publisher.Publisher.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Logger provides structured audit logging with optional event emission.
type Logger struct {
	textLogger *slog.Logger
	emitter    Emitter
}

// NewLogger creates an audit logger. emitter may be nil.
func NewLogger(textLogger *slog.Logger, emitter Emitter) *Logger {
	return &Logger{
		textLogger: textLogger,
		emitter:    emitter,
	}
}

// Log writes an audit line and emits the event. request_id and the caller id are
// taken from the context.
//
//	logger.Log(ctx, "credential_renewed", "credential_id", credID, "months", 12)
func (l *Logger) Log(ctx context.Context, event string, attributes ...any) {
	if l == nil {
		return
	}
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	l.logToText(ctx, event, attributes)
	l.emitToAudit(ctx, event, requestID, attributes)
}

func (l *Logger) logToText(ctx context.Context, event string, attributes []any) {
	if l.textLogger == nil {
		return
	}
	args := append(attributes, "event", event, "log_type", "audit")
	l.textLogger.InfoContext(ctx, event, args...)
}

func (l *Logger) emitToAudit(ctx context.Context, event, requestID string, attributes []any) {
	if l.emitter == nil {
		return
	}

	actor := extractString(attributes, "actor")
	actorID := requestcontext.UserID(ctx)
	if actor == "" && !actorID.IsNil() {
		actor = actorID.String()
	}

	err := l.emitter.Emit(ctx, Event{
		Timestamp:    requestcontext.Now(ctx),
		ActorID:      actorID,
		Actor:        actor,
		Action:       event,
		CredentialID: extractString(attributes, "credential_id"),
		Reason:       extractString(attributes, "reason"),
		RequestID:    requestID,
	})
	if err != nil && l.textLogger != nil {
		l.textLogger.ErrorContext(ctx, "failed to emit audit event",
			"error", err,
			"event", event,
		)
	}
}

// extractString returns the string value following key in a slog-style
// key/value list, or "" when absent or not a string-like value.
func extractString(attributes []any, key string) string {
	for i := 0; i+1 < len(attributes); i += 2 {
		k, ok := attributes[i].(string)
		if !ok || k != key {
			continue
		}
		switch v := attributes[i+1].(type) {
		case string:
			return v
		case id.UserID:
			return v.String()
		case interface{ String() string }:
			return v.String()
		}
	}
	return ""
}

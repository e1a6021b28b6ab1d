package audit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "fedcred/pkg/domain"
	"fedcred/pkg/requestcontext"
)

type mockEmitter struct {
	events    []Event
	shouldErr bool
}

func (m *mockEmitter) Emit(_ context.Context, event Event) error {
	if m.shouldErr {
		return errors.New("emit failed")
	}
	m.events = append(m.events, event)
	return nil
}

// LoggerSuite covers context enrichment and the error paths of the audit Logger.
type LoggerSuite struct {
	suite.Suite
	emitter *mockEmitter
	logger  *Logger
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerSuite))
}

func (s *LoggerSuite) SetupTest() {
	s.emitter = &mockEmitter{}
	textLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s.logger = NewLogger(textLogger, s.emitter)
}

func (s *LoggerSuite) TestLogEnrichesWithRequestID() {
	ctx := requestcontext.WithRequestID(context.Background(), "req-12345")

	s.logger.Log(ctx, string(EventCredentialRenewed), "credential_id", "cred_1")

	s.Require().Len(s.emitter.events, 1)
	s.Equal("req-12345", s.emitter.events[0].RequestID)
	s.Equal("cred_1", s.emitter.events[0].CredentialID)
}

func (s *LoggerSuite) TestLogTakesActorFromContext() {
	userID := id.UserID(uuid.MustParse("550e8400-e29b-41d4-a716-446655440001"))
	ctx := requestcontext.WithUserID(context.Background(), userID)

	s.logger.Log(ctx, string(EventCredentialIssued), "credential_id", "cred_1")

	s.Require().Len(s.emitter.events, 1)
	s.Equal(userID, s.emitter.events[0].ActorID)
	s.Equal("550e8400-e29b-41d4-a716-446655440001", s.emitter.events[0].Actor)
}

func (s *LoggerSuite) TestLogPrefersExplicitActor() {
	s.logger.Log(context.Background(), string(EventCredentialsExpired), "actor", "system", "reason", "expiry sweep")

	s.Require().Len(s.emitter.events, 1)
	s.Equal("system", s.emitter.events[0].Actor)
	s.Equal("expiry sweep", s.emitter.events[0].Reason)
}

func (s *LoggerSuite) TestLogHandlesEmitError() {
	s.emitter.shouldErr = true

	s.NotPanics(func() {
		s.logger.Log(context.Background(), string(EventCredentialIssued), "credential_id", "cred_1")
	})
	s.Empty(s.emitter.events)
}

func (s *LoggerSuite) TestLogSkipsNilEmitter() {
	textLogger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	withoutEmitter := NewLogger(textLogger, nil)

	s.NotPanics(func() {
		withoutEmitter.Log(context.Background(), string(EventCredentialIssued))
	})
}

func (s *LoggerSuite) TestLogSkipsNilTextLogger() {
	emitter := &mockEmitter{}
	withoutText := NewLogger(nil, emitter)

	withoutText.Log(context.Background(), string(EventCredentialIssued), "credential_id", "cred_1")
	s.Len(emitter.events, 1)
}

func (s *LoggerSuite) TestNilLoggerIsNoop() {
	var l *Logger
	s.NotPanics(func() {
		l.Log(context.Background(), string(EventCredentialIssued))
	})
}

func (s *LoggerSuite) TestLogWithoutRequestID() {
	s.logger.Log(context.Background(), string(EventCredentialIssued))

	s.Require().Len(s.emitter.events, 1)
	s.Empty(s.emitter.events[0].RequestID)
}

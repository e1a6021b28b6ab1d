// Package service implements the credential engine: issuance, verification,
// lifecycle transitions, renewal, the expiry sweep and reporting.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fedcred/internal/credential/integrity"
	"fedcred/internal/credential/metrics"
	"fedcred/internal/credential/models"
	"fedcred/internal/platform/tracer"
	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/audit/outbox"
	"fedcred/pkg/platform/sentinel"
	"fedcred/pkg/requestcontext"
)

// Store defines the persistence interface for credentials and verification events.
// Error Contract:
// - FindByID/FindByIDForUpdate/Update return sentinel.ErrNotFound for unknown ids
// - Create returns sentinel.ErrConflict when the id already exists
// - connectivity failures wrap sentinel.ErrUnavailable
type Store interface {
	Create(ctx context.Context, cred *models.Credential) error
	FindByID(ctx context.Context, credID models.CredentialID) (*models.Credential, error)
	FindByIDForUpdate(ctx context.Context, credID models.CredentialID) (*models.Credential, error)
	Update(ctx context.Context, cred *models.Credential) error
	// HasLiveFederationID ignores the credential named by exclude (empty excludes none).
	HasLiveFederationID(ctx context.Context, subjectType models.SubjectType, number string, exclude models.CredentialID, now time.Time) (bool, error)
	ListBySubject(ctx context.Context, userID id.UserID, page models.Page) (models.PageResult[*models.Credential], error)
	ListByState(ctx context.Context, filter models.StateFilter, page models.Page) (models.PageResult[*models.Credential], error)
	ListExpiring(ctx context.Context, q models.ExpiringQuery, page models.Page) (models.PageResult[*models.Credential], error)
	Stats(ctx context.Context, now time.Time) (*models.Stats, error)
	ListLapsed(ctx context.Context, now time.Time, limit int) ([]models.CredentialID, error)
	AppendEvent(ctx context.Context, event models.VerificationEvent) error
	ListEvents(ctx context.Context, credentialID string, page models.Page) (models.PageResult[models.VerificationEvent], error)
}

// StatsCache holds the aggregate stats between writes. A miss is (nil, false, nil).
// Invalidate bumps a version; Set stores only if the version still equals the one
// read before the aggregate was computed, so a read that raced a write is not cached.
type StatsCache interface {
	Get(ctx context.Context) (*models.Stats, bool, error)
	Version(ctx context.Context) (int64, error)
	Set(ctx context.Context, stats *models.Stats, version int64) (bool, error)
	Invalidate(ctx context.Context) error
}

// Config is the issuance and verification policy.
type Config struct {
	BaseURL               string
	DefaultValidityMonths int
	InitialStatus         models.Status
	MaxBatch              int
	BulkWorkers           int
	ItemTimeout           time.Duration
	StoreTimeout          time.Duration
	RetryInitialInterval  time.Duration
	SweepBatchSize        int
}

const (
	DefaultMaxBatch       = 50
	DefaultBulkWorkers    = 8
	DefaultItemTimeout    = 2 * time.Second
	DefaultStoreTimeout   = 5 * time.Second
	DefaultRetryInterval  = 50 * time.Millisecond
	DefaultSweepBatchSize = 200
	DefaultExpiringDays   = 30
	MaxExpiringDays       = 365
)

// DefaultConfig returns the federation's standard policy.
func DefaultConfig() Config {
	return Config{
		DefaultValidityMonths: 12,
		InitialStatus:         models.StatusActive,
		MaxBatch:              DefaultMaxBatch,
		BulkWorkers:           DefaultBulkWorkers,
		ItemTimeout:           DefaultItemTimeout,
		StoreTimeout:          DefaultStoreTimeout,
		RetryInitialInterval:  DefaultRetryInterval,
		SweepBatchSize:        DefaultSweepBatchSize,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.DefaultValidityMonths <= 0 {
		c.DefaultValidityMonths = d.DefaultValidityMonths
	}
	if c.InitialStatus != models.StatusPending {
		c.InitialStatus = models.StatusActive
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = d.MaxBatch
	}
	if c.BulkWorkers <= 0 {
		c.BulkWorkers = d.BulkWorkers
	}
	if c.ItemTimeout <= 0 {
		c.ItemTimeout = d.ItemTimeout
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = d.RetryInitialInterval
	}
	if c.SweepBatchSize <= 0 {
		c.SweepBatchSize = d.SweepBatchSize
	}
}

type Option func(*Service)

// Service is safe for concurrent use.
type Service struct {
	store   Store
	tx      StoreTx
	outbox  outbox.Appender
	codec   *integrity.Codec
	cfg     Config
	logger  *slog.Logger
	auditor *audit.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	cache   StatsCache
}

// WithTx replaces the in-process transaction boundary, e.g. with a database transaction runner.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithOutbox sets the appender used by the in-process transaction boundary.
func WithOutbox(appender outbox.Appender) Option {
	return func(s *Service) {
		s.outbox = appender
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditor(auditor *audit.Logger) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func WithStatsCache(cache StatsCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func New(store Store, codec *integrity.Codec, cfg Config, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("credential store is required")
	}
	if codec == nil {
		return nil, errors.New("integrity codec is required")
	}
	cfg.applyDefaults()
	svc := &Service{
		store: store,
		codec: codec,
		cfg:   cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.New(slog.DiscardHandler)
	}
	if svc.tracer == nil {
		svc.tracer = tracer.NewNoop()
	}
	if svc.outbox == nil {
		svc.outbox = discardAppender{}
	}
	if svc.tx == nil {
		svc.tx = newShardedTx(store, svc.outbox, cfg.StoreTimeout, svc.metrics)
	}
	return svc, nil
}

// Config returns the effective policy after defaults.
func (s *Service) Config() Config {
	return s.cfg
}

// now is the request time at second precision, the resolution credentials are stored and hashed at.
func (s *Service) now(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).UTC().Truncate(time.Second)
}

// actor names the caller for history entries.
func actorFrom(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if userID := requestcontext.UserID(ctx); !userID.IsNil() {
		return userID.String()
	}
	return models.ActorSystem
}

// VerifierFromContext collects the caller attributes recorded on verification events.
func VerifierFromContext(ctx context.Context, channel models.Channel) models.VerifierContext {
	return models.VerifierContext{
		UserID:    requestcontext.UserID(ctx),
		Role:      requestcontext.Role(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		UserAgent: requestcontext.UserAgent(ctx),
		Device:    requestcontext.Device(ctx),
		RequestID: requestcontext.RequestID(ctx),
		Channel:   channel,
	}
}

// translateStoreError maps store failures onto domain errors exactly once.
func translateStoreError(err error, msg string) error {
	var domainErr *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "credential already exists")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "credential store unavailable")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg+": timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate stats cache", "error", err)
	}
}

type discardAppender struct{}

func (discardAppender) Append(context.Context, *outbox.Entry) error { return nil }

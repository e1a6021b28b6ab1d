// Package export renders trusted credentials into downloadable artifacts and
// stores them in the object store.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gosimple/slug"

	"fedcred/internal/credential/metrics"
	"fedcred/internal/credential/models"
	"fedcred/internal/platform/objectstore"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit"
)

// Kind selects the artifact a Generator produces.
type Kind string

const (
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
)

func ParseKind(value string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(value))); k {
	case KindPDF, KindImage:
		return k, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "export kind must be pdf or image")
}

// Artifact is the generator output before upload.
type Artifact struct {
	Body        []byte
	ContentType string
	Extension   string
}

// Generator renders a credential that already passed the trust check.
type Generator interface {
	Generate(ctx context.Context, kind Kind, cred *models.Credential) (*Artifact, error)
}

// TrustChecker confirms a credential exists, is intact and effectively active.
// It must not count as a verification.
type TrustChecker interface {
	CheckTrust(ctx context.Context, credID models.CredentialID) (*models.Credential, error)
}

// Uploader stores artifact bytes and returns where they can be fetched.
type Uploader interface {
	Put(ctx context.Context, key, contentType string, body []byte) (*objectstore.Object, error)
}

// Result is returned to the caller after upload.
type Result struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type Option func(*Exporter)

func WithGenerator(g Generator) Option {
	return func(e *Exporter) {
		e.generator = g
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

func WithAuditor(auditor *audit.Logger) Option {
	return func(e *Exporter) {
		e.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Exporter) {
		e.metrics = m
	}
}

// Exporter wires trust check, generation and upload. A nil uploader disables
// exports; Export then fails with CodeNotImplemented.
type Exporter struct {
	trust     TrustChecker
	uploader  Uploader
	generator Generator
	logger    *slog.Logger
	auditor   *audit.Logger
	metrics   *metrics.Metrics
}

func New(trust TrustChecker, uploader Uploader, opts ...Option) (*Exporter, error) {
	if trust == nil {
		return nil, errors.New("trust checker is required")
	}
	e := &Exporter{
		trust:    trust,
		uploader: uploader,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.generator == nil {
		e.generator = NewManifestGenerator()
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	return e, nil
}

// Enabled reports whether an object store is configured.
func (e *Exporter) Enabled() bool {
	return e.uploader != nil
}

// Export renders and uploads one artifact for an active, intact credential.
func (e *Exporter) Export(ctx context.Context, credID models.CredentialID, kind Kind) (*Result, error) {
	if !e.Enabled() {
		return nil, dErrors.New(dErrors.CodeNotImplemented, "artifact export is not configured")
	}
	res, err := e.export(ctx, credID, kind)
	e.record(kind, err)
	if err != nil {
		return nil, err
	}

	e.auditor.Log(ctx, string(audit.EventCredentialsExported),
		"credential_id", credID.String(),
		"kind", string(kind),
		"key", res.Key,
	)
	return res, nil
}

func (e *Exporter) export(ctx context.Context, credID models.CredentialID, kind Kind) (*Result, error) {
	cred, err := e.trust.CheckTrust(ctx, credID)
	if err != nil {
		return nil, err
	}

	artifact, err := e.generator.Generate(ctx, kind, cred)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate artifact")
	}

	key := ObjectKey(cred, kind, artifact.Extension)
	obj, err := e.uploader.Put(ctx, key, artifact.ContentType, artifact.Body)
	if err != nil {
		e.logger.ErrorContext(ctx, "artifact upload failed",
			"credential_id", cred.ID.String(),
			"kind", string(kind),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "failed to store artifact")
	}

	return &Result{
		Key:         obj.Key,
		URL:         obj.URL,
		ContentType: obj.ContentType,
		Size:        obj.Size,
	}, nil
}

func (e *Exporter) record(kind Kind, err error) {
	if e.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(dErrors.CodeOf(err))
	}
	e.metrics.IncExport(string(kind), result)
}

// ObjectKey builds a readable, collision-free key:
// <subject type>/<name slug>-<federation id slug>/<credential id>-<kind>.<ext>
func ObjectKey(cred *models.Credential, kind Kind, ext string) string {
	name := slug.Make(cred.FullName)
	if fed := slug.Make(cred.FederationIDNumber); fed != "" {
		name = name + "-" + fed
	}
	if name == "" {
		name = "credential"
	}
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s/%s-%s.%s", cred.SubjectType, name, cred.ID, kind, ext)
}

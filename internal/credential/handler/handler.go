// Package handler exposes the credential engine over HTTP.
package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks Service,Exporter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"fedcred/internal/credential/export"
	"fedcred/internal/credential/models"
	"fedcred/internal/credential/service"
	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/httputil"
	"fedcred/pkg/platform/middleware/auth"
	"fedcred/pkg/requestcontext"
)

// Service is the credential engine as seen by the HTTP layer.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (*models.Credential, error)
	Get(ctx context.Context, credID models.CredentialID) (*models.Credential, error)
	Verify(ctx context.Context, in models.VerifyInput) (*models.VerificationResult, error)
	VerifyBulk(ctx context.Context, ids []string, verifier models.VerifierContext) ([]*models.VerificationResult, error)
	ChangeStatus(ctx context.Context, req models.StatusChangeRequest) (*models.Credential, error)
	Renew(ctx context.Context, req models.RenewRequest) (*models.Credential, error)
	ListBySubject(ctx context.Context, userID id.UserID, page models.Page) (models.PageResult[*models.Credential], error)
	ListByState(ctx context.Context, filter models.StateFilter, page models.Page) (models.PageResult[*models.Credential], error)
	Expiring(ctx context.Context, days int, page models.Page) (models.PageResult[*models.Credential], error)
	Stats(ctx context.Context) (*models.Stats, error)
	ListEvents(ctx context.Context, credID string, page models.Page) (models.PageResult[models.VerificationEvent], error)
}

// Exporter renders and stores credential artifacts.
type Exporter interface {
	Export(ctx context.Context, credID models.CredentialID, kind export.Kind) (*export.Result, error)
}

// Handler wires credential endpoints to the service. Routes expect RequireAuth to
// have populated the caller's id and role.
type Handler struct {
	service  Service
	exporter Exporter
	logger   *slog.Logger
}

// New constructs a handler. exporter may be nil, in which case export routes answer 501.
func New(service Service, exporter Exporter, logger *slog.Logger) *Handler {
	return &Handler{service: service, exporter: exporter, logger: logger}
}

// Register mounts the credential API on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/credentials", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.logger, id.RoleAdmin, id.RoleVerifier))
			r.Get("/verify/{id}", h.HandleVerify)
			r.Post("/verify-bulk", h.HandleVerifyBulk)
		})

		// admin or the subject itself; checked in the handler
		r.Get("/user/{userId}", h.HandleListBySubject)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(h.logger, id.RoleAdmin))
			r.Post("/", h.HandleIssue)
			r.Get("/stats", h.HandleStats)
			r.Get("/expiring", h.HandleExpiring)
			r.Get("/state/{stateId}", h.HandleListByState)
			r.Get("/{id}", h.HandleGet)
			r.Get("/{id}/events", h.HandleListEvents)
			r.Put("/{id}/status", h.HandleChangeStatus)
			r.Put("/{id}/renew", h.HandleRenew)
			for _, kind := range []export.Kind{export.KindPDF, export.KindImage} {
				r.Get("/{id}/"+string(kind), h.handleExport(kind))
				r.Post("/{id}/"+string(kind), h.handleExport(kind))
			}
		})
	})
}

// HandleIssue handles POST /api/credentials.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cred, err := h.service.Issue(ctx, req.ToModel())
	if err != nil {
		h.fail(ctx, w, "failed to issue credential", err, "subject_type", req.SubjectType)
		return
	}
	httputil.WriteSuccess(w, http.StatusCreated, toCredentialResponse(cred, requestcontext.Now(ctx)))
}

// HandleGet handles GET /api/credentials/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credID := models.CredentialID(chi.URLParam(r, "id"))

	cred, err := h.service.Get(ctx, credID)
	if err != nil {
		h.fail(ctx, w, "failed to get credential", err, "credential_id", credID.String())
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toCredentialResponse(cred, requestcontext.Now(ctx)))
}

// HandleVerify handles GET /api/credentials/verify/{id}. Invalid credentials are
// a successful response with valid=false.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rawID := chi.URLParam(r, "id")

	result, err := h.service.Verify(ctx, models.VerifyInput{
		CredentialID:      rawID,
		PresentedChecksum: strings.TrimSpace(r.URL.Query().Get("checksum")),
		Verifier:          service.VerifierFromContext(ctx, models.ChannelSingle),
	})
	if err != nil {
		h.fail(ctx, w, "verification failed", err, "credential_id", rawID)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toVerificationResponse(result))
}

// HandleVerifyBulk handles POST /api/credentials/verify-bulk. A well formed request
// always answers 200 with one result per id.
func (h *Handler) HandleVerifyBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BulkVerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	results, err := h.service.VerifyBulk(ctx, req.CredentialIDs, service.VerifierFromContext(ctx, models.ChannelBulk))
	if err != nil {
		h.fail(ctx, w, "bulk verification rejected", err, "count", len(req.CredentialIDs))
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toBulkResponse(results))
}

// HandleChangeStatus handles PUT /api/credentials/{id}/status.
func (h *Handler) HandleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	credID := models.CredentialID(chi.URLParam(r, "id"))

	req, ok := httputil.DecodeAndPrepare[StatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cred, err := h.service.ChangeStatus(ctx, models.StatusChangeRequest{
		ID:     credID,
		Target: req.target,
		Reason: req.Reason,
	})
	if err != nil {
		h.fail(ctx, w, "failed to change credential status", err,
			"credential_id", credID.String(),
			"target", req.target.String(),
		)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toCredentialResponse(cred, requestcontext.Now(ctx)))
}

// HandleRenew handles PUT /api/credentials/{id}/renew.
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	credID := models.CredentialID(chi.URLParam(r, "id"))

	req, ok := httputil.DecodeAndPrepare[RenewRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cred, err := h.service.Renew(ctx, models.RenewRequest{
		ID:              credID,
		ExtensionMonths: req.ExtensionMonths,
	})
	if err != nil {
		h.fail(ctx, w, "failed to renew credential", err, "credential_id", credID.String())
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toCredentialResponse(cred, requestcontext.Now(ctx)))
}

// HandleListBySubject handles GET /api/credentials/user/{userId}.
func (h *Handler) HandleListBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "userId must be a valid uuid"))
		return
	}
	caller := requestcontext.UserID(ctx)
	if requestcontext.Role(ctx) != id.RoleAdmin && caller != userID {
		h.logger.WarnContext(ctx, "forbidden - subject listing for another user",
			"caller", caller.String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "credentials of another user"))
		return
	}

	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.ListBySubject(ctx, userID, page)
	if err != nil {
		h.fail(ctx, w, "failed to list subject credentials", err)
		return
	}
	h.writeCredentialPage(ctx, w, res)
}

// HandleListByState handles GET /api/credentials/state/{stateId}?userType&status.
func (h *Handler) HandleListByState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateID, err := id.ParseStateID(chi.URLParam(r, "stateId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "stateId is invalid"))
		return
	}
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	res, err := h.service.ListByState(ctx, models.StateFilter{
		StateID:     stateID,
		SubjectType: models.SubjectType(strings.ToLower(strings.TrimSpace(q.Get("userType")))),
		Status:      models.Status(strings.ToLower(strings.TrimSpace(q.Get("status")))),
	}, page)
	if err != nil {
		h.fail(ctx, w, "failed to list state credentials", err, "state_id", stateID.String())
		return
	}
	h.writeCredentialPage(ctx, w, res)
}

// HandleExpiring handles GET /api/credentials/expiring?days=N.
func (h *Handler) HandleExpiring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	days, err := queryInt(r, "days")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.Expiring(ctx, days, page)
	if err != nil {
		h.fail(ctx, w, "failed to list expiring credentials", err, "days", days)
		return
	}
	h.writeCredentialPage(ctx, w, res)
}

// HandleStats handles GET /api/credentials/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.service.Stats(ctx)
	if err != nil {
		h.fail(ctx, w, "failed to compute stats", err)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, stats)
}

// HandleListEvents handles GET /api/credentials/{id}/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	credID := chi.URLParam(r, "id")

	page, err := parsePage(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.ListEvents(ctx, credID, page)
	if err != nil {
		h.fail(ctx, w, "failed to list verification events", err, "credential_id", credID)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, toPageResponse(res, toEventResponse))
}

func (h *Handler) handleExport(kind export.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		credID := models.CredentialID(chi.URLParam(r, "id"))

		if h.exporter == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotImplemented, "artifact export is not configured"))
			return
		}

		res, err := h.exporter.Export(ctx, credID, kind)
		if err != nil {
			h.fail(ctx, w, "artifact export failed", err,
				"credential_id", credID.String(),
				"kind", string(kind),
			)
			return
		}
		httputil.WriteSuccess(w, http.StatusOK, res)
	}
}

func (h *Handler) writeCredentialPage(ctx context.Context, w http.ResponseWriter, res models.PageResult[*models.Credential]) {
	now := requestcontext.Now(ctx)
	httputil.WriteSuccess(w, http.StatusOK, toPageResponse(res, func(c *models.Credential) *CredentialResponse {
		return toCredentialResponse(c, now)
	}))
}

// fail logs at warn for caller errors and error for server faults, then writes the envelope.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", requestcontext.RequestID(ctx))
	if httputil.DomainCodeToHTTPStatus(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func parsePage(r *http.Request) (models.Page, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return models.Page{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return models.Page{}, err
	}
	if limit < 0 || offset < 0 {
		return models.Page{}, dErrors.New(dErrors.CodeBadRequest, "limit and offset must not be negative")
	}
	return models.Page{Limit: limit, Offset: offset}.Normalize(), nil
}

// queryInt returns 0 when the parameter is absent.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeBadRequest, name+" must be an integer")
	}
	return n, nil
}

var (
	_ Service  = (*service.Service)(nil)
	_ Exporter = (*export.Exporter)(nil)
)

package service

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"fedcred/internal/credential/models"
	"fedcred/internal/platform/tracer"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/audit"
	"fedcred/pkg/platform/validation"
)

// VerifyBulk verifies every id independently and returns one result per input position.
// Duplicate ids are verified (and counted) once per occurrence. Only a malformed batch
// is an error; per-item failures become timeout or store_unavailable outcomes.
func (s *Service) VerifyBulk(ctx context.Context, ids []string, verifier models.VerifierContext) (results []*models.VerificationResult, err error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "credentialIds must contain at least one id")
	}
	if len(ids) > s.cfg.MaxBatch {
		return nil, dErrors.New(dErrors.CodeBatchTooLarge,
			fmt.Sprintf("batch of %d exceeds the maximum of %d credential ids", len(ids), s.cfg.MaxBatch))
	}
	if err := validation.CheckEachStringLength("credential id", ids, validation.MaxCredentialIDLength); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, tracer.SpanVerifyBulk, tracer.Int(tracer.AttrBatchSize, len(ids)))
	defer func() { span.End(err) }()

	verifier.Channel = models.ChannelBulk
	results = make([]*models.VerificationResult, len(ids))

	var g errgroup.Group
	g.SetLimit(s.cfg.BulkWorkers)
	for i, credID := range ids {
		g.Go(func() error {
			results[i] = s.verifyItem(ctx, credID, verifier)
			return nil
		})
	}
	_ = g.Wait()

	valid := 0
	for _, r := range results {
		if r.Valid {
			valid++
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveBulkBatch(len(ids))
	}
	s.logger.InfoContext(ctx, "bulk verification completed",
		"batch_size", len(ids),
		"valid", valid,
		"invalid", len(ids)-valid,
	)
	s.auditor.Log(ctx, string(audit.EventBulkVerification),
		"batch_size", len(ids),
		"valid", valid,
	)
	return results, nil
}

// verifyItem runs one bulk entry under its own deadline. Items picked up after the
// request context is done are reported as timeouts without touching the store.
func (s *Service) verifyItem(ctx context.Context, credID string, verifier models.VerifierContext) *models.VerificationResult {
	if ctx.Err() != nil {
		return s.failedItem(ctx, credID, models.ReasonTimeout)
	}

	itemCtx, cancel := context.WithTimeout(ctx, s.cfg.ItemTimeout)
	defer cancel()

	result, err := s.Verify(itemCtx, models.VerifyInput{CredentialID: credID, Verifier: verifier})
	if err == nil {
		return result
	}
	if dErrors.HasCode(err, dErrors.CodeTimeout) {
		return s.failedItem(ctx, credID, models.ReasonTimeout)
	}
	return s.failedItem(ctx, credID, models.ReasonStoreUnavailable)
}

func (s *Service) failedItem(ctx context.Context, credID string, reason models.ReasonCode) *models.VerificationResult {
	if s.metrics != nil {
		s.metrics.ObserveVerification(string(models.ChannelBulk), false, string(reason), 0)
	}
	return &models.VerificationResult{
		CredentialID: credID,
		Reason:       reason,
		VerifiedAt:   s.now(ctx),
	}
}

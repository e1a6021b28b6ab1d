package handler

import (
	"strings"
	"time"

	"fedcred/internal/credential/models"
	id "fedcred/pkg/domain"
	dErrors "fedcred/pkg/domain-errors"
	"fedcred/pkg/platform/validation"
	validate "fedcred/pkg/validation"
)

// IssueRequest is the body of POST /api/credentials. Missing subject fields are
// reported together by the service as invalid_subject; this layer only rejects
// malformed or oversized values.
type IssueRequest struct {
	SubjectUserID      string `json:"subjectUserId" validate:"omitempty,uuid"`
	SubjectType        string `json:"subjectType" validate:"omitempty,max=32"`
	FullName           string `json:"fullName" validate:"max=200"`
	StateID            string `json:"stateId" validate:"max=64"`
	StateName          string `json:"stateName" validate:"max=120"`
	FederationIDNumber string `json:"federationIdNumber" validate:"max=64"`
	Nationality        string `json:"nationality" validate:"max=64"`
	Ranking            string `json:"ranking" validate:"max=64"`
	ClubName           string `json:"clubName" validate:"max=200"`
	Level              string `json:"level" validate:"max=64"`
	ExpirationDate     string `json:"expirationDate"`

	snapshot   models.Snapshot
	expiration *time.Time
}

func (r *IssueRequest) Sanitize() {
	r.SubjectUserID = strings.TrimSpace(r.SubjectUserID)
	r.SubjectType = strings.TrimSpace(r.SubjectType)
	r.StateID = strings.TrimSpace(r.StateID)
	r.ExpirationDate = strings.TrimSpace(r.ExpirationDate)
}

func (r *IssueRequest) Validate() error {
	if err := validate.Validate(r); err != nil {
		return err
	}

	snap := models.Snapshot{
		FullName:           r.FullName,
		StateName:          r.StateName,
		FederationIDNumber: r.FederationIDNumber,
		Nationality:        r.Nationality,
		Ranking:            r.Ranking,
		ClubName:           r.ClubName,
		Level:              r.Level,
	}
	if r.SubjectUserID != "" {
		userID, err := id.ParseUserID(r.SubjectUserID)
		if err != nil {
			return dErrors.New(dErrors.CodeBadRequest, "subjectUserId must be a valid uuid")
		}
		snap.SubjectUserID = userID
	}
	if r.SubjectType != "" {
		subjectType, err := models.ParseSubjectType(r.SubjectType)
		if err != nil {
			return err
		}
		snap.SubjectType = subjectType
	}
	if r.StateID != "" {
		stateID, err := id.ParseStateID(r.StateID)
		if err != nil {
			return dErrors.New(dErrors.CodeBadRequest, "stateId is invalid")
		}
		snap.StateID = stateID
	}
	if r.ExpirationDate != "" {
		exp, err := parseDate(r.ExpirationDate)
		if err != nil {
			return dErrors.New(dErrors.CodeBadRequest, "expirationDate must be RFC 3339 or YYYY-MM-DD")
		}
		r.expiration = &exp
	}
	r.snapshot = snap
	return nil
}

func (r *IssueRequest) ToModel() models.IssueRequest {
	return models.IssueRequest{Snapshot: r.snapshot, ExpirationDate: r.expiration}
}

// StatusRequest is the body of PUT /api/credentials/{id}/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required,notblank"`

	target models.Status
}

func (r *StatusRequest) Sanitize() {
	r.Status = strings.TrimSpace(r.Status)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *StatusRequest) Validate() error {
	if err := validation.CheckStringLength("reason", r.Reason, validation.MaxReasonLength); err != nil {
		return err
	}
	if err := validate.Validate(r); err != nil {
		return err
	}
	target, err := models.ParseStatus(r.Status)
	if err != nil {
		return err
	}
	r.target = target
	return nil
}

// RenewRequest is the body of PUT /api/credentials/{id}/renew. A missing or zero
// extension selects the policy default.
type RenewRequest struct {
	ExtensionMonths int `json:"extensionMonths" validate:"min=0,max=60"`
}

func (r *RenewRequest) Validate() error {
	return validate.Validate(r)
}

// BulkVerifyRequest is the body of POST /api/credentials/verify-bulk. Batch size and
// per-id length are enforced by the service, batch size first.
type BulkVerifyRequest struct {
	CredentialIDs []string `json:"credentialIds"`
}

func (r *BulkVerifyRequest) Validate() error {
	if r.CredentialIDs == nil {
		return dErrors.New(dErrors.CodeValidation, "credentialIds is required")
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

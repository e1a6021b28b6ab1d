package handler

import (
	"time"

	"fedcred/internal/credential/models"
)

// CredentialResponse is the public view of a credential. Status is the effective
// status at response time; StoredStatus is what the record holds.
type CredentialResponse struct {
	ID                 string                `json:"id"`
	SubjectUserID      string                `json:"subjectUserId"`
	SubjectType        models.SubjectType    `json:"subjectType"`
	FullName           string                `json:"fullName"`
	StateID            string                `json:"stateId"`
	StateName          string                `json:"stateName"`
	FederationIDNumber string                `json:"federationIdNumber"`
	Nationality        string                `json:"nationality"`
	Ranking            string                `json:"ranking,omitempty"`
	ClubName           string                `json:"clubName,omitempty"`
	Level              string                `json:"level,omitempty"`
	IssuedDate         time.Time             `json:"issuedDate"`
	ExpirationDate     time.Time             `json:"expirationDate"`
	Status             models.Status         `json:"status"`
	StoredStatus       models.Status         `json:"storedStatus"`
	Checksum           string                `json:"checksum"`
	VerificationURL    string                `json:"verificationUrl"`
	VerificationCount  int64                 `json:"verificationCount"`
	LastVerified       *time.Time            `json:"lastVerified,omitempty"`
	History            []models.HistoryEntry `json:"metadata,omitempty"`
}

func toCredentialResponse(c *models.Credential, now time.Time) *CredentialResponse {
	if c == nil {
		return nil
	}
	return &CredentialResponse{
		ID:                 c.ID.String(),
		SubjectUserID:      c.SubjectUserID.String(),
		SubjectType:        c.SubjectType,
		FullName:           c.FullName,
		StateID:            c.StateID.String(),
		StateName:          c.StateName,
		FederationIDNumber: c.FederationIDNumber,
		Nationality:        c.Nationality,
		Ranking:            c.Ranking,
		ClubName:           c.ClubName,
		Level:              c.Level,
		IssuedDate:         c.IssuedDate.UTC(),
		ExpirationDate:     c.ExpirationDate.UTC(),
		Status:             c.EffectiveStatus(now),
		StoredStatus:       c.Status,
		Checksum:           c.Checksum,
		VerificationURL:    c.VerificationURL,
		VerificationCount:  c.VerificationCount,
		LastVerified:       c.LastVerified,
		History:            c.History,
	}
}

// VerificationResponse is {valid:true, credential} or {valid:false, reason}.
type VerificationResponse struct {
	CredentialID string              `json:"credentialId"`
	Valid        bool                `json:"valid"`
	Reason       models.ReasonCode   `json:"reason,omitempty"`
	VerifiedAt   time.Time           `json:"verifiedAt"`
	Credential   *CredentialResponse `json:"credential,omitempty"`
}

func toVerificationResponse(r *models.VerificationResult) VerificationResponse {
	return VerificationResponse{
		CredentialID: r.CredentialID,
		Valid:        r.Valid,
		Reason:       r.Reason,
		VerifiedAt:   r.VerifiedAt.UTC(),
		Credential:   toCredentialResponse(r.Credential, r.VerifiedAt),
	}
}

// BulkVerificationResponse keeps results in request order.
type BulkVerificationResponse struct {
	Results []VerificationResponse `json:"results"`
	Total   int                    `json:"total"`
	Valid   int                    `json:"valid"`
	Invalid int                    `json:"invalid"`
}

func toBulkResponse(results []*models.VerificationResult) BulkVerificationResponse {
	out := BulkVerificationResponse{
		Results: make([]VerificationResponse, 0, len(results)),
		Total:   len(results),
	}
	for _, r := range results {
		out.Results = append(out.Results, toVerificationResponse(r))
		if r.Valid {
			out.Valid++
		}
	}
	out.Invalid = out.Total - out.Valid
	return out
}

// EventResponse is one verification audit record.
type EventResponse struct {
	ID           string            `json:"id"`
	CredentialID string            `json:"credentialId"`
	Timestamp    time.Time         `json:"timestamp"`
	Result       string            `json:"result"`
	Reason       models.ReasonCode `json:"reason,omitempty"`
	Channel      models.Channel    `json:"channel,omitempty"`
	VerifierID   string            `json:"verifierId,omitempty"`
	VerifierRole string            `json:"verifierRole,omitempty"`
	ClientIP     string            `json:"clientIp,omitempty"`
	UserAgent    string            `json:"userAgent,omitempty"`
	Device       string            `json:"device,omitempty"`
	RequestID    string            `json:"requestId,omitempty"`
}

func toEventResponse(e models.VerificationEvent) EventResponse {
	out := EventResponse{
		ID:           e.ID,
		CredentialID: e.CredentialID,
		Timestamp:    e.Timestamp.UTC(),
		Result:       e.Result(),
		Reason:       e.Reason,
		Channel:      e.Verifier.Channel,
		VerifierRole: e.Verifier.Role.String(),
		ClientIP:     e.Verifier.ClientIP,
		UserAgent:    e.Verifier.UserAgent,
		Device:       e.Verifier.Device,
		RequestID:    e.Verifier.RequestID,
	}
	if !e.Verifier.UserID.IsNil() {
		out.VerifierID = e.Verifier.UserID.String()
	}
	return out
}

// PageResponse is the paginated list envelope payload.
type PageResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func toPageResponse[S, T any](p models.PageResult[S], convert func(S) T) PageResponse[T] {
	items := make([]T, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, convert(item))
	}
	return PageResponse[T]{Items: items, Total: p.Total, Limit: p.Limit, Offset: p.Offset}
}

package export

import (
	"context"
	"encoding/json"
	"time"

	"fedcred/internal/credential/models"
	"fedcred/pkg/requestcontext"
)

const ManifestContentType = "application/vnd.fedcred.card+json"

// Manifest is the card document downstream renderers turn into a PDF or image.
// The QR payload carries only the verification URL; the stored checksum is the
// tamper evidence.
type Manifest struct {
	Kind            Kind            `json:"kind"`
	CredentialID    string          `json:"credentialId"`
	Subject         ManifestSubject `json:"subject"`
	IssuedDate      time.Time       `json:"issuedDate"`
	ExpirationDate  time.Time       `json:"expirationDate"`
	Status          models.Status   `json:"status"`
	VerificationURL string          `json:"verificationUrl"`
	QRPayload       string          `json:"qrPayload"`
	GeneratedAt     time.Time       `json:"generatedAt"`
}

type ManifestSubject struct {
	Type               models.SubjectType `json:"type"`
	FullName           string             `json:"fullName"`
	StateID            string             `json:"stateId"`
	StateName          string             `json:"stateName"`
	FederationIDNumber string             `json:"federationIdNumber"`
	Nationality        string             `json:"nationality,omitempty"`
	Ranking            string             `json:"ranking,omitempty"`
	ClubName           string             `json:"clubName,omitempty"`
	Level              string             `json:"level,omitempty"`
}

// ManifestGenerator emits the card manifest for both kinds.
type ManifestGenerator struct{}

func NewManifestGenerator() *ManifestGenerator {
	return &ManifestGenerator{}
}

func (g *ManifestGenerator) Generate(ctx context.Context, kind Kind, cred *models.Credential) (*Artifact, error) {
	now := requestcontext.Now(ctx)
	m := Manifest{
		Kind:         kind,
		CredentialID: cred.ID.String(),
		Subject: ManifestSubject{
			Type:               cred.SubjectType,
			FullName:           cred.FullName,
			StateID:            string(cred.StateID),
			StateName:          cred.StateName,
			FederationIDNumber: cred.FederationIDNumber,
			Nationality:        cred.Nationality,
			Ranking:            cred.Ranking,
			ClubName:           cred.ClubName,
			Level:              cred.Level,
		},
		IssuedDate:      cred.IssuedDate.UTC(),
		ExpirationDate:  cred.ExpirationDate.UTC(),
		Status:          cred.EffectiveStatus(now),
		VerificationURL: cred.VerificationURL,
		QRPayload:       cred.VerificationURL,
		GeneratedAt:     now.UTC(),
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Body:        body,
		ContentType: ManifestContentType,
		Extension:   "json",
	}, nil
}

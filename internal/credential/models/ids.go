package models

import (
	"net/url"
	"strings"

	"github.com/google/uuid"

	dErrors "fedcred/pkg/domain-errors"
)

const credentialIDPrefix = "cred_"

// CredentialID is the opaque public identifier of a credential: "cred_" followed by a random UUID.
type CredentialID string

func NewCredentialID() CredentialID {
	return CredentialID(credentialIDPrefix + uuid.NewString())
}

// ParseCredentialID validates the prefix and the UUID suffix.
func ParseCredentialID(value string) (CredentialID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}
	suffix, ok := strings.CutPrefix(value, credentialIDPrefix)
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential id must start with cred_")
	}
	parsed, err := uuid.Parse(suffix)
	if err != nil || parsed == uuid.Nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid credential id format")
	}
	return CredentialID(credentialIDPrefix + parsed.String()), nil
}

func (id CredentialID) String() string {
	return string(id)
}

// VerificationURL builds the public URL embedded in the scannable code.
// Only the id is encoded; the stored checksum is the tamper evidence.
func VerificationURL(baseURL string, id CredentialID) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + url.PathEscape(id.String())
}

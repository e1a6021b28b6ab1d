package validation

import (
	dErrors "fedcred/pkg/domain-errors"
)

// MaxBodySize caps JSON request bodies (64 KB).
const MaxBodySize = 64 * 1024

// Field length limits for credential requests.
const (
	MaxCredentialIDLength = 64
	MaxFullNameLength     = 200
	MaxStateNameLength    = 120
	MaxFederationIDLength = 64
	MaxClubNameLength     = 200
	MaxLevelLength        = 64
	MaxRankingLength      = 64
	MaxReasonLength       = 500
	MaxChecksumLength     = 128
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.Newf(dErrors.CodeValidation, "too many %s: max %d allowed", fieldName, max)
	}
	return nil
}

// CheckStringLength validates that a string does not exceed the maximum length.
func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.Newf(dErrors.CodeValidation, "%s exceeds max length of %d", fieldName, max)
	}
	return nil
}

// CheckEachStringLength validates that each string in a slice does not exceed the maximum length.
func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.Newf(dErrors.CodeValidation, "%s exceeds max length of %d", fieldName, max)
		}
	}
	return nil
}

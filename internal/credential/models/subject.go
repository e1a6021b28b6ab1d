package models

import (
	"strings"

	dErrors "fedcred/pkg/domain-errors"
)

// SubjectType is the kind of federation member a credential belongs to. Immutable after issuance.
type SubjectType string

const (
	SubjectPlayer    SubjectType = "player"
	SubjectCoach     SubjectType = "coach"
	SubjectReferee   SubjectType = "referee"
	SubjectClubAdmin SubjectType = "club_admin"
)

var AllSubjectTypes = []SubjectType{SubjectPlayer, SubjectCoach, SubjectReferee, SubjectClubAdmin}

func ParseSubjectType(value string) (SubjectType, error) {
	t := SubjectType(strings.ToLower(strings.TrimSpace(value)))
	if !t.IsValid() {
		if value == "" {
			return "", dErrors.New(dErrors.CodeInvalidInput, "subject type is required")
		}
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject type must be one of player, coach, referee, club_admin")
	}
	return t, nil
}

func (t SubjectType) IsValid() bool {
	switch t {
	case SubjectPlayer, SubjectCoach, SubjectReferee, SubjectClubAdmin:
		return true
	}
	return false
}

func (t SubjectType) String() string { return string(t) }

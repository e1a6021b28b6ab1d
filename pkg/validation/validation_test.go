package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "fedcred/pkg/domain-errors"
)

type subjectSnapshot struct {
	FullName           string `json:"fullName" validate:"required,notblank,max=20"`
	FederationIDNumber string `json:"federationIdNumber" validate:"required,max=64"`
	SubjectType        string `json:"subjectType" validate:"oneof=player coach referee club_admin"`
	Months             int    `json:"extensionMonths" validate:"omitempty,max=60"`
}

func valid() subjectSnapshot {
	return subjectSnapshot{FullName: "Ada Obi", FederationIDNumber: "NGF-001", SubjectType: "coach"}
}

func TestValidate(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		require.NoError(t, Validate(valid()))
	})

	t.Run("missing field reports json name", func(t *testing.T) {
		req := valid()
		req.FederationIDNumber = ""
		err := Validate(req)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "federationIdNumber is required", err.Error())
	})

	t.Run("blank string", func(t *testing.T) {
		req := valid()
		req.FullName = "   "
		assert.Equal(t, "fullName must not be blank", Validate(req).Error())
	})

	t.Run("string and number max", func(t *testing.T) {
		req := valid()
		req.FullName = "Adaeze Chukwuemeka Obi"
		req.Months = 61
		assert.Equal(t, "fullName exceeds max length of 20; extensionMonths must be at most 60", Validate(req).Error())
	})

	t.Run("oneof", func(t *testing.T) {
		req := valid()
		req.SubjectType = "fan"
		assert.Contains(t, Validate(req).Error(), "subjectType must be one of")
	})

	t.Run("long lists are truncated", func(t *testing.T) {
		req := subjectSnapshot{FullName: "Adaeze Chukwuemeka Obi", SubjectType: "fan", Months: 61}
		assert.Equal(t,
			"fullName exceeds max length of 20; federationIdNumber is required; subjectType must be one of [player coach referee club_admin]; and 1 more",
			Validate(req).Error())
	})

	t.Run("custom code", func(t *testing.T) {
		err := ValidateAs(subjectSnapshot{}, dErrors.CodeInvalidSubject)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidSubject))
	})
}

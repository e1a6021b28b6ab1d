// Package validation checks request structs against their `validate` tags and
// reports failures by JSON field name, the way clients spelled them.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "fedcred/pkg/domain-errors"
)

// maxReported bounds how many field failures one message lists.
const maxReported = 3

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate returns a validation_failed error listing the failing fields.
func Validate(req any) error {
	return ValidateAs(req, dErrors.CodeValidation)
}

// ValidateAs is Validate with a caller-chosen code, e.g. invalid_subject at issuance.
func ValidateAs(req any, code dErrors.Code) error {
	if err := defaultValidator.Struct(req); err != nil {
		return dErrors.Wrap(err, code, ErrorMessage(err))
	}
	return nil
}

// ErrorMessage renders up to three field failures joined by "; ".
func ErrorMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "invalid request body"
	}
	msgs := make([]string, 0, maxReported)
	for _, fe := range fieldErrs {
		if len(msgs) == maxReported {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(fieldErrs)-maxReported))
			break
		}
		msgs = append(msgs, fieldMessage(fe))
	}
	return strings.Join(msgs, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	if field == "" {
		field = fe.StructField()
	}
	switch fe.ActualTag() {
	case "required":
		return field + " is required"
	case "notblank":
		return field + " must not be blank"
	case "uuid", "uuid4":
		return field + " must be a valid uuid"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s exceeds max length of %s", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "iso3166_1_alpha2", "iso3166_1_alpha3":
		return field + " must be an ISO 3166 country code"
	case "alphanum":
		return field + " must be alphanumeric"
	}
	return field + " is invalid"
}

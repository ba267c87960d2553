package services

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/JPdumas08/WebDev1.2-sub001/internal/models"
	"github.com/go-playground/validator/v10"
)

// Violation is one field-level input problem
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InputError lists every violation found in a request. It matches models.ErrInputInvalid.
type InputError struct {
	Violations []Violation
}

func (e *InputError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

func (e *InputError) Unwrap() error {
	return models.ErrInputInvalid
}

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{2,63}$`)
)

// Shared validator instance (reused across all requests)
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their wire names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("identifier", isIdentifier); err != nil {
		panic(fmt.Sprintf("register identifier validation: %v", err))
	}
	return v
}

// isIdentifier accepts an email address or a username
func isIdentifier(fl validator.FieldLevel) bool {
	value := strings.TrimSpace(fl.Field().String())
	if strings.Contains(value, "@") {
		return emailPattern.MatchString(value)
	}
	return usernamePattern.MatchString(value)
}

// validateStruct returns every violation in req, not just the first
func validateStruct(req interface{}) []Violation {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []Violation{{Field: "request", Message: "could not be validated"}}
	}

	violations := make([]Violation, 0, len(ve))
	for _, fieldError := range ve {
		violations = append(violations, Violation{
			Field:   fieldError.Field(),
			Message: formatValidationError(fieldError),
		})
	}
	return violations
}

// formatValidationError converts a validator FieldError to a user-friendly message
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "identifier":
		return "must be an email address or a username"
	case "min":
		return fmt.Sprintf("must have a minimum of %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must have a maximum of %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}

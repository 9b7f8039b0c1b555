// internal/utils/validator.go
package utils

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate

	slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,48}$`)
	upcPattern  = regexp.MustCompile(`^(\d{8}|\d{12,14})$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("slug", validateSlug)
	validate.RegisterValidation("upc", validateUPC)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// IsValidSlug reports whether s can serve as a vendor identity.
func IsValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}

func IsValidUPC(s string) bool {
	return upcPattern.MatchString(s)
}

func validateSlug(fl validator.FieldLevel) bool {
	return IsValidSlug(fl.Field().String())
}

func validateUPC(fl validator.FieldLevel) bool {
	return IsValidUPC(fl.Field().String())
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "slug":
		return "Vendor slug must be 2-49 lowercase letters, digits or hyphens"
	case "upc":
		return "UPC must be 8, 12, 13 or 14 digits"
	default:
		return e.Field() + " is invalid"
	}
}

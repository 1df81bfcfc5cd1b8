// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("sku", validateSKU)
	validate.RegisterValidation("source_key", validateSourceKey)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateSKU(fl validator.FieldLevel) bool {
	sku := strings.TrimSpace(fl.Field().String())

	// SKUs are non-empty printable identifiers up to 255 characters
	if len(sku) == 0 || len(sku) > 255 {
		return false
	}

	matched, _ := regexp.MatchString(`^[^\x00-\x1f]+$`, sku)
	return matched
}

func validateSourceKey(fl validator.FieldLevel) bool {
	source := fl.Field().String()

	// Source keys are lowercase alphanumeric with dashes/underscores, 2-100 characters
	if len(source) < 2 || len(source) > 100 {
		return false
	}

	matched, _ := regexp.MatchString("^[a-z0-9_-]+$", source)
	return matched
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
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
	case "sku":
		return "SKU must be a non-empty printable identifier up to 255 characters"
	case "source_key":
		return "Source must be 2-100 lowercase alphanumeric characters, dashes, or underscores"
	default:
		return e.Field() + " is invalid"
	}
}

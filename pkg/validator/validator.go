// ==============================================================================
// VALIDATOR PACKAGE - pkg/validator/validator.go
// ==============================================================================
package validator

import (
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// fieldPathPattern accepts "name", "aadhaarImages.front" or "creditCards.0.cardNumber".
var fieldPathPattern = regexp.MustCompile(`^[a-zA-Z]+(\.\d{1,2})?(\.[a-zA-Z]+)?$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		// Format validation errors
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "email":
					msg = "Invalid email address"
				case "min":
					msg = fmt.Sprintf("Must be at least %s", e.Param())
				case "max":
					msg = fmt.Sprintf("Must be at most %s", e.Param())
				case "uuid":
					msg = "Must be a valid UUID"
				case "field_path":
					msg = "Unknown form field"
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (v *Validator) registerCustomValidations() {
	_ = v.validate.RegisterValidation("field_path", func(fl validator.FieldLevel) bool {
		return fieldPathPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}

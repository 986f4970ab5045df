package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration and returns ValidationErrors listing
// every offending field.
func (c OperatorConfig) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			errs.Add(fe.Field(), describe(fe), fe.Value())
		}
	}

	if c.UsePaths && strings.TrimSpace(c.InstancesPath) == "" {
		errs.Add("InstancesPath", "is required when paths are used instead of subdomains")
	}
	if c.EnableActivityTracker && !c.EnableMonitor {
		errs.Add("EnableActivityTracker", "requires the monitor to be enabled", c.EnableActivityTracker)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "hostname_rfc1123":
		return "must be a host name"
	case "gte", "gt":
		return fmt.Sprintf("must be %s %s", map[string]string{"gte": ">=", "gt": ">"}[fe.Tag()], fe.Param())
	case "gtefield", "gtfield":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}

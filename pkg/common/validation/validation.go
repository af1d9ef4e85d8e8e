package validation

import (
	gferrors "github.com/vnykmshr/detthrottle/pkg/common/errors"
)

// ValidatePositive validates that an unsigned value is positive (> 0).
// Returns a ValidationError if the value is zero.
func ValidatePositive(module, field string, value uint64) error {
	if value == 0 {
		return gferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
// Returns a ValidationError if the string is empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return gferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
// Returns a ValidationError if the value is nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return gferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateUnique validates that name has not been seen before, recording it
// in seen. Returns a ValidationError on the second occurrence.
func ValidateUnique(module, field, name string, seen map[string]struct{}) error {
	if _, dup := seen[name]; dup {
		return gferrors.NewValidationError(module, field, name, "is duplicated").
			WithHint("each " + field + " may appear only once")
	}
	seen[name] = struct{}{}
	return nil
}

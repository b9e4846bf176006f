package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNumericField is returned when a numeric form field holds a
	// non-empty value that does not parse as a number.
	ErrInvalidNumericField = errors.New("invalid numeric field")
	// ErrInvalidJSONPayload is returned when the raw JSON field of an
	// unmapped resource type does not hold a JSON object.
	ErrInvalidJSONPayload = errors.New("invalid JSON payload")
	// ErrMissingRequiredField is returned when a mandatory form field is empty.
	ErrMissingRequiredField = errors.New("missing required field")
	// ErrInvalidMode is returned by ParseMode for anything but create or edit.
	ErrInvalidMode = errors.New("unknown form mode")
)

// FieldError ties a build failure to the form field that caused it.
type FieldError struct {
	Field  string
	Value  string
	Err    error
	Detail string
}

func (e *FieldError) Error() string {
	switch {
	case errors.Is(e.Err, ErrMissingRequiredField):
		return fmt.Sprintf("%s: %s", e.Err, e.Field)
	case e.Detail != "":
		return fmt.Sprintf("%s %q: %s", e.Err, e.Field, e.Detail)
	}
	return fmt.Sprintf("%s %q: %q", e.Err, e.Field, e.Value)
}

func (e *FieldError) Unwrap() error { return e.Err }

func missingField(field string) error {
	return &FieldError{Field: field, Err: ErrMissingRequiredField}
}

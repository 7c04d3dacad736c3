package validation

import (
	"fmt"
	"strings"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects field errors. A nil or empty Errors means valid.
type Errors struct {
	Fields []FieldError `json:"fields"`
}

func (ve *Errors) Add(field, message string) {
	ve.Fields = append(ve.Fields, FieldError{Field: field, Message: message})
}

func (ve *Errors) Addf(field, format string, args ...any) {
	ve.Add(field, fmt.Sprintf(format, args...))
}

func (ve *Errors) HasErrors() bool {
	return ve != nil && len(ve.Fields) > 0
}

func (ve *Errors) Error() string {
	msgs := make([]string, len(ve.Fields))
	for i, e := range ve.Fields {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// Err returns ve as an error, or nil when nothing was collected.
func (ve *Errors) Err() error {
	if !ve.HasErrors() {
		return nil
	}
	return ve
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *Errors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// NonNegative checks an integer field is >= 0.
func NonNegative(ve *Errors, field string, value int) {
	if value < 0 {
		ve.Add(field, "must be a non-negative integer")
	}
}

// Positive checks an integer field is > 0.
func Positive(ve *Errors, field string, value int) {
	if value <= 0 {
		ve.Add(field, "must be a positive integer")
	}
}

// Range checks lo <= value <= hi.
func Range(ve *Errors, field string, value, lo, hi int) {
	if value < lo || value > hi {
		ve.Addf(field, "must be between %d and %d", lo, hi)
	}
}

package validation

import (
	"fmt"
	"time"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Required returns an error if the value is empty.
func Required(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	return nil
}

// NonZeroTime returns an error if the timestamp is the zero value.
func NonZeroTime(field string, value time.Time) *ValidationError {
	if value.IsZero() {
		return &ValidationError{Field: field, Message: "must be a valid timestamp"}
	}
	return nil
}

// OneOf returns an error if the value is not among the allowed set.
func OneOf(field, value string, allowed ...string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of %v", allowed),
	}
}

// MaxItems returns an error if a list exceeds the allowed length.
func MaxItems(field string, count, max int) *ValidationError {
	if count > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must not exceed %d items", max),
		}
	}
	return nil
}

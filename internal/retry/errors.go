// Package retry defines the candidate-level failure taxonomy and renders the
// structured instructions fed back to a generation agent after a rejection.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Category classifies why a SQL candidate was rejected
type Category string

const (
	CategorySyntax           Category = "syntax"
	CategorySchemaError      Category = "schema_error"
	CategoryExecutionError   Category = "execution_error"
	CategoryEmptyResult      Category = "empty_result"
	CategoryEvidenceMismatch Category = "evidence_mismatch"
	CategoryValidationFailed Category = "validation_failed"
)

// Categories lists every category in taxonomy order.
func Categories() []Category {
	return []Category{
		CategorySyntax, CategorySchemaError, CategoryExecutionError,
		CategoryEmptyResult, CategoryEvidenceMismatch, CategoryValidationFailed,
	}
}

// Error is a retriable rejection of one candidate. It is the error variant
// of a validation result and carries enough context to build the next prompt.
type Error struct {
	Category Category
	Message  string
	Hints    []string
	cause    error
}

// New creates a retriable error
func New(category Category, message string, hints ...string) *Error {
	return &Error{Category: category, Message: message, Hints: hints}
}

// Wrap creates a retriable error around cause
func Wrap(category Category, cause error, hints ...string) *Error {
	return &Error{Category: category, Message: cause.Error(), Hints: hints, cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// As extracts a *Error from err's chain.
func As(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

var (
	syntaxPatterns = []string{
		"syntax error", "syntax near", "incorrect syntax", "parse error", "unexpected token",
		"unrecognized token", "missing expression", "ora-00933", "ora-00923", "ora-00936",
	}
	schemaPatterns = []string{
		"does not exist", "no such table", "no such column", "unknown column", "unknown table",
		"invalid object name", "invalid column name", "ora-00942", "ora-00904", "ambiguous",
		"undefined table", "undefined column",
	}
)

// Classify maps an engine error message onto the taxonomy. Unrecognised
// failures are execution errors.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	if re, ok := As(err); ok {
		return re.Category
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryExecutionError
	}
	msg := strings.ToLower(err.Error())
	for _, p := range syntaxPatterns {
		if strings.Contains(msg, p) {
			return CategorySyntax
		}
	}
	for _, p := range schemaPatterns {
		if strings.Contains(msg, p) {
			return CategorySchemaError
		}
	}
	return CategoryExecutionError
}

package template

import (
	"errors"
	"fmt"
)

// ParseError reports an invalid workflow template. It is raised while a
// template or catalog is built and is never a per-deal condition.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid workflow template: %s: %v", e.Message, e.Err)
	}

	return "invalid workflow template: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(err error, format string, args ...any) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Err: err}
}

// Errorf builds a ParseError; the catalog builder reports its integrity
// failures through it.
func Errorf(format string, args ...any) *ParseError {
	return newParseError(nil, format, args...)
}

// IsParseError checks if an error is a template parse error.
func IsParseError(err error) bool {
	var parseErr *ParseError

	return errors.As(err, &parseErr)
}

package http

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed             = errors.New("http: malformed message")
	ErrUnsupportedMethod     = errors.New("http: unsupported method")
	ErrUnsupportedVersion    = errors.New("http: unsupported version")
	ErrUnsupportedStatusCode = errors.New("http: unsupported status code")
	ErrInvalidTarget         = errors.New("http: invalid request target")
	ErrInvalidContentLength  = errors.New("http: invalid content-length")
)

// ParseError reports where in a header block parsing failed. Err is one of the
// sentinel errors above, so callers branch with errors.Is.
type ParseError struct {
	Line    int // 1-indexed line number, 0 if unknown
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d: %s", e.Err, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(err error, line int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Message: fmt.Sprintf(format, args...), Err: err}
}

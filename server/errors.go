package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/freekieb7/helios/http"
)

var (
	ErrHeaderTooLarge = errors.New("server: header too large")
	ErrBodyTooLarge   = errors.New("server: body too large")
	ErrOverloaded     = errors.New("server: connection limit reached")
	ErrHandlerPanic   = errors.New("server: handler panicked")
	ErrStatusLine     = errors.New("server: received a status line")
	ErrNoHandler      = errors.New("server: nil handler")
)

// Kind classifies why a connection stopped.
type Kind uint8

const (
	KindTransport Kind = iota + 1
	KindClosed
	KindTimeout
	KindOversize
	KindMalformed
	KindUnsupportedMethod
	KindUnsupportedVersion
	KindOverload
	KindHandler
	KindShutdown
)

func (kind Kind) String() string {
	switch kind {
	case KindTransport:
		return "transport"
	case KindClosed:
		return "closed"
	case KindTimeout:
		return "timeout"
	case KindOversize:
		return "oversize"
	case KindMalformed:
		return "malformed"
	case KindUnsupportedMethod:
		return "unsupported_method"
	case KindUnsupportedVersion:
		return "unsupported_version"
	case KindOverload:
		return "overload"
	case KindHandler:
		return "handler"
	case KindShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Status is the response sent for a failure of this kind.
func (kind Kind) Status() http.Status {
	switch kind {
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindOversize:
		return http.StatusContentTooLarge
	case KindMalformed:
		return http.StatusBadRequest
	case KindUnsupportedMethod:
		return http.StatusNotImplemented
	case KindUnsupportedVersion:
		return http.StatusHTTPVersionNotSupported
	case KindOverload:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ConnError is a failure that ends or interrupts a connection.
type ConnError struct {
	Kind   Kind
	Status http.Status
	Err    error
}

func newConnError(kind Kind, err error) *ConnError {
	return &ConnError{Kind: kind, Status: kind.Status(), Err: err}
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("server: %s (%s): %v", e.Kind, e.Status, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// Silent reports whether the connection should close without an error
// response: the peer is gone or the server is shutting down.
func (e *ConnError) Silent() bool {
	return e.Kind == KindClosed || e.Kind == KindShutdown
}

// readError classifies a failed read.
func readError(err error) *ConnError {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe), errors.Is(err, net.ErrClosed):
		return newConnError(KindClosed, err)
	case errors.Is(err, os.ErrDeadlineExceeded):
		return newConnError(KindTimeout, err)
	}
	return newConnError(KindTransport, err)
}

// parseError classifies a header that failed to parse.
func parseError(err error) *ConnError {
	switch {
	case errors.Is(err, http.ErrUnsupportedMethod):
		return newConnError(KindUnsupportedMethod, err)
	case errors.Is(err, http.ErrUnsupportedVersion):
		return newConnError(KindUnsupportedVersion, err)
	}
	return newConnError(KindMalformed, err)
}

package server

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/freekieb7/helios/http"
)

// serveMessage calls the handler and turns a panic into an error, so a
// broken handler costs one 500 response instead of the process.
func (s *Server) serveMessage(ctx context.Context, req *http.Message, includeBody bool) (res *http.Message, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.ErrorContext(ctx, "handler panic", "panic", recovered, "stack", string(debug.Stack()))
			res, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, recovered)
		}
	}()

	return s.handler.ServeMessage(ctx, req, includeBody)
}

// errorMessage asks the handler for an error page. When the handler panics or
// has nothing to offer, a bare page with the status line as body is used.
func (s *Server) errorMessage(ctx context.Context, status http.Status) (res *http.Message) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.ErrorContext(ctx, "error page panic", "panic", recovered, "status", status.Code())
			res = nil
		}
		if res == nil {
			res = http.NewResponse(status, []byte(status.String()), true)
		}
	}()

	return s.handler.ErrorMessage(ctx, status)
}

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"
)

// HandshakeFunc prepares an accepted stream before any HTTP bytes flow over
// it, returning the stream to serve.
type HandshakeFunc func(ctx context.Context, conn net.Conn) (net.Conn, error)

// Endpoint is a listener plus the optional handshake every stream it accepts
// has to pass.
type Endpoint struct {
	Name      string
	Listener  net.Listener
	Handshake HandshakeFunc
}

func PlainEndpoint(name string, listener net.Listener) Endpoint {
	return Endpoint{Name: name, Listener: listener}
}

// TLSEndpoint wraps every accepted stream in a server-side TLS session. The
// handshake must finish within timeout.
func TLSEndpoint(name string, listener net.Listener, config *tls.Config, timeout time.Duration) Endpoint {
	return Endpoint{
		Name:     name,
		Listener: listener,
		Handshake: func(ctx context.Context, conn net.Conn) (net.Conn, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			tlsConn := tls.Server(conn, config)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				return nil, err
			}
			return tlsConn, nil
		},
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// acceptLoop hands every accepted stream to its own goroutine. Accept errors
// back off exponentially; a closed listener ends the loop.
func (s *Server) acceptLoop(ctx context.Context, endpoint Endpoint) {
	logger := s.logger.With("endpoint", endpoint.Name)
	logger.Info("listening", "addr", endpoint.Listener.Addr().String())

	var delay time.Duration
	for {
		rwc, err := endpoint.Listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				logger.Info("listener closed")
				return
			}

			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			logger.Warn("accept failed", "error", err, "retry_in", delay)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			continue
		}
		delay = 0

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handshakeAndServe(ctx, endpoint, rwc)
		}()
	}
}

func (s *Server) handshakeAndServe(ctx context.Context, endpoint Endpoint, rwc net.Conn) {
	if endpoint.Handshake != nil {
		conn, err := endpoint.Handshake(ctx, rwc)
		if err != nil {
			s.metrics.handshakeFailures.Add(ctx, 1)
			s.logger.Debug("handshake failed",
				"endpoint", endpoint.Name,
				"remote", rwc.RemoteAddr().String(),
				"error", err)
			rwc.Close()
			return
		}
		rwc = conn
	}

	s.serveConn(ctx, endpoint.Name, rwc)
}

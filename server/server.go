package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/freekieb7/helios/config"
	"github.com/freekieb7/helios/http"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var ErrNoEndpoints = errors.New("server: no endpoints to serve")

// Handler produces responses for parsed requests.
type Handler interface {
	// ServeMessage answers req. When includeBody is false the response body
	// is dropped before writing, but Content-Length should still describe it.
	ServeMessage(ctx context.Context, req *http.Message, includeBody bool) (*http.Message, error)
	// ErrorMessage builds the page sent along with an error status.
	ErrorMessage(ctx context.Context, status http.Status) *http.Message
}

type Server struct {
	config  config.Config
	handler Handler
	gate    *Gate

	logger         *slog.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	propagator     propagation.TextMapPropagator
	metrics        *instruments
	tlsConfig      *tls.Config

	conns sync.WaitGroup
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(s *Server) {
		s.meterProvider = provider
	}
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = provider
	}
}

func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(s *Server) {
		s.propagator = propagator
	}
}

// WithTLSConfig replaces the key material ListenAndServe would otherwise
// load from the configured files.
func WithTLSConfig(tlsConfig *tls.Config) Option {
	return func(s *Server) {
		s.tlsConfig = tlsConfig
	}
}

func New(cfg config.Config, handler Handler, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config:         cfg,
		handler:        handler,
		gate:           NewGate(cfg.MaxConnections),
		logger:         slog.Default(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		propagator:     otel.GetTextMapPropagator(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	metrics, err := newInstruments(s.meterProvider.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	s.metrics = metrics

	return s, nil
}

// ListenAndServe binds the plain listener and, when enabled, the TLS one, then
// serves both until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig

	listener, err := lc.Listen(ctx, "tcp", s.config.HTTPAddr())
	if err != nil {
		return err
	}
	endpoints := []Endpoint{PlainEndpoint("http", listener)}

	if s.config.HTTPSEnabled {
		tlsConfig := s.tlsConfig
		if tlsConfig == nil {
			if tlsConfig, err = LoadTLSConfig(s.config.CertFile(), s.config.KeyFile()); err != nil {
				listener.Close()
				return err
			}
		}

		tlsListener, err := lc.Listen(ctx, "tcp", s.config.HTTPSAddr())
		if err != nil {
			listener.Close()
			return err
		}
		endpoints = append(endpoints, TLSEndpoint("https", tlsListener, tlsConfig, s.config.HandshakeTimeout))
	}

	return s.Serve(ctx, endpoints...)
}

// Serve runs one accept loop per endpoint. It returns once ctx is cancelled,
// every listener is closed and every connection has finished.
func (s *Server) Serve(ctx context.Context, endpoints ...Endpoint) error {
	if len(endpoints) == 0 {
		return ErrNoEndpoints
	}

	closeListeners := func() {
		for _, endpoint := range endpoints {
			endpoint.Listener.Close()
		}
	}
	stop := context.AfterFunc(ctx, closeListeners)
	defer stop()

	var loops sync.WaitGroup
	for _, endpoint := range endpoints {
		loops.Add(1)
		go func() {
			defer loops.Done()
			s.acceptLoop(ctx, endpoint)
		}()
	}
	loops.Wait()
	closeListeners()

	s.conns.Wait()
	s.logger.Info("server stopped")
	return nil
}

// ServeConn serves a single stream that was accepted elsewhere. It blocks
// until the stream is closed.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	s.serveConn(ctx, "direct", conn)
}

// Gate exposes the admission gate, mainly for monitoring.
func (s *Server) Gate() *Gate {
	return s.gate
}

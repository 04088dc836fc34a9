package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/freekieb7/helios/http"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultReadBufferSize  = 4096 // 4kB
	DefaultWriteBufferSize = 4096 // 4kB
)

// aLongTimeAgo is a read deadline that makes blocked reads return at once.
var aLongTimeAgo = time.Unix(1, 0)

var errNoResponse = errors.New("server: handler returned no response")

// conn is one accepted stream, owned by the goroutine serving it.
type conn struct {
	server   *Server
	rwc      net.Conn
	id       string
	endpoint string
	logger   *slog.Logger

	br *bufio.Reader
	bw *bufio.Writer

	// expires ends the connection regardless of activity. Zero means the
	// connection may live as long as its peer keeps it busy.
	expires time.Time
}

func (s *Server) serveConn(ctx context.Context, endpoint string, rwc net.Conn) {
	defer rwc.Close()

	c := &conn{
		server:   s,
		rwc:      rwc,
		id:       uuid.NewString(),
		endpoint: endpoint,
		br:       bufio.NewReaderSize(rwc, DefaultReadBufferSize),
		bw:       bufio.NewWriterSize(rwc, DefaultWriteBufferSize),
	}
	c.logger = s.logger.With("conn", c.id, "remote", rwc.RemoteAddr().String(), "endpoint", endpoint)
	attrs := metric.WithAttributes(attribute.String("endpoint", endpoint))

	permit, ok := s.gate.TryAcquire()
	if !ok {
		s.metrics.rejected.Add(ctx, 1, attrs)
		c.logger.Warn("connection rejected", "active", s.gate.Active(), "limit", s.gate.Limit())
		c.fail(ctx, newConnError(KindOverload, ErrOverloaded))
		return
	}
	defer permit.Release()

	s.metrics.accepted.Add(ctx, 1, attrs)
	s.metrics.active.Add(ctx, 1, attrs)
	defer s.metrics.active.Add(context.WithoutCancel(ctx), -1, attrs)

	// Shutdown wakes a blocked read; the read then reports ctx.Err().
	stop := context.AfterFunc(ctx, func() {
		rwc.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	if s.config.MaxLifetime > 0 {
		c.expires = time.Now().Add(s.config.MaxLifetime)
	}

	c.logger.Debug("connection opened")
	c.serve(ctx)
	c.logger.Debug("connection closed")
}

func (c *conn) serve(ctx context.Context) {
	for {
		req, err := c.readRequest(ctx)
		if err != nil {
			c.fail(ctx, err)
			return
		}

		persistent := req.Header.IsPersistent()
		if err := c.respond(ctx, req, persistent); err != nil {
			c.logger.Debug("writing response failed", "error", err)
			return
		}
		if !persistent {
			return
		}
	}
}

func (c *conn) readRequest(ctx context.Context) (*http.Message, *ConnError) {
	block, err := c.readHeader(ctx)
	if err != nil {
		return nil, err
	}

	header, parseErr := http.ParseHeader(block)
	if parseErr != nil {
		return nil, parseError(parseErr)
	}
	if !header.IsRequest() {
		return nil, newConnError(KindMalformed, ErrStatusLine)
	}

	length, ok, lengthErr := header.ContentLength()
	if lengthErr != nil {
		return nil, newConnError(KindMalformed, lengthErr)
	}

	req := &http.Message{Header: *header}
	if ok {
		if length > c.server.config.MaxBodyLen {
			return nil, newConnError(KindOversize, ErrBodyTooLarge)
		}
		if req.Body, err = c.readBody(ctx, length); err != nil {
			return nil, err
		}
	}

	return req, nil
}

// readHeader reads up to and including the empty line that ends the header.
// Each pass consumes what is already buffered, at most one line of it, and
// only reads from the stream when the buffer is empty. The size limit is
// therefore checked before every blocking read, and covers every byte taken
// off the stream, including a skipped empty line.
func (c *conn) readHeader(ctx context.Context) (string, *ConnError) {
	var (
		block   []byte
		total   int
		skipped bool
	)
	for {
		if c.br.Buffered() == 0 {
			if err := c.armRead(ctx); err != nil {
				return "", err
			}
			if _, err := c.br.Peek(1); err != nil {
				return "", c.readError(ctx, err)
			}
		}

		buffered, _ := c.br.Peek(c.br.Buffered())
		end := bytes.IndexByte(buffered, '\n') + 1
		if end == 0 {
			end = len(buffered)
		}
		block = append(block, buffered[:end]...)
		c.br.Discard(end)
		total += end

		if total > c.server.config.MaxHeaderLen {
			return "", newConnError(KindOversize, ErrHeaderTooLarge)
		}
		if block[len(block)-1] != '\n' {
			continue
		}
		if string(block) == crlf {
			// One empty line in front of a request line is ignored. A second
			// one ends an empty header, which does not parse.
			if skipped {
				return string(block), nil
			}
			skipped = true
			block = block[:0]
			continue
		}
		if bytes.HasSuffix(block, []byte(http.HeaderTerminator)) {
			return string(block), nil
		}
	}
}

const crlf = "\r\n"

func (c *conn) readBody(ctx context.Context, length int64) ([]byte, *ConnError) {
	body := make([]byte, length)
	for read := 0; read < len(body); {
		if err := c.armRead(ctx); err != nil {
			return nil, err
		}

		n, err := c.br.Read(body[read:])
		read += n
		if err != nil && read < len(body) {
			return nil, c.readError(ctx, err)
		}
	}
	return body, nil
}

// armRead sets the deadline for the next read: the per-read timeout, or the
// connection lifetime when that ends first.
func (c *conn) armRead(ctx context.Context) *ConnError {
	deadline := time.Now().Add(c.server.config.MaxTimeout)
	if !c.expires.IsZero() && c.expires.Before(deadline) {
		deadline = c.expires
	}
	if err := c.rwc.SetReadDeadline(deadline); err != nil {
		// Only a closed stream refuses a deadline.
		return newConnError(KindClosed, err)
	}
	// Checked after arming: a shutdown that raced the line above has either
	// already overwritten the deadline or is visible here.
	if err := ctx.Err(); err != nil {
		return newConnError(KindShutdown, err)
	}
	return nil
}

func (c *conn) readError(ctx context.Context, err error) *ConnError {
	if ctx.Err() != nil {
		return newConnError(KindShutdown, err)
	}
	return readError(err)
}

func (c *conn) respond(ctx context.Context, req *http.Message, persistent bool) error {
	start := time.Now()
	line, _ := req.Header.RequestLine()

	ctx = c.server.propagator.Extract(ctx, fieldsCarrier(req.Header.Fields))
	ctx, span := c.server.tracer.Start(ctx, line.Method.String(),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", line.Method.String()),
			attribute.String("url.path", line.Target),
			attribute.String("network.protocol.version", line.Version.String()),
			attribute.String("helios.connection.id", c.id),
		))
	defer span.End()

	var res *http.Message
	includeBody := true
	switch line.Method {
	case http.MethodGet, http.MethodPost:
	case http.MethodHead:
		includeBody = false
	default:
		res = c.server.errorMessage(ctx, http.StatusNotImplemented)
	}

	if res == nil {
		var err error
		res, err = c.server.serveMessage(ctx, req, includeBody)
		if err == nil && res == nil {
			err = errNoResponse
		}
		if err != nil {
			span.RecordError(err)
			c.logger.ErrorContext(ctx, "handler failed", "error", err, "target", line.Target)
			res = c.server.errorMessage(ctx, newConnError(KindHandler, err).Status)
		}
	}
	if !includeBody {
		res.Body = nil
	}

	err := c.write(res, persistent)

	status := res.Status()
	span.SetAttributes(attribute.Int("http.response.status_code", status.Code()))
	if status.Code() >= 500 {
		span.SetStatus(codes.Error, status.Reason())
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", c.endpoint),
		attribute.String("http.request.method", line.Method.String()),
		attribute.Int("http.response.status_code", status.Code()),
	)
	c.server.metrics.requests.Add(ctx, 1, attrs)
	c.server.metrics.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	c.logger.InfoContext(ctx, "request",
		"method", line.Method.String(),
		"target", line.Target,
		"status", status.Code(),
		"persistent", persistent)

	return err
}

// fail sends the single error response a failing connection gets, unless
// the peer is already gone. Errors while sending it are dropped.
func (c *conn) fail(ctx context.Context, err *ConnError) {
	if err.Silent() {
		c.logger.Debug("connection ended", "reason", err.Kind.String())
		return
	}
	c.logger.Info("connection failed", "kind", err.Kind.String(), "status", err.Status.Code(), "error", err.Err)

	res := c.server.errorMessage(ctx, err.Status)
	if writeErr := c.write(res, false); writeErr != nil {
		c.logger.Debug("error response not delivered", "error", writeErr)
	}

	c.server.metrics.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", c.endpoint),
		attribute.Int("http.response.status_code", err.Status.Code()),
	))
}

func (c *conn) write(res *http.Message, persistent bool) error {
	if res.Header.Fields == nil {
		res.Header.Fields = http.Fields{}
	}
	if persistent {
		res.Header.Fields.Set("connection", "keep-alive")
	} else {
		res.Header.Fields.Set("connection", "close")
	}

	if err := c.rwc.SetWriteDeadline(time.Now().Add(c.server.config.MaxTimeout)); err != nil {
		return err
	}
	if _, err := res.WriteTo(c.bw); err != nil {
		return err
	}
	return c.bw.Flush()
}

// fieldsCarrier exposes request fields to a trace-context propagator.
type fieldsCarrier http.Fields

func (carrier fieldsCarrier) Get(key string) string {
	value, _ := http.Fields(carrier).Get(key)
	return value
}

func (carrier fieldsCarrier) Set(key, value string) {
	http.Fields(carrier).Set(key, value)
}

func (carrier fieldsCarrier) Keys() []string {
	return http.Fields(carrier).Names()
}

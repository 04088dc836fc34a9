package server

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net"
	stdhttp "net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freekieb7/helios/config"
	"github.com/freekieb7/helios/http"
	"github.com/freekieb7/helios/test"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// stubHandler answers every request with its target and body.
type stubHandler struct {
	calls atomic.Int64
	serve func(ctx context.Context, req *http.Message, includeBody bool) (*http.Message, error)
}

func (h *stubHandler) ServeMessage(ctx context.Context, req *http.Message, includeBody bool) (*http.Message, error) {
	h.calls.Add(1)
	if h.serve != nil {
		return h.serve(ctx, req, includeBody)
	}

	line, _ := req.Header.RequestLine()
	body := "hello " + line.Target
	if len(req.Body) > 0 {
		body += " " + string(req.Body)
	}
	return http.NewResponse(http.StatusOK, []byte(body), includeBody), nil
}

func (h *stubHandler) ErrorMessage(ctx context.Context, status http.Status) *http.Message {
	return http.NewResponse(status, []byte("error "+status.String()), true)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MaxTimeout = 2 * time.Second
	return cfg
}

func newTestServer(t *testing.T, cfg config.Config, handler Handler, opts ...Option) (*Server, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))),
	}, opts...)

	srv, err := New(cfg, handler, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv, reader
}

// servePipe starts ServeConn on one end of a pipe. done is closed when
// ServeConn returns.
func servePipe(t *testing.T, ctx context.Context, srv *Server) (net.Conn, *bufio.Reader, <-chan struct{}) {
	t.Helper()

	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(ctx, serverConn)
	}()
	t.Cleanup(func() { clientConn.Close() })

	return clientConn, bufio.NewReader(clientConn), done
}

func readResponse(t *testing.T, reader *bufio.Reader, method string) (*stdhttp.Response, string) {
	t.Helper()

	res, err := stdhttp.ReadResponse(reader, &stdhttp.Request{Method: method})
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, string(body)
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect metrics: %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, point := range sum.DataPoints {
					total += point.Value
				}
			}
		}
	}
	return total
}

func TestNew(t *testing.T) {
	_, err := New(config.Default(), nil)
	test.ErrorIs(t, err, ErrNoHandler)

	cfg := config.Default()
	cfg.MaxConnections = 0
	_, err = New(cfg, &stubHandler{})
	test.ErrorIs(t, err, config.ErrInvalid)

	srv, err := New(config.Default(), &stubHandler{})
	test.NoError(t, err)
	test.Equal(t, srv.Gate().Limit(), 10)
}

func TestServeNoEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, testConfig(), &stubHandler{})
	test.ErrorIs(t, srv.Serve(context.Background()), ErrNoEndpoints)
}

func TestServeMetrics(t *testing.T) {
	srv, reader := newTestServer(t, testConfig(), &stubHandler{})
	client, br, done := servePipe(t, context.Background(), srv)

	for i := 0; i < 2; i++ {
		if _, err := client.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		readResponse(t, br, "GET")
	}
	test.Equal(t, collect(t, reader, "helios.connections.active"), int64(1))

	client.Close()
	waitDone(t, done)

	test.Equal(t, collect(t, reader, "helios.connections.accepted"), int64(1))
	test.Equal(t, collect(t, reader, "helios.connections.active"), int64(0))
	test.Equal(t, collect(t, reader, "helios.requests"), int64(2))
	test.Equal(t, srv.Gate().Active(), 0)
}

func TestServeTLS(t *testing.T) {
	certificate, pool := selfSigned(t)
	serverTLS := &tls.Config{Certificates: []tls.Certificate{certificate}, MinVersion: tls.VersionTLS12, NextProtos: []string{"http/1.1"}}

	plainListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	tlsListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv, reader := newTestServer(t, testConfig(), &stubHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ctx,
			PlainEndpoint("http", plainListener),
			TLSEndpoint("https", tlsListener, serverTLS, time.Second))
	}()

	t.Run("tls round trip", func(t *testing.T) {
		conn, err := tls.Dial("tcp", tlsListener.Addr().String(), &tls.Config{RootCAs: pool, ServerName: "localhost", NextProtos: []string{"http/1.1"}})
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		test.Equal(t, conn.ConnectionState().NegotiatedProtocol, "http/1.1")
		if _, err := conn.Write([]byte("GET /secure HTTP/1.1\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		res, body := readResponse(t, bufio.NewReader(conn), "GET")
		test.Equal(t, res.StatusCode, 200)
		test.Equal(t, body, "hello /secure")
	})

	t.Run("plain round trip", func(t *testing.T) {
		conn, err := net.Dial("tcp", plainListener.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("GET /plain HTTP/1.0\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		res, body := readResponse(t, bufio.NewReader(conn), "GET")
		test.Equal(t, res.StatusCode, 200)
		test.True(t, res.Close, "connection: close")
		test.Equal(t, body, "hello /plain")
	})

	t.Run("failed handshake is dropped", func(t *testing.T) {
		conn, err := net.Dial("tcp", tlsListener.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		defer conn.Close()

		if _, err := conn.Write([]byte("GET / HTTP/1.1\r\n\r\n")); err != nil {
			t.Fatal(err)
		}
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		got, _ := io.ReadAll(conn)
		test.True(t, !strings.HasPrefix(string(got), "HTTP/"), "no HTTP response after a failed handshake")
		test.Equal(t, collect(t, reader, "helios.handshake.failures"), int64(1))
	})

	cancel()
	select {
	case err := <-served:
		test.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	_, err = net.Dial("tcp", plainListener.Addr().String())
	test.True(t, err != nil, "listener closed after shutdown")
}

func TestLoadTLSConfig(t *testing.T) {
	_, err := LoadTLSConfig("/does/not/exist.pem", "/does/not/exist.key")
	test.True(t, err != nil, "missing key material fails")
	test.True(t, errors.Unwrap(err) != nil, "cause is wrapped")
}

func selfSigned(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

func BenchmarkServeConn(b *testing.B) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	srv, err := New(config.Default(), &stubHandler{}, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		b.Fatal(err)
	}

	go srv.ServeConn(context.Background(), serverConn)

	reqStr := "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"
	reader := bufio.NewReader(clientConn)

	for b.Loop() {
		_, err := clientConn.Write([]byte(reqStr))
		if err != nil {
			b.Fatalf("write error: %v", err)
		}
		resp, err := stdhttp.ReadResponse(reader, nil)
		if err != nil {
			b.Fatalf("read error: %v", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

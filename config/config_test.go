package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/freekieb7/helios/test"
	"github.com/freekieb7/helios/validation"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	test.Equal(t, cfg.MaxConnections, 10)
	test.Equal(t, cfg.MaxHeaderLen, 8192)
	test.Equal(t, cfg.MaxBodyLen, int64(1048576))
	test.Equal(t, cfg.MaxTimeout, 5*time.Second)
	test.Equal(t, cfg.MaxLifetime, time.Duration(0))
	test.Equal(t, cfg.HTTPAddr(), "127.0.0.1:1337")
	test.Equal(t, cfg.HTTPSAddr(), "127.0.0.1:31337")
	test.Equal(t, cfg.PublicDir(), filepath.Join("/var/www", "public"))
	test.Equal(t, cfg.CertFile(), filepath.Join("/var/www", "crypt", "public.pem"))
	test.Equal(t, cfg.KeyFile(), filepath.Join("/var/www", "crypt", "private.pem"))
	test.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(`
# limits
max_connections = 42
max_header_len=1024
max_body_len=0
max_timeout=2
max_lifetime=60

ip=0.0.0.0
port_http=8080
port_https=8443
https_enabled=1
server_root=/srv/www
tls_cert=/etc/helios/cert.pem
unknown_key=whatever
telemetry_enabled=true
`))
	if !test.NoError(t, err) {
		return
	}

	test.Equal(t, cfg.MaxConnections, 42)
	test.Equal(t, cfg.MaxHeaderLen, 1024)
	test.Equal(t, cfg.MaxBodyLen, int64(0))
	test.Equal(t, cfg.MaxTimeout, 2*time.Second)
	test.Equal(t, cfg.MaxLifetime, time.Minute)
	test.Equal(t, cfg.HTTPSEnabled, true)
	test.Equal(t, cfg.TelemetryEnabled, true)
	test.Equal(t, cfg.HTTPAddr(), "0.0.0.0:8080")
	test.Equal(t, cfg.CertFile(), "/etc/helios/cert.pem")
	test.Equal(t, cfg.KeyFile(), filepath.Join("/srv/www", "crypt", "private.pem"))

	// untouched keys keep their defaults
	test.Equal(t, cfg.HandshakeTimeout, 10*time.Second)
	test.Equal(t, cfg.ServerName, "Helios/13.37")
}

func TestParseReportsAllViolations(t *testing.T) {
	_, err := Parse(strings.NewReader("max_connections=0\nport_http=abc\nhttps_enabled=maybe\n"))
	test.ErrorIs(t, err, ErrInvalid)

	var violations validation.Violations
	if !errors.As(err, &violations) {
		t.Fatalf("expected validation.Violations, got %v", err)
	}
	test.Equal(t, len(violations.Errors), 3)
}

func TestParseDurationBounds(t *testing.T) {
	for _, key := range []string{"max_timeout", "max_lifetime", "handshake_timeout", "cgi_timeout"} {
		_, err := Parse(strings.NewReader(key + "=9223372036\n"))
		if test.ErrorIs(t, err, ErrInvalid) {
			test.Contains(t, err.Error(), key+" must be at most 86400")
		}
	}

	cfg, err := Parse(strings.NewReader("max_timeout=86400\n"))
	if test.NoError(t, err) {
		test.Equal(t, cfg.MaxTimeout, 24*time.Hour)
	}
}

func TestParseSyntaxError(t *testing.T) {
	_, err := Parse(strings.NewReader("max_connections=1\nthis line is wrong\n"))
	test.ErrorIs(t, err, ErrSyntax)
	test.Contains(t, err.Error(), "line 2")

	_, err = Parse(strings.NewReader("=5\n"))
	test.ErrorIs(t, err, ErrSyntax)
}

func TestParseSamePorts(t *testing.T) {
	_, err := Parse(strings.NewReader("https_enabled=true\nport_http=443\nport_https=443\n"))
	test.ErrorIs(t, err, ErrInvalid)
	test.Contains(t, err.Error(), "port_https must differ")

	// the plain listener alone does not care about the TLS port
	_, err = Parse(strings.NewReader("https_enabled=false\nport_http=443\nport_https=443\n"))
	test.NoError(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.MaxConnections = 0
	cfg.MaxTimeout = 0
	cfg.IP = "nope"

	err := cfg.Validate()
	test.ErrorIs(t, err, ErrInvalid)
	test.Contains(t, err.Error(), "max_connections")
	test.Contains(t, err.Error(), "max_timeout")
	test.Contains(t, err.Error(), "ip must be an IP address")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helios.conf")
	if err := os.WriteFile(path, []byte("port_http=9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	test.NoError(t, err)
	test.Equal(t, cfg.PortHTTP, 9000)

	_, err = Load(filepath.Join(t.TempDir(), "missing.conf"))
	test.ErrorIs(t, err, os.ErrNotExist)
}

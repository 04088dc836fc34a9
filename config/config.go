package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/freekieb7/helios/validation"
)

var (
	ErrInvalid = errors.New("config: invalid configuration")
	ErrSyntax  = errors.New("config: syntax error")
)

// Config holds every tunable of the server. It is passed by value; nothing in
// the server looks configuration up globally.
type Config struct {
	MaxConnections int
	MaxHeaderLen   int
	MaxBodyLen     int64

	// MaxTimeout bounds every single read and write.
	MaxTimeout time.Duration
	// MaxLifetime bounds a whole connection. Zero disables it.
	MaxLifetime      time.Duration
	HandshakeTimeout time.Duration
	// CGITimeout bounds one interpreter run. Zero disables it.
	CGITimeout time.Duration

	IP           string
	PortHTTP     int
	PortHTTPS    int
	HTTPSEnabled bool

	ServerRoot string
	TLSCert    string
	TLSKey     string
	CGIBinary  string
	ServerName string

	TelemetryEnabled bool
	ServiceName      string
}

func Default() Config {
	return Config{
		MaxConnections:   10,
		MaxHeaderLen:     8192,
		MaxBodyLen:       1024 * 1024,
		MaxTimeout:       5 * time.Second,
		MaxLifetime:      0,
		HandshakeTimeout: 10 * time.Second,
		CGITimeout:       30 * time.Second,
		IP:               "127.0.0.1",
		PortHTTP:         1337,
		PortHTTPS:        31337,
		HTTPSEnabled:     false,
		ServerRoot:       "/var/www",
		CGIBinary:        "php-cgi",
		ServerName:       "Helios/13.37",
		TelemetryEnabled: false,
		ServiceName:      "helios",
	}
}

// maxSeconds bounds every setting given in seconds: one day.
const maxSeconds = 24 * 60 * 60

var rules = map[string][]validation.Rule{
	"max_connections":   {validation.Integer(), validation.Min(1)},
	"max_header_len":    {validation.Integer(), validation.Min(1)},
	"max_body_len":      {validation.Integer(), validation.Min(0)},
	"max_timeout":       {validation.Integer(), validation.Min(1), validation.Max(maxSeconds)},
	"max_lifetime":      {validation.Integer(), validation.Min(0), validation.Max(maxSeconds)},
	"handshake_timeout": {validation.Integer(), validation.Min(1), validation.Max(maxSeconds)},
	"cgi_timeout":       {validation.Integer(), validation.Min(0), validation.Max(maxSeconds)},
	"ip":                {validation.Required(), validation.IP()},
	"port_http":         {validation.Integer(), validation.Port()},
	"port_https":        {validation.Integer(), validation.Port()},
	"https_enabled":     {validation.Boolean()},
	"server_root":       {validation.Required()},
	"tls_cert":          {validation.Required()},
	"tls_key":           {validation.Required()},
	"cgi_binary":        {validation.Required()},
	"server_name":       {validation.Required()},
	"telemetry_enabled": {validation.Boolean()},
	"service_name":      {validation.Required()},
}

// Load reads the configuration file at path.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Error("closing config file error", "error", closeErr)
		}
	}()

	return Parse(file)
}

// Parse reads key=value lines. Blank lines and lines starting with '#' are
// ignored, unknown keys too. Settings that are not present keep their
// defaults. Every invalid value is reported in a single error.
func Parse(r io.Reader) (Config, error) {
	values := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return Config{}, fmt.Errorf("%w: line %d has no '='", ErrSyntax, lineNumber)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			return Config{}, fmt.Errorf("%w: line %d has an empty key", ErrSyntax, lineNumber)
		}
		values[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return Config{}, fmt.Errorf("config: read: %w", err)
	}

	if violations := validation.Validate(values, rules); !violations.IsEmpty() {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalid, violations)
	}

	cfg := Default()
	cfg.apply(values)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// apply copies already validated raw values onto the config.
func (cfg *Config) apply(values map[string]string) {
	integer := func(key string, target *int) {
		if value, ok := values[key]; ok {
			*target, _ = strconv.Atoi(value)
		}
	}
	seconds := func(key string, target *time.Duration) {
		if value, ok := values[key]; ok {
			n, _ := strconv.Atoi(value)
			*target = time.Duration(n) * time.Second
		}
	}
	boolean := func(key string, target *bool) {
		if value, ok := values[key]; ok {
			*target = validation.ValidateTrue(value)
		}
	}
	text := func(key string, target *string) {
		if value, ok := values[key]; ok {
			*target = value
		}
	}

	integer("max_connections", &cfg.MaxConnections)
	integer("max_header_len", &cfg.MaxHeaderLen)
	if value, ok := values["max_body_len"]; ok {
		cfg.MaxBodyLen, _ = strconv.ParseInt(value, 10, 64)
	}
	seconds("max_timeout", &cfg.MaxTimeout)
	seconds("max_lifetime", &cfg.MaxLifetime)
	seconds("handshake_timeout", &cfg.HandshakeTimeout)
	seconds("cgi_timeout", &cfg.CGITimeout)
	text("ip", &cfg.IP)
	integer("port_http", &cfg.PortHTTP)
	integer("port_https", &cfg.PortHTTPS)
	boolean("https_enabled", &cfg.HTTPSEnabled)
	text("server_root", &cfg.ServerRoot)
	text("tls_cert", &cfg.TLSCert)
	text("tls_key", &cfg.TLSKey)
	text("cgi_binary", &cfg.CGIBinary)
	text("server_name", &cfg.ServerName)
	boolean("telemetry_enabled", &cfg.TelemetryEnabled)
	text("service_name", &cfg.ServiceName)
}

// Validate checks a typed config, for callers that build one in code instead
// of parsing a file.
func (cfg Config) Validate() error {
	var violations validation.Violations

	atLeast := func(name string, value, minimum int64) {
		if value < minimum {
			violations.Add(name, fmt.Errorf("%s must be at least %d, got %d", name, minimum, value))
		}
	}
	atLeast("max_connections", int64(cfg.MaxConnections), 1)
	atLeast("max_header_len", int64(cfg.MaxHeaderLen), 1)
	atLeast("max_body_len", cfg.MaxBodyLen, 0)
	atLeast("max_timeout", int64(cfg.MaxTimeout), 1)
	atLeast("max_lifetime", int64(cfg.MaxLifetime), 0)
	atLeast("handshake_timeout", int64(cfg.HandshakeTimeout), 1)
	atLeast("cgi_timeout", int64(cfg.CGITimeout), 0)

	if !validation.ValidateIP(cfg.IP) {
		violations.Add("ip", fmt.Errorf("ip must be an IP address, got %q", cfg.IP))
	}
	if !validation.ValidatePort(strconv.Itoa(cfg.PortHTTP)) {
		violations.Add("port_http", fmt.Errorf("port_http must be a port between 1 and 65535, got %d", cfg.PortHTTP))
	}
	if cfg.HTTPSEnabled {
		if !validation.ValidatePort(strconv.Itoa(cfg.PortHTTPS)) {
			violations.Add("port_https", fmt.Errorf("port_https must be a port between 1 and 65535, got %d", cfg.PortHTTPS))
		} else if cfg.PortHTTPS == cfg.PortHTTP {
			violations.Add("port_https", fmt.Errorf("port_https must differ from port_http"))
		}
	}
	if cfg.ServerRoot == "" {
		violations.Add("server_root", fmt.Errorf("server_root is required"))
	}
	if cfg.ServerName == "" {
		violations.Add("server_name", fmt.Errorf("server_name is required"))
	}

	if !violations.IsEmpty() {
		return fmt.Errorf("%w: %w", ErrInvalid, violations)
	}
	return nil
}

func (cfg Config) HTTPAddr() string {
	return net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.PortHTTP))
}

func (cfg Config) HTTPSAddr() string {
	return net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.PortHTTPS))
}

// PublicDir is the directory request targets are resolved against.
func (cfg Config) PublicDir() string {
	return filepath.Join(cfg.ServerRoot, "public")
}

// ErrorsDir holds the <code>.html error pages.
func (cfg Config) ErrorsDir() string {
	return filepath.Join(cfg.ServerRoot, "errors")
}

// CertFile returns the TLS certificate chain path, defaulting to
// <root>/crypt/public.pem.
func (cfg Config) CertFile() string {
	if cfg.TLSCert != "" {
		return cfg.TLSCert
	}
	return filepath.Join(cfg.ServerRoot, "crypt", "public.pem")
}

// KeyFile returns the TLS private key path, defaulting to
// <root>/crypt/private.pem.
func (cfg Config) KeyFile() string {
	if cfg.TLSKey != "" {
		return cfg.TLSKey
	}
	return filepath.Join(cfg.ServerRoot, "crypt", "private.pem")
}

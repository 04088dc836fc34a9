package server

import (
	"crypto/tls"
	"fmt"
)

// LoadTLSConfig reads a PEM certificate chain and private key. Only HTTP/1.1
// is offered through ALPN.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	certificate, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("server: load tls material: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}, nil
}

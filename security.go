package linesearch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

// Secure wraps conn in TLS using the PEM certificate and key at certPath and
// keyPath, and completes the handshake before returning.
//
// Both files are checked for existence first so a missing file is reported
// as ErrNotFound. A server presents the key pair. A client presents it as
// well and trusts the certificate as its only root, which suits the
// self-signed deployments this service targets. Failures are never retried.
func Secure(conn net.Conn, certPath, keyPath string, serverSide bool) (*tls.Conn, error) {
	return SecureContext(context.Background(), conn, certPath, keyPath, serverSide)
}

// SecureContext is Secure with a context bounding the handshake.
func SecureContext(ctx context.Context, conn net.Conn, certPath, keyPath string, serverSide bool) (*tls.Conn, error) {
	cfg, err := loadTLSConfig(certPath, keyPath, serverSide)
	if err != nil {
		return nil, err
	}

	var tc *tls.Conn
	if serverSide {
		tc = tls.Server(conn, cfg)
	} else {
		if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			cfg.ServerName = host
		}
		tc = tls.Client(conn, cfg)
	}
	if err := tc.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: handshake with %s: %w", ErrTLS, conn.RemoteAddr(), err)
	}
	return tc, nil
}

func loadTLSConfig(certPath, keyPath string, serverSide bool) (*tls.Config, error) {
	for _, p := range []string{certPath, keyPath} {
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
			}
			return nil, ioError("stat "+p, err)
		}
	}

	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "pem") {
			return nil, fmt.Errorf("%w: malformed PEM in %s or %s: %w", ErrTLS, certPath, keyPath, err)
		}
		return nil, fmt.Errorf("%w: load key pair: %w", ErrTLS, err)
	}

	cfg := tlsConfigWithDefaults(&tls.Config{Certificates: []tls.Certificate{pair}})
	if !serverSide {
		leaf, err := x509.ParseCertificate(pair.Certificate[0])
		if err != nil {
			return nil, fmt.Errorf("%w: parse certificate: %w", ErrTLS, err)
		}
		roots := x509.NewCertPool()
		roots.AddCert(leaf)
		cfg.RootCAs = roots
	}
	return cfg, nil
}

func tlsConfigWithDefaults(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	cfg = cfg.Clone()
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	return cfg
}

// GuardPayload returns data unchanged if it is at most maxSize bytes long.
// A larger buffer yields *PayloadTooLargeError; a negative maxSize is
// ErrInvalidArgument. Callers apply it to every inbound frame before parsing.
func GuardPayload(data []byte, maxSize int) ([]byte, error) {
	if maxSize < 0 {
		return nil, fmt.Errorf("%w: negative max payload size %d", ErrInvalidArgument, maxSize)
	}
	if len(data) > maxSize {
		return nil, &PayloadTooLargeError{Size: len(data), Max: maxSize}
	}
	return data, nil
}

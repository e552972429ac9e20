package linesearch

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeCorpus writes lines to a file in a fresh temp dir and returns its
// absolute path.
func writeCorpus(t *testing.T, lines ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "corpus.txt")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return p
}

// writeSelfSignedCert writes a self-signed ECDSA certificate for localhost
// and 127.0.0.1 and returns the PEM cert and key paths.
func writeSelfSignedCert(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "linesearch-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

// newTestService returns a Service over a memory store and a corpus made
// of lines.
func newTestService(t *testing.T, cfg ServiceConfig, lines ...string) (*Service, Store) {
	t.Helper()
	if cfg.CorpusPath == "" {
		cfg.CorpusPath = writeCorpus(t, lines...)
	}
	store := NewMemoryStore()
	svc, err := NewService(store, nil, cfg, WithLogger(NoopLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return svc, store
}

type testServer struct {
	srv      *Server
	svc      *Service
	store    Store
	addr     string
	certPath string
	keyPath  string
}

// startTestServer serves a corpus of lines on a loopback port.
func startTestServer(t *testing.T, cfg ServerConfig, lines ...string) *testServer {
	t.Helper()
	svc, store := newTestService(t, ServiceConfig{DefaultMode: ModeTrie}, lines...)
	certPath, keyPath := writeSelfSignedCert(t)
	cfg.CertFile, cfg.KeyFile = certPath, keyPath

	srv, err := NewServer(svc, cfg, WithServerLogger(NoopLogger()))
	if err != nil {
		t.Fatal(err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Serve(ln); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	return &testServer{
		srv:      srv,
		svc:      svc,
		store:    store,
		addr:     ln.Addr().String(),
		certPath: certPath,
		keyPath:  keyPath,
	}
}

func (ts *testServer) dial(t *testing.T, codec Codec) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, ts.addr, ClientConfig{
		CertFile: ts.certPath,
		KeyFile:  ts.keyPath,
		Codec:    codec,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ptr[T any](v T) *T { return &v }

package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

func TestTCPReadWrite(t *testing.T) {
	t.Parallel()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tcp1 := NewTCP(c1)
	tcp2 := NewTCP(c2)

	msg := []byte("hello xmpp")
	go func() {
		_, _ = tcp1.Write(msg)
	}()

	buf := make([]byte, 64)
	n, err := tcp2.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello xmpp" {
		t.Fatalf("Read = %q, want %q", string(buf[:n]), "hello xmpp")
	}
}

func TestTCPClose(t *testing.T) {
	t.Parallel()
	c1, c2 := net.Pipe()
	tcp1 := NewTCP(c1)
	tcp2 := NewTCP(c2)

	tcp1.Close()

	buf := make([]byte, 64)
	if _, err := tcp2.Read(buf); err == nil {
		t.Fatal("expected error reading from closed peer")
	}
}

func TestTCPConnectionStatePlain(t *testing.T) {
	t.Parallel()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tcp := NewTCP(c1)
	if _, ok := tcp.ConnectionState(); ok {
		t.Fatal("plain connection should report no TLS state")
	}
}

func TestTCPPeer(t *testing.T) {
	t.Parallel()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tcp := NewTCP(c1)
	if tcp.Peer() == nil {
		t.Fatal("expected a non-nil peer address for net.Pipe")
	}
}

// selfSignedCert generates an in-memory ECDSA cert/key pair for a client/
// server TLS handshake test, avoiding any dependency on files on disk.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}
}

func TestTCPStartTLSAndVerifyFingerprint(t *testing.T) {
	t.Parallel()
	cert := selfSignedCert(t)
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()

	done := make(chan error, 1)
	go func() {
		tlsServer := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
		done <- tlsServer.Handshake()
	}()

	client := NewTCP(clientConn)
	err = client.StartTLS(&tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("StartTLS: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server handshake: %v", err)
	}

	state, ok := client.ConnectionState()
	if !ok || len(state.PeerCertificates) == 0 {
		t.Fatal("expected a populated TLS connection state after StartTLS")
	}

	sum := sha256.Sum256(leaf.Raw)
	fingerprint := formatFingerprint(sum[:])
	if err := client.VerifyFingerprint(fingerprint); err != nil {
		t.Fatalf("VerifyFingerprint(matching): %v", err)
	}
	if err := client.VerifyFingerprint("00:11:22:33"); err == nil {
		t.Fatal("expected VerifyFingerprint to reject a mismatched fingerprint")
	}
}

func TestVerifyFingerprintRejectsNonTLSConnection(t *testing.T) {
	t.Parallel()
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	tcp := NewTCP(c1)
	if err := tcp.VerifyFingerprint("AB:CD"); err == nil {
		t.Fatal("expected an error verifying fingerprint on a non-TLS connection")
	}
}

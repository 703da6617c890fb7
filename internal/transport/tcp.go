package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// TCP implements Transport over a plain or TLS-wrapped net.Conn.
type TCP struct {
	mu   sync.Mutex
	conn net.Conn
}

// NewTCP wraps an already-established connection (plain or *tls.Conn — the
// latter is how direct SSL / XEP-0368 connections arrive).
func NewTCP(conn net.Conn) *TCP {
	return &TCP{conn: conn}
}

// Dial opens a TCP connection to addr with the given timeout.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*TCP, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	d := &net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewTCP(conn), nil
}

// DialTLS opens a direct-TLS connection (XEP-0368) to addr.
func DialTLS(ctx context.Context, addr string, timeout time.Duration, cfg *tls.Config) (*TCP, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tls %s: %w", addr, err)
	}
	return NewTCP(conn), nil
}

func (t *TCP) Read(p []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	return conn.Read(p)
}

func (t *TCP) Write(p []byte) (int, error) {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	return conn.Write(p)
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

// StartTLS performs a client-side TLS handshake over the existing
// connection (used for the STARTTLS opt-in). It does no fingerprint check
// itself; pinning against mcabber's ssl_fingerprint is done separately by
// VerifyFingerprint.
func (t *TCP) StartTLS(config *tls.Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	tlsConn := tls.Client(t.conn, config)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("transport: tls handshake: %w", err)
	}
	t.conn = tlsConn
	return nil
}

// VerifyFingerprint checks the peer leaf certificate against a hex-colon
// SHA-256 fingerprint string (e.g. "AB:CD:...").
func (t *TCP) VerifyFingerprint(fingerprint string) error {
	t.mu.Lock()
	conn, ok := t.conn.(*tls.Conn)
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("transport: not a tls connection")
	}
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return fmt.Errorf("transport: no peer certificate")
	}
	sum := sha256.Sum256(state.PeerCertificates[0].Raw)
	got := formatFingerprint(sum[:])
	want := strings.ToUpper(strings.ReplaceAll(fingerprint, ":", ""))
	want = strings.ReplaceAll(want, " ", "")
	if strings.ReplaceAll(got, ":", "") != want {
		return fmt.Errorf("transport: fingerprint mismatch: got %s", got)
	}
	return nil
}

func formatFingerprint(sum []byte) string {
	hexStr := hex.EncodeToString(sum)
	var b strings.Builder
	for i := 0; i < len(hexStr); i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strings.ToUpper(hexStr[i : i+2]))
	}
	return b.String()
}

func (t *TCP) ConnectionState() (tls.ConnectionState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tlsConn, ok := t.conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

func (t *TCP) Peer() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.RemoteAddr()
}

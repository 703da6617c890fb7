// Package transport provides the byte-level duplex stream abstraction the
// XmlStream engine runs on top of.
package transport

import (
	"crypto/tls"
	"io"
	"net"
)

// Transport is a bidirectional byte stream that can be upgraded to TLS
// in-place (STARTTLS) or already be TLS from the moment it was dialed
// (direct SSL).
type Transport interface {
	io.ReadWriteCloser

	// StartTLS performs (or completes) a TLS handshake over the existing
	// connection and begins using it for subsequent Read/Write calls.
	StartTLS(config *tls.Config) error

	// ConnectionState reports the negotiated TLS state, if any.
	ConnectionState() (tls.ConnectionState, bool)

	// Peer is the remote address.
	Peer() net.Addr
}

// Package ingest implements the hub's publisher-facing side: a reliable,
// message-oriented listener over UDP (via github.com/xtaci/kcp-go/v5), the
// length-prefixed framing atop it, and the Ingest Session state machine
// (AwaitId -> Registering -> Accepting -> Forwarding -> Terminating) from
// spec.md §4.3.
package ingest

import (
	"fmt"
	"net"

	"github.com/xtaci/kcp-go/v5"
)

// Listener accepts inbound publisher connections and peels off each one's
// claimed stream id before handing back a Handshake.
type Listener struct {
	kcp *kcp.Listener
}

// Listen binds addr for reliable UDP ingest. Handshake/retransmission/
// congestion-control internals belong entirely to kcp-go, per spec.md's
// non-goal for the transport itself.
func Listen(addr string) (*Listener, error) {
	l, err := kcp.ListenWithOptions(addr, nil, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("ingest: listen %s: %w", addr, err)
	}
	return &Listener{kcp: l}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.kcp.Addr() }

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.kcp.Close() }

// Accept blocks for the next inbound connection and returns its Handshake.
// Accept itself never rejects a connection; only the returned Handshake's
// StreamID/Reject/Accept methods carry the spec's AwaitId/Registering
// semantics.
func (l *Listener) Accept() (Handshake, error) {
	conn, err := l.kcp.AcceptKCP()
	if err != nil {
		return nil, fmt.Errorf("ingest: accept: %w", err)
	}
	return newHandshake(conn), nil
}

package ingest

import (
	"context"
	"net"
	"time"
)

// handshakeTimeout bounds how long we wait for a newly accepted connection
// to send its first frame (the claimed stream id) before treating it as
// having no id.
const handshakeTimeout = 5 * time.Second

// Reason enumerates rejection reasons sent to a rejected publisher. spec.md
// requires only an "unauthorized" variant, used for both a missing id and a
// duplicate id.
type Reason uint8

// ReasonUnauthorized is sent for both a missing stream id and a duplicate
// stream id — spec.md does not distinguish the two at the wire level.
const ReasonUnauthorized Reason = 0

// Handshake is the pre-acceptance state of an inbound publisher connection:
// it exposes the claimed stream id and the accept/reject actions.
type Handshake interface {
	RemoteAddr() net.Addr
	StreamID() (id string, ok bool)
	Accept() (PacketStream, error)
	Reject(reason Reason) error
}

// PacketStream yields a publisher's packets until EOF or error.
type PacketStream interface {
	Recv(ctx context.Context) (timestamp int64, payload []byte, err error)
}

// handshake wraps a freshly accepted net.Conn (here, a *kcp.UDPSession) and
// the stream id read from its first frame, if any.
type handshake struct {
	conn     net.Conn
	streamID string
	haveID   bool
}

// newHandshake reads the connection's first frame under a short deadline.
// A read failure (timeout, empty frame, or connection error) simply leaves
// haveID false; the Ingest Session's AwaitId step handles that uniformly by
// rejecting as Unauthorized.
func newHandshake(conn net.Conn) *handshake {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	payload, err := readFrame(conn)
	_ = conn.SetReadDeadline(time.Time{})

	h := &handshake{conn: conn}
	if err == nil && len(payload) > 0 {
		h.streamID = string(payload)
		h.haveID = true
	}
	return h
}

func (h *handshake) RemoteAddr() net.Addr { return h.conn.RemoteAddr() }

func (h *handshake) StreamID() (string, bool) { return h.streamID, h.haveID }

// Accept completes the handshake, handing back a PacketStream that reads
// subsequent frames as opaque packets.
func (h *handshake) Accept() (PacketStream, error) {
	return &packetStream{conn: h.conn}, nil
}

// Reject writes a single control frame carrying the reason byte, then
// closes the connection. KCP has no handshake-level reject primitive, so
// rejection is modeled entirely at this framing layer.
func (h *handshake) Reject(reason Reason) error {
	defer h.conn.Close()
	return writeFrame(h.conn, []byte{byte(reason)})
}

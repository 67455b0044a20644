package ingest

import (
	"context"
	"net"
	"time"
)

// packetStream reads subsequent frames off an accepted connection as
// opaque packets. Cancellation follows the teacher's conn.go idiom: Recv
// does not select on ctx internally (KCP sessions, like the teacher's TCP
// conns, unblock a pending Read when the underlying connection is closed);
// callers cancel by closing the session, and Recv surfaces that as an error
// on its next call.
type packetStream struct {
	conn net.Conn
}

// Recv blocks for the next frame. The returned timestamp is the wall-clock
// time the frame was fully read; per spec.md this is deliberately not
// propagated past the Ingest Session.
func (p *packetStream) Recv(ctx context.Context) (timestamp int64, payload []byte, err error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	payload, err = readFrame(p.conn)
	if err != nil {
		return 0, nil, err
	}
	return time.Now().UnixNano(), payload, nil
}

package ingest

// frame.go implements the minimal length-prefixed codec layered atop the
// raw KCP byte stream: a single 4-byte big-endian length prefix followed by
// the payload. This mirrors the read-loop shape of the teacher's
// chunk.Reader (io.ReadFull into a reused scratch buffer) stripped down
// from RTMP chunk headers to the bare minimum this transport needs.

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/alxayo/mediahub/internal/bufpool"
)

const maxFrameSize = 1 << 20 // 1 MiB ceiling per frame

// readFrame reads one length-prefixed frame from r. The returned slice is a
// freshly allocated copy sized exactly to the frame (not pool-backed),
// suitable for handing off to the Broadcast Bus without further copying.
func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("ingest: frame size %d exceeds maximum %d", size, maxFrameSize)
	}

	scratch := bufpool.Get(int(size))
	defer bufpool.Put(scratch)
	if _, err := io.ReadFull(r, scratch); err != nil {
		return nil, err
	}

	payload := make([]byte, size)
	copy(payload, scratch)
	return payload, nil
}

// writeFrame writes payload to w as a single length-prefixed frame.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("ingest: frame size %d exceeds maximum %d", len(payload), maxFrameSize)
	}

	buf := bufpool.Get(4 + len(payload))
	defer bufpool.Put(buf)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	_, err := w.Write(buf)
	return err
}

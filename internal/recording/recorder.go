// Package recording implements an optional, codec-agnostic on-disk capture
// path for a stream's packets. Packets here are opaque payloads (not
// RTMP-tagged audio/video), so the capture file is a plain length-prefixed
// sequence rather than an FLV container.
package recording

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/alxayo/mediahub/internal/bufpool"
)

// PacketRecorder persists a stream's packets to a single capture file. It is
// safe for concurrent WriteMessage calls; the mutex only guards the shared
// write buffer and underlying file handle.
type PacketRecorder struct {
	mu           sync.Mutex
	w            io.WriteCloser
	logger       *slog.Logger
	bytesWritten uint64
}

// NewPacketRecorder creates a recorder writing to path. If file creation
// fails it returns a nil *PacketRecorder and the error.
func NewPacketRecorder(path string, logger *slog.Logger) (*PacketRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder.create: %w", err)
	}
	return &PacketRecorder{w: f, logger: logger}, nil
}

// Disabled reports whether the recorder encountered a fatal write error and
// silently stopped capturing.
func (r *PacketRecorder) Disabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.w == nil
}

// WriteMessage appends one packet as a 4-byte big-endian length prefix
// followed by its payload. The write is synchronous. The first failed write
// closes the file and disables the recorder; later calls are no-ops.
func (r *PacketRecorder) WriteMessage(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return
	}

	buf := bufpool.Get(4 + len(payload))
	defer bufpool.Put(buf)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(payload)))
	copy(buf[4:], payload)

	if _, err := r.w.Write(buf); err != nil {
		r.logger.Error("recorder write failed", "err", err)
		r.closeLocked()
		return
	}
	r.bytesWritten += uint64(len(buf))
}

// Close releases the underlying file.
func (r *PacketRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

func (r *PacketRecorder) closeLocked() error {
	if r.w == nil {
		return nil
	}
	err := r.w.Close()
	r.w = nil
	return err
}

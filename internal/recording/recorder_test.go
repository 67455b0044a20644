package recording

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func nullLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPacketRecorder_WriteMessage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.bin")
	r, err := NewPacketRecorder(path, nullLogger())
	if err != nil {
		t.Fatalf("NewPacketRecorder: %v", err)
	}
	defer r.Close()

	first := []byte{0x01, 0x02, 0x03}
	second := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	r.WriteMessage(first)
	r.WriteMessage(second)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	expected := (4 + len(first)) + (4 + len(second))
	if len(data) != expected {
		t.Fatalf("file size mismatch got %d want %d", len(data), expected)
	}

	size1 := binary.BigEndian.Uint32(data[:4])
	if int(size1) != len(first) {
		t.Fatalf("first length prefix mismatch: %d", size1)
	}
	if string(data[4:4+size1]) != string(first) {
		t.Fatalf("first payload mismatch")
	}

	idx := 4 + int(size1)
	size2 := binary.BigEndian.Uint32(data[idx : idx+4])
	if int(size2) != len(second) {
		t.Fatalf("second length prefix mismatch: %d", size2)
	}
}

type limitedWriter struct {
	limit int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.limit <= 0 {
		return 0, io.ErrShortWrite
	}
	if len(p) > l.limit {
		n := l.limit
		l.limit = 0
		return n, io.ErrShortWrite
	}
	l.limit -= len(p)
	return len(p), nil
}
func (l *limitedWriter) Close() error { return nil }

func TestPacketRecorder_DisablesOnWriteFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "capture.bin")
	r, err := NewPacketRecorder(path, nullLogger())
	if err != nil {
		t.Fatalf("NewPacketRecorder: %v", err)
	}
	r.w = &limitedWriter{limit: 2} // smaller than any length prefix

	r.WriteMessage([]byte{0x01, 0x02, 0x03})
	if !r.Disabled() {
		t.Fatalf("expected recorder to disable itself after a short write")
	}

	// Subsequent calls must no-op, not panic.
	r.WriteMessage([]byte{0xFF})
}

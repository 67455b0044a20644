package ingest

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	payloads := [][]byte{
		[]byte("cam1"),
		{},
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, p := range payloads {
		if err := writeFrame(&buf, p); err != nil {
			t.Fatalf("writeFrame: %v", err)
		}
	}

	for i, want := range payloads {
		got, err := readFrame(&buf)
		if err != nil {
			t.Fatalf("readFrame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("readFrame %d: got %v want %v", i, got, want)
		}
	}

	if _, err := readFrame(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF after draining buffer, got %v", err)
	}
}

func TestReadFrameRejectsOversized(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	// Hand-craft a length prefix larger than maxFrameSize without allocating
	// the full payload bytes (writeFrame itself refuses to write it).
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], maxFrameSize+1)
	buf.Write(prefix[:])
	if _, err := readFrame(&buf); err == nil {
		t.Fatalf("expected readFrame to reject an oversized length prefix")
	}

	oversized := make([]byte, maxFrameSize+1)
	if err := writeFrame(&buf, oversized); err == nil {
		t.Fatalf("expected writeFrame to reject an oversized payload")
	}
}

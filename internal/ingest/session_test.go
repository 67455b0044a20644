package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/alxayo/mediahub/internal/bus"
	"github.com/alxayo/mediahub/internal/relayerr"
)

// fakeAddr satisfies net.Addr for tests that never dial a real socket.
type fakeAddr struct{}

func (fakeAddr) Network() string { return "test" }
func (fakeAddr) String() string  { return "test-peer:0" }

// fakeHandshake lets tests control StreamID/Accept/Reject without a real
// KCP connection.
type fakeHandshake struct {
	mu         sync.Mutex
	streamID   string
	haveID     bool
	acceptErr  error
	stream     *fakePacketStream
	rejected   []Reason
	rejectErr  error
}

func (h *fakeHandshake) RemoteAddr() net.Addr         { return fakeAddr{} }
func (h *fakeHandshake) StreamID() (string, bool)     { return h.streamID, h.haveID }
func (h *fakeHandshake) Accept() (PacketStream, error) {
	if h.acceptErr != nil {
		return nil, h.acceptErr
	}
	return h.stream, nil
}
func (h *fakeHandshake) Reject(reason Reason) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejected = append(h.rejected, reason)
	return h.rejectErr
}

// fakePacketStream replays a fixed sequence of payloads then returns EOF.
type fakePacketStream struct {
	payloads [][]byte
	idx      int
}

func (s *fakePacketStream) Recv(ctx context.Context) (int64, []byte, error) {
	if s.idx >= len(s.payloads) {
		return 0, nil, io.EOF
	}
	p := s.payloads[s.idx]
	s.idx++
	return 0, p, nil
}

// fakeRegistry is a minimal in-memory stand-in for internal/registry.Registry.
type fakeRegistry struct {
	mu        sync.Mutex
	streams   map[string]*bus.Bus[bus.Packet]
	recorded  map[string][][]byte
	removeErr error
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{streams: make(map[string]*bus.Bus[bus.Packet]), recorded: make(map[string][][]byte)}
}

func (r *fakeRegistry) AddStream(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.streams[id]; exists {
		return relayerr.NewRegistrationError("add_stream", relayerr.ErrStreamIDAlreadyExists)
	}
	r.streams[id] = bus.New[bus.Packet](16)
	return nil
}

func (r *fakeRegistry) MustRemoveStream(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.streams[id]
	if !ok {
		panic("fakeRegistry: MustRemoveStream on unregistered id: " + id)
	}
	b.Close()
	delete(r.streams, id)
}

func (r *fakeRegistry) GetSender(id string) (*bus.Bus[bus.Packet], bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.streams[id]
	if !ok {
		return nil, false
	}
	return b.AddSender(), true
}

func (r *fakeRegistry) RecordPacket(id string, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorded[id] = append(r.recorded[id], payload)
}

func TestRunSessionRejectsMissingStreamID(t *testing.T) {
	t.Parallel()

	h := &fakeHandshake{haveID: false}
	reg := newFakeRegistry()

	RunSession(context.Background(), h, reg, nil)

	if len(h.rejected) != 1 || h.rejected[0] != ReasonUnauthorized {
		t.Fatalf("expected exactly one Unauthorized rejection, got %v", h.rejected)
	}
	if len(reg.streams) != 0 {
		t.Fatalf("expected registry unchanged, got %v", reg.streams)
	}
}

func TestRunSessionRejectsDuplicateStreamID(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	if err := reg.AddStream("cam1"); err != nil {
		t.Fatalf("seed AddStream: %v", err)
	}

	h := &fakeHandshake{streamID: "cam1", haveID: true, stream: &fakePacketStream{}}
	RunSession(context.Background(), h, reg, nil)

	if len(h.rejected) != 1 || h.rejected[0] != ReasonUnauthorized {
		t.Fatalf("expected duplicate registration to reject as Unauthorized, got %v", h.rejected)
	}
	if _, ok := reg.streams["cam1"]; !ok {
		t.Fatalf("expected original registration to remain intact")
	}
}

func TestRunSessionForwardsPacketsThenCleansUp(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	stream := &fakePacketStream{payloads: [][]byte{[]byte("p1"), []byte("p2"), []byte("p3")}}
	h := &fakeHandshake{streamID: "cam1", haveID: true, stream: stream}

	RunSession(context.Background(), h, reg, nil)

	if len(h.rejected) != 0 {
		t.Fatalf("expected no rejection, got %v", h.rejected)
	}
	if _, ok := reg.streams["cam1"]; ok {
		t.Fatalf("expected stream to be deregistered after EOF")
	}
	if got := reg.recorded["cam1"]; len(got) != 3 {
		t.Fatalf("expected 3 packets recorded, got %d", len(got))
	}
}

func TestRunSessionAcceptFailureDeregisters(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	h := &fakeHandshake{streamID: "cam1", haveID: true, acceptErr: errors.New("transport failure")}

	RunSession(context.Background(), h, reg, nil)

	if _, ok := reg.streams["cam1"]; ok {
		t.Fatalf("expected stream deregistered after accept failure")
	}
}

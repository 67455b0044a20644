package subscribe

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alxayo/mediahub/internal/bus"
)

// fakeRegistry is a minimal stand-in for internal/registry.Registry backed
// directly by internal/bus, enough to drive subscribe sessions end-to-end
// over a real WebSocket connection.
type fakeRegistry struct {
	media   map[string]*bus.Bus[bus.Packet]
	catalog *bus.Bus[[]string]
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{media: make(map[string]*bus.Bus[bus.Packet]), catalog: bus.New[[]string](8)}
}

func (r *fakeRegistry) GetReceiver(id string) (*bus.Receiver[bus.Packet], bool) {
	b, ok := r.media[id]
	if !ok {
		return nil, false
	}
	return b.Subscribe(), true
}

func (r *fakeRegistry) CatalogReceiver() *bus.Receiver[[]string] { return r.catalog.Subscribe() }

func (r *fakeRegistry) Snapshot() []string {
	ids := make([]string, 0, len(r.media))
	for id := range r.media {
		ids = append(ids, id)
	}
	return ids
}

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	return conn
}

func TestStreamSubscriberReceivesPacketsInOrder(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	reg.media["cam1"] = bus.New[bus.Packet](16)

	server := httptest.NewServer(NewHandler(reg, nil))
	defer server.Close()

	conn := dialWS(t, server, "/streams/cam1")
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let the session subscribe before sending
	reg.media["cam1"].Send(bus.NewPacket([]byte("p1")))
	reg.media["cam1"].Send(bus.NewPacket([]byte("p2")))

	for _, want := range []string{"p1", "p2"} {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read message: %v", err)
		}
		if string(data) != want {
			t.Fatalf("got %q want %q", data, want)
		}
	}
}

func TestStreamSubscriberClosesCleanlyWhenStreamMissing(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	server := httptest.NewServer(NewHandler(reg, nil))
	defer server.Close()

	conn := dialWS(t, server, "/streams/missing")
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to close cleanly with no data frame")
	}
}

func TestCatalogSubscriberReceivesInitialSnapshot(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	reg.media["cam1"] = bus.New[bus.Packet](16)

	server := httptest.NewServer(NewHandler(reg, nil))
	defer server.Close()

	conn := dialWS(t, server, "/streams")
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var got []string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0] != "cam1" {
		t.Fatalf("expected initial snapshot [cam1], got %v", got)
	}
}

func TestCatalogSubscriberReceivesSubsequentSnapshots(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	server := httptest.NewServer(NewHandler(reg, nil))
	defer server.Close()

	conn := dialWS(t, server, "/streams")
	defer conn.Close()

	// initial empty snapshot
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("initial read: %v", err)
	}

	reg.catalog.Send([]string{"cam1"})

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	var got []string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0] != "cam1" {
		t.Fatalf("expected snapshot [cam1], got %v", got)
	}
}

func TestUnknownPathReturns404(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistry()
	server := httptest.NewServer(NewHandler(reg, nil))
	defer server.Close()

	resp, err := server.Client().Get(server.URL + "/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// Package registry implements the hub's process-wide Stream Registry: the
// StreamId -> Broadcast Bus map, plus the singleton Catalog Bus that
// broadcasts the live set of stream ids on every mutation.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/alxayo/mediahub/internal/bus"
	"github.com/alxayo/mediahub/internal/hooks"
	"github.com/alxayo/mediahub/internal/logger"
	"github.com/alxayo/mediahub/internal/recording"
	"github.com/alxayo/mediahub/internal/relayerr"
)

// MediaBusCapacity is the per-stream Broadcast Bus ring size.
const MediaBusCapacity = 10000

// CatalogBusCapacity is the process-wide Catalog Bus ring size.
const CatalogBusCapacity = 100

// entry bundles one stream's bus with its optional recorder.
type entry struct {
	media    *bus.Bus[bus.Packet]
	recorder *recording.PacketRecorder
}

// Registry holds all active streams keyed by stream id and the singleton
// Catalog Bus. Its mutex guards only the map and the catalog snapshot send
// — never network I/O.
type Registry struct {
	mu       sync.Mutex
	streams  map[string]*entry
	catalog  *bus.Bus[[]string]
	hooks    *hooks.Manager
	recordFn func(streamID string) (*recording.PacketRecorder, error)
}

// New creates an empty Registry. hookManager may be nil (events are then
// simply not fired). recordFn, if non-nil, is invoked once per AddStream to
// optionally attach a PacketRecorder to the new stream; returning a nil
// recorder and nil error disables recording for that stream.
func New(hookManager *hooks.Manager, recordFn func(streamID string) (*recording.PacketRecorder, error)) *Registry {
	return &Registry{
		streams:  make(map[string]*entry),
		catalog:  bus.New[[]string](CatalogBusCapacity),
		hooks:    hookManager,
		recordFn: recordFn,
	}
}

// AddStream creates a fresh Broadcast Bus for id and publishes a catalog
// snapshot. Fails with a RegistrationError wrapping ErrStreamIDAlreadyExists
// if id is already registered.
func (r *Registry) AddStream(id string) error {
	r.mu.Lock()
	if _, exists := r.streams[id]; exists {
		r.mu.Unlock()
		return relayerr.NewRegistrationError("add_stream", relayerr.ErrStreamIDAlreadyExists)
	}

	var rec *recording.PacketRecorder
	if r.recordFn != nil {
		var err error
		rec, err = r.recordFn(id)
		if err != nil {
			logger.Warn("packet recorder attach failed", "stream_id", id, "error", err)
			rec = nil
		}
	}

	r.streams[id] = &entry{media: bus.New[bus.Packet](MediaBusCapacity), recorder: rec}
	r.catalog.Send(r.snapshotLocked())
	r.mu.Unlock()

	r.fireEvent(hooks.EventStreamRegister, id)
	return nil
}

// RemoveStream deregisters id and publishes a catalog snapshot. Fails with a
// RegistrationError wrapping ErrStreamIDNotFound if id is not registered.
func (r *Registry) RemoveStream(id string) error {
	r.mu.Lock()
	e, ok := r.streams[id]
	if !ok {
		r.mu.Unlock()
		return relayerr.NewRegistrationError("remove_stream", relayerr.ErrStreamIDNotFound)
	}
	delete(r.streams, id)
	r.catalog.Send(r.snapshotLocked())
	r.mu.Unlock()

	e.media.Close()
	if e.recorder != nil {
		if err := e.recorder.Close(); err != nil {
			logger.Warn("packet recorder close failed", "stream_id", id, "error", err)
		}
	}

	r.fireEvent(hooks.EventStreamDeregister, id)
	return nil
}

// MustRemoveStream is used on cleanup paths reachable only after a
// successful AddStream (Ingest Session terminating transitions): the id is
// guaranteed present, so StreamIdNotFound here indicates a logic bug, not a
// recoverable condition, and is treated as an assertion failure.
func (r *Registry) MustRemoveStream(id string) {
	if err := r.RemoveStream(id); err != nil {
		panic("registry: cleanup path removed a stream that was not registered: " + id)
	}
}

// GetSender returns the media bus for id (AddSender's a new reference for
// the caller) or ok=false if id is not registered.
func (r *Registry) GetSender(id string) (sender *bus.Bus[bus.Packet], ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, present := r.streams[id]
	if !present {
		return nil, false
	}
	return e.media.AddSender(), true
}

// GetReceiver returns a new receiver cursor on id's media bus, or ok=false
// if id is not registered.
func (r *Registry) GetReceiver(id string) (receiver *bus.Receiver[bus.Packet], ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, present := r.streams[id]
	if !present {
		return nil, false
	}
	return e.media.Subscribe(), true
}

// CatalogReceiver returns a new receiver cursor on the Catalog Bus.
func (r *Registry) CatalogReceiver() *bus.Receiver[[]string] {
	return r.catalog.Subscribe()
}

// Snapshot returns the current set of stream ids, in sorted order for
// determinism (spec.md leaves order unspecified).
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []string {
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RecordPacket appends payload to id's recorder, if one is attached. No-op
// if recording is disabled for this stream.
func (r *Registry) RecordPacket(id string, payload []byte) {
	r.mu.Lock()
	e, ok := r.streams[id]
	r.mu.Unlock()
	if !ok || e.recorder == nil {
		return
	}
	e.recorder.WriteMessage(payload)
}

func (r *Registry) fireEvent(eventType hooks.EventType, streamID string) {
	if r.hooks == nil {
		return
	}
	r.hooks.Trigger(context.Background(), *hooks.NewEvent(eventType).WithStreamID(streamID))
}

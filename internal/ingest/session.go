package ingest

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alxayo/mediahub/internal/bus"
	"github.com/alxayo/mediahub/internal/hooks"
	"github.com/alxayo/mediahub/internal/logger"
	"github.com/alxayo/mediahub/internal/relayerr"
)

// Registry is the narrow slice of internal/registry.Registry an Ingest
// Session depends on.
type Registry interface {
	AddStream(id string) error
	MustRemoveStream(id string)
	GetSender(id string) (*bus.Bus[bus.Packet], bool)
	RecordPacket(id string, payload []byte)
}

var sessionCounter uint64

func nextSessionID() string {
	return fmt.Sprintf("ingest-%06d", atomic.AddUint64(&sessionCounter, 1))
}

// RunSession drives one publisher connection through the state machine from
// spec.md §4.3: AwaitId -> Registering -> Accepting -> Forwarding ->
// Terminating. It blocks until the session ends and never returns an error;
// all failures are handled at this boundary, per spec.md §7's propagation
// policy.
func RunSession(ctx context.Context, h Handshake, reg Registry, hookManager *hooks.Manager) {
	sessionID := nextSessionID()
	log := logger.WithSession(logger.Logger(), sessionID, h.RemoteAddr().String())
	log.Info("ingest session started")

	// AwaitId
	id, ok := h.StreamID()
	if !ok {
		log.Warn("ingest session rejected: no stream id presented")
		rejectUnauthorized(h, sessionID, hookManager)
		return
	}
	log = logger.WithStream(log, id)

	// Registering
	if err := reg.AddStream(id); err != nil {
		if relayerr.IsAlreadyExists(err) {
			log.Warn("ingest session rejected: stream id already registered")
			rejectUnauthorized(h, sessionID, hookManager)
			return
		}
		log.Error("ingest session registration failed unexpectedly", "error", err)
		rejectUnauthorized(h, sessionID, hookManager)
		return
	}

	// Accepting
	stream, err := h.Accept()
	if err != nil {
		log.Error("ingest session accept failed after registration", "error", err)
		reg.MustRemoveStream(id)
		return
	}
	fireEvent(hookManager, hooks.EventIngestAccept, sessionID, id)
	log.Info("ingest session accepted")

	// Forwarding
	sender, ok := reg.GetSender(id)
	if !ok {
		// Can only happen if something else removed the stream concurrently,
		// which this single-writer design never does; treat as a logic bug.
		panic("ingest: sender missing immediately after successful registration: " + id)
	}
	defer sender.Close()

	var packets uint64
	for {
		_, payload, err := stream.Recv(ctx)
		if err != nil {
			log.Info("ingest session ending", "reason", err, "packets_forwarded", packets)
			break
		}
		sender.Send(bus.NewPacket(payload))
		reg.RecordPacket(id, payload)
		packets++
	}

	// Terminating
	reg.MustRemoveStream(id)
	log.Info("ingest session terminated", "packets_forwarded", packets)
}

func rejectUnauthorized(h Handshake, sessionID string, hookManager *hooks.Manager) {
	if err := h.Reject(ReasonUnauthorized); err != nil {
		logger.Warn("ingest session reject write failed", "session_id", sessionID, "error", err)
	}
	fireEvent(hookManager, hooks.EventIngestReject, sessionID, "")
}

func fireEvent(hookManager *hooks.Manager, eventType hooks.EventType, sessionID, streamID string) {
	if hookManager == nil {
		return
	}
	event := hooks.NewEvent(eventType).WithSessionID(sessionID)
	if streamID != "" {
		event = event.WithStreamID(streamID)
	}
	hookManager.Trigger(context.Background(), *event)
}

// Package subscribe implements the hub's subscriber-facing side: an
// http.Server upgrading connections to WebSocket via
// github.com/gorilla/websocket, and the two Subscriber Session state
// machines from spec.md §4.4/§4.5 (Stream and Catalog).
package subscribe

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alxayo/mediahub/internal/bus"
	"github.com/alxayo/mediahub/internal/hooks"
	"github.com/alxayo/mediahub/internal/logger"
)

// livenessInterval is the only timer in the subscriber session model, per
// spec.md §5.
const livenessInterval = 30 * time.Second

// writeWait bounds how long a single outbound frame write may take before
// it is treated as a send error.
const writeWait = 10 * time.Second

var sessionCounter uint64

func nextSessionID() string {
	return fmt.Sprintf("sub-%06d", atomic.AddUint64(&sessionCounter, 1))
}

type inboundFrame struct {
	messageType int
}

// busResult carries one Receiver[bus.Packet].Recv outcome across goroutines.
type busResult struct {
	item   bus.Packet
	lagged int
	closed bool
	err    error
}

// StreamRegistry is the narrow slice of internal/registry.Registry a Stream
// Subscriber Session depends on.
type StreamRegistry interface {
	GetReceiver(id string) (*bus.Receiver[bus.Packet], bool)
}

// RunStreamSession drives one subscriber connection bound to streamID
// through the multiplex loop from spec.md §4.4. It blocks until the
// session ends (the bus closes, the peer disconnects, or a send fails).
func RunStreamSession(ctx context.Context, conn *websocket.Conn, reg StreamRegistry, streamID string, hookManager *hooks.Manager) {
	sessionID := nextSessionID()
	log := logger.WithStream(logger.WithSession(logger.Logger(), sessionID, conn.RemoteAddr().String()), streamID)

	receiver, ok := reg.GetReceiver(streamID)
	if !ok {
		// No error frame per spec.md §4.4: the upgrade completes and the
		// connection closes cleanly.
		log.Debug("stream subscriber session: no such stream")
		conn.Close()
		return
	}
	defer receiver.Close()
	defer conn.Close()

	hookManager.Trigger(ctx, *hooks.NewEvent(hooks.EventSubscriberJoin).WithSessionID(sessionID).WithStreamID(streamID))
	defer hookManager.Trigger(context.Background(), *hooks.NewEvent(hooks.EventSubscriberLeave).WithSessionID(sessionID).WithStreamID(streamID))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan inboundFrame, 1)
	go readInboundLoop(sessCtx, conn, inbound, log)

	delivered := make(chan busResult, 1)
	go recvLoop(sessCtx, receiver, delivered)

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	log.Info("stream subscriber session started")
	var deliveredCount, skipped uint64
	for {
		select {
		case <-sessCtx.Done():
			return

		case frame, ok := <-inbound:
			if !ok {
				log.Info("stream subscriber session ending: inbound closed")
				return
			}
			if frame.messageType == websocket.TextMessage || frame.messageType == websocket.BinaryMessage {
				log.Debug("unexpected inbound data frame from subscriber", "message_type", frame.messageType)
			}

		case res := <-delivered:
			if res.err != nil {
				log.Info("stream subscriber session ending: bus recv error", "error", res.err)
				return
			}
			if res.closed {
				log.Info("stream subscriber session ending: bus closed", "delivered", deliveredCount, "skipped", skipped)
				return
			}
			if res.lagged > 0 {
				log.Warn("stream subscriber lagged", "dropped", res.lagged)
				skipped += uint64(res.lagged)
				continue
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, res.item.Payload); err != nil {
				log.Info("stream subscriber session ending: write error", "error", err)
				return
			}
			deliveredCount++

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Info("stream subscriber session ending: ping failed", "error", err)
				return
			}
		}
	}
}

// readInboundLoop reads frames off conn until error (including a received
// Close frame, which gorilla surfaces as an error after replying). Ping
// frames are handled by the handler installed in RunStreamSession and never
// reach this loop.
func readInboundLoop(ctx context.Context, conn *websocket.Conn, out chan<- inboundFrame, log *slog.Logger) {
	defer close(out)
	for {
		messageType, _, err := conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType}:
		case <-ctx.Done():
			return
		}
	}
}

// recvLoop repeatedly drains receiver and forwards each outcome to out,
// stopping after the first terminal outcome (closed or error) or ctx
// cancellation.
func recvLoop(ctx context.Context, receiver *bus.Receiver[bus.Packet], out chan<- busResult) {
	for {
		item, lagged, closed, err := receiver.Recv(ctx)
		select {
		case out <- busResult{item: item, lagged: lagged, closed: closed, err: err}:
		case <-ctx.Done():
			return
		}
		if closed || err != nil {
			return
		}
	}
}

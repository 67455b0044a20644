package subscribe

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/gorilla/websocket"

	"github.com/alxayo/mediahub/internal/bus"
	"github.com/alxayo/mediahub/internal/hooks"
	"github.com/alxayo/mediahub/internal/logger"
)

var catalogJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// catalogResult carries one Receiver[[]string].Recv outcome across
// goroutines.
type catalogResult struct {
	snapshot []string
	lagged   int
	closed   bool
	err      error
}

// CatalogRegistry is the narrow slice of internal/registry.Registry a
// Catalog Subscriber Session depends on.
type CatalogRegistry interface {
	CatalogReceiver() *bus.Receiver[[]string]
	Snapshot() []string
}

// RunCatalogSession drives one subscriber connection bound to the Catalog
// Bus through the multiplex loop from spec.md §4.5: it sends the current
// snapshot immediately, then every subsequent snapshot, and re-snapshots
// directly from the Registry on Lagged to guarantee eventual consistency.
func RunCatalogSession(ctx context.Context, conn *websocket.Conn, reg CatalogRegistry, hookManager *hooks.Manager) {
	sessionID := nextSessionID()
	log := logger.WithSession(logger.Logger(), sessionID, conn.RemoteAddr().String())

	defer conn.Close()

	receiver := reg.CatalogReceiver()
	defer receiver.Close()

	hookManager.Trigger(ctx, *hooks.NewEvent(hooks.EventSubscriberJoin).WithSessionID(sessionID))
	defer hookManager.Trigger(context.Background(), *hooks.NewEvent(hooks.EventSubscriberLeave).WithSessionID(sessionID))

	initial := reg.Snapshot()
	if err := writeSnapshot(conn, initial); err != nil {
		log.Info("catalog subscriber session ending: initial write failed", "error", err)
		return
	}
	hookManager.Trigger(ctx, *hooks.NewEvent(hooks.EventCatalogPush).WithSessionID(sessionID).WithData("stream_count", len(initial)))

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inbound := make(chan inboundFrame, 1)
	go readInboundLoop(sessCtx, conn, inbound, log)

	delivered := make(chan catalogResult, 1)
	go recvCatalogLoop(sessCtx, receiver, delivered)

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	log.Info("catalog subscriber session started")
	for {
		select {
		case <-sessCtx.Done():
			return

		case frame, ok := <-inbound:
			if !ok {
				log.Info("catalog subscriber session ending: inbound closed")
				return
			}
			if frame.messageType == websocket.TextMessage || frame.messageType == websocket.BinaryMessage {
				log.Debug("unexpected inbound data frame from catalog subscriber", "message_type", frame.messageType)
			}

		case res := <-delivered:
			if res.err != nil {
				log.Info("catalog subscriber session ending: bus recv error", "error", res.err)
				return
			}
			if res.closed {
				log.Info("catalog subscriber session ending: bus closed")
				return
			}

			snapshot := res.snapshot
			if res.lagged > 0 {
				log.Warn("catalog subscriber lagged, re-snapshotting from registry", "dropped", res.lagged)
				snapshot = reg.Snapshot()
			}
			if err := writeSnapshot(conn, snapshot); err != nil {
				log.Info("catalog subscriber session ending: write error", "error", err)
				return
			}
			hookManager.Trigger(ctx, *hooks.NewEvent(hooks.EventCatalogPush).WithSessionID(sessionID).WithData("stream_count", len(snapshot)))

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Info("catalog subscriber session ending: ping failed", "error", err)
				return
			}
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snapshot []string) error {
	if snapshot == nil {
		snapshot = []string{}
	}
	data, err := catalogJSON.Marshal(snapshot)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func recvCatalogLoop(ctx context.Context, receiver *bus.Receiver[[]string], out chan<- catalogResult) {
	for {
		snapshot, lagged, closed, err := receiver.Recv(ctx)
		select {
		case out <- catalogResult{snapshot: snapshot, lagged: lagged, closed: closed, err: err}:
		case <-ctx.Done():
			return
		}
		if closed || err != nil {
			return
		}
	}
}

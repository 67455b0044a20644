package subscribe

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/alxayo/mediahub/internal/hooks"
	"github.com/alxayo/mediahub/internal/logger"
)

// Registry is the full surface internal/subscribe needs from
// internal/registry.Registry.
type Registry interface {
	StreamRegistry
	CatalogRegistry
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewHandler builds the subscriber-facing HTTP handler: GET /streams for
// the Catalog subscription, GET /streams/{stream_id} for a Stream
// subscription, and a static-asset placeholder (explicit non-goal) for
// everything else.
func NewHandler(reg Registry, hookManager *hooks.Manager) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /streams", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("catalog upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}
		RunCatalogSession(context.Background(), conn, reg, hookManager)
	})

	mux.HandleFunc("GET /streams/{stream_id}", func(w http.ResponseWriter, r *http.Request) {
		streamID := r.PathValue("stream_id")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("stream upgrade failed", "error", err, "remote_addr", r.RemoteAddr, "stream_id", streamID)
			return
		}
		RunStreamSession(context.Background(), conn, reg, streamID, hookManager)
	})

	// Static asset handling is an explicit non-goal: a real asset pipeline
	// is out of scope, so both exact "/" and the wildcard fall through to
	// plain 404s.
	mux.Handle("GET /{$}", http.NotFoundHandler())
	mux.Handle("GET /{path...}", http.NotFoundHandler())

	return mux
}

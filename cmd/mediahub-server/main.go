package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alxayo/mediahub/internal/hooks"
	"github.com/alxayo/mediahub/internal/ingest"
	"github.com/alxayo/mediahub/internal/logger"
	"github.com/alxayo/mediahub/internal/recording"
	"github.com/alxayo/mediahub/internal/registry"
	"github.com/alxayo/mediahub/internal/subscribe"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// The flag package prints parse errors and usage itself; validation
		// errors returned by parseFlags exit here without a message.
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	hookManager, err := buildHookManager(cfg)
	if err != nil {
		log.Error("invalid hook configuration", "error", err)
		os.Exit(2)
	}
	defer hookManager.Close()

	recordFn, err := buildRecordFn(cfg)
	if err != nil {
		log.Error("failed to prepare recording directory", "error", err)
		os.Exit(1)
	}

	reg := registry.New(hookManager, recordFn)

	ingestListener, err := ingest.Listen(cfg.ingestListen)
	if err != nil {
		log.Error("failed to bind ingest listener", "error", err)
		os.Exit(1)
	}

	subscribeServer := &http.Server{
		Addr:    cfg.subscribeListen,
		Handler: subscribe.NewHandler(reg, hookManager),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runIngestAcceptLoop(ctx, ingestListener, reg, hookManager, log)

	go func() {
		log.Info("subscribe server listening", "addr", cfg.subscribeListen)
		if err := subscribeServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("subscribe server stopped unexpectedly", "error", err)
		}
	}()

	log.Info("server started", "ingest_addr", ingestListener.Addr().String(), "subscribe_addr", cfg.subscribeListen, "version", version)

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ingestListener.Close()
		if err := subscribeServer.Shutdown(shutdownCtx); err != nil {
			log.Error("subscribe server shutdown error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// runIngestAcceptLoop accepts Ingest Handshakes and spawns one Ingest
// Session goroutine per connection until the listener is closed.
func runIngestAcceptLoop(ctx context.Context, l *ingest.Listener, reg *registry.Registry, hookManager *hooks.Manager, log *slog.Logger) {
	for {
		h, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("ingest accept error", "error", err)
			return
		}
		go ingest.RunSession(ctx, h, reg, hookManager)
	}
}

func buildHookManager(cfg *cliConfig) (*hooks.Manager, error) {
	timeout, err := time.ParseDuration(cfg.hookTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse hook-timeout: %w", err)
	}

	hc := hooks.Config{Timeout: cfg.hookTimeout, Concurrency: cfg.hookConcurrency, StdioFormat: cfg.hookStdioFormat}
	m := hooks.NewManager(hc, logger.Logger())

	for i, assignment := range cfg.hookScripts {
		eventType, scriptPath, err := splitHookAssignment(assignment)
		if err != nil {
			return nil, err
		}
		id := fmt.Sprintf("shell-%d", i)
		if err := m.RegisterHook(hooks.EventType(eventType), hooks.NewShellHook(id, scriptPath, timeout)); err != nil {
			return nil, err
		}
	}

	for i, assignment := range cfg.hookWebhooks {
		eventType, url, err := splitHookAssignment(assignment)
		if err != nil {
			return nil, err
		}
		id := fmt.Sprintf("webhook-%d", i)
		if err := m.RegisterHook(hooks.EventType(eventType), hooks.NewWebhookHook(id, url, timeout)); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func splitHookAssignment(assignment string) (eventType, value string, err error) {
	for i := 0; i < len(assignment); i++ {
		if assignment[i] == '=' {
			return assignment[:i], assignment[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("malformed hook assignment %q", assignment)
}

// buildRecordFn returns the per-stream recorder factory passed to
// registry.New, or nil when -record-all is unset.
func buildRecordFn(cfg *cliConfig) (func(streamID string) (*recording.PacketRecorder, error), error) {
	if !cfg.recordAll {
		return nil, nil
	}
	if err := os.MkdirAll(cfg.recordDir, 0o755); err != nil {
		return nil, err
	}
	return func(streamID string) (*recording.PacketRecorder, error) {
		path := filepath.Join(cfg.recordDir, streamID+".pkts")
		return recording.NewPacketRecorder(path, logger.Logger())
	}, nil
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nostr-overlay/internal/store"
)

// shutdownTimeout bounds how long in-flight command requests get to
// finish once a stop signal arrives.
const shutdownTimeout = 5 * time.Second

// stateDir resolves where the client keeps its keys, relay list, and
// mute list. NOSTR_OVERLAY_DIR overrides the per-user config location.
func stateDir() (string, error) {
	if dir := os.Getenv("NOSTR_OVERLAY_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "nostr-overlay"), nil
}

func main() {
	// .env is optional; real env vars win either way.
	godotenv.Load()
	InitLogger()

	dir, err := stateDir()
	if err != nil {
		slog.Error("cannot resolve state directory", "err", err)
		os.Exit(1)
	}
	slog.Info("state directory", "dir", dir)

	app := NewApp(store.NewFileStore(dir))

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", app.connectHandler)
	mux.HandleFunc("/messages/send", app.sendMessageHandler)
	mux.HandleFunc("/messages", app.messagesHandler)
	mux.HandleFunc("/stream", app.streamHandler)
	mux.HandleFunc("/key", app.publicKeyHandler)
	mux.HandleFunc("/key/export", app.exportKeyHandler)
	mux.HandleFunc("/key/import", app.importKeyHandler)
	mux.HandleFunc("/mute", app.muteHandler)
	mux.HandleFunc("/unmute", app.unmuteHandler)
	mux.HandleFunc("/muted", app.mutedHandler)
	mux.HandleFunc("/profile", app.profileHandler)
	mux.HandleFunc("/relays", app.relaysHandler)
	mux.HandleFunc("/relays/add", app.addRelayHandler)
	mux.HandleFunc("/relays/remove", app.removeRelayHandler)
	mux.HandleFunc("/qr", app.qrHandler)
	mux.HandleFunc("/stats", app.statsHandler)
	mux.HandleFunc("/health", healthHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// The command surface is for the local front end only; never bind
	// beyond loopback.
	server := &http.Server{
		Addr:    "127.0.0.1:" + port,
		Handler: requestLogging(mux),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("command surface listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	// Detach stream clients first; an open SSE connection would
	// otherwise hold Shutdown until the timeout expires.
	app.stream.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server shutdown", "err", err)
	}
	app.Close()
}

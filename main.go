package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Kunalpanche/Collaborative-Whiteboard/config"
	"github.com/Kunalpanche/Collaborative-Whiteboard/discovery"
	"github.com/Kunalpanche/Collaborative-Whiteboard/domain"
	"github.com/Kunalpanche/Collaborative-Whiteboard/export"
	"github.com/Kunalpanche/Collaborative-Whiteboard/hub"
	"github.com/Kunalpanche/Collaborative-Whiteboard/protocol"
	"github.com/Kunalpanche/Collaborative-Whiteboard/router"
	"github.com/Kunalpanche/Collaborative-Whiteboard/store"
	ws "github.com/Kunalpanche/Collaborative-Whiteboard/websocket"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.SlogLevel())

	boards, err := store.Open(cfg.BoardStoreURL)
	if err != nil {
		slog.Error("failed to open board store", "url", cfg.BoardStoreURL, "error", err)
		os.Exit(1)
	}
	defer boards.Close()

	registry := hub.New()
	rt := router.New(boards, registry, router.Config{
		MaxAppendRetries: cfg.MaxAppendRetries,
		RetryBackoff:     cfg.RetryBackoff,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newMux(cfg, rt, registry),
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "store", cfg.BoardStoreURL, "defaultBoard", cfg.DefaultBoard)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	var advertiser *discovery.Advertiser
	if cfg.MDNSEnabled {
		advertiser, err = discovery.Advertise(cfg.PortNumber(), cfg.DefaultBoard)
		if err != nil {
			slog.Warn("mdns advertisement disabled", "error", err)
		} else {
			slog.Info("advertising on local network", "service", discovery.ServiceType)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("server shutting down")
	if err := advertiser.Shutdown(); err != nil {
		slog.Error("mdns shutdown error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func newMux(cfg *config.Config, rt *router.Router, registry domain.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.Handler(rt, protocol.NewHandler(rt), ws.Options{
		DefaultBoard:  cfg.DefaultBoard,
		AllowedOrigin: cfg.FrontendURL,
	}))
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /stats", statsHandler(registry))
	mux.HandleFunc("GET /boards/{board}/events", eventsHandler(rt))
	mux.HandleFunc("GET /boards/{board}/export.pdf", exportHandler(rt))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statsHandler(registry domain.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		boards, sessions := registry.Stats()
		writeJSON(w, http.StatusOK, map[string]int{"boards": boards, "sessions": sessions})
	}
}

func eventsHandler(rt *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board := r.PathValue("board")
		events, err := rt.History(r.Context(), board)
		if err != nil {
			slog.Error("history error", "board", board, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, domain.ErrorPayload{Code: "replay_unavailable", Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}

func exportHandler(rt *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		board := r.PathValue("board")
		events, err := rt.History(r.Context(), board)
		if err != nil {
			slog.Error("history error", "board", board, "error", err)
			http.Error(w, "board history unavailable", http.StatusServiceUnavailable)
			return
		}

		var buf bytes.Buffer
		if err := export.PDF(&buf, board, events); err != nil {
			slog.Error("export error", "board", board, "error", err)
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="board.pdf"`)
		w.Write(buf.Bytes())
	}
}

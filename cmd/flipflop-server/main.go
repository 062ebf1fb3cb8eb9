package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/flipflop-server/internal/archive"
	"github.com/park285/flipflop-server/internal/boardimg"
	appcfg "github.com/park285/flipflop-server/internal/config"
	"github.com/park285/flipflop-server/internal/hub"
	"github.com/park285/flipflop-server/internal/obslog"
	"github.com/park285/flipflop-server/internal/room"
	"github.com/park285/flipflop-server/internal/ws"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer obslog.Sync()

	arc := buildArchive(cfg)

	h := hub.New(hub.Config{
		ReconnectGrace: cfg.ReconnectGrace,
		RoomIdleTTL:    cfg.RoomIdleTTL,
		AIMoveDelay:    cfg.AIMoveDelay,
		AIThinkTimeout: cfg.AIThinkTimeout,
		WinOnEntry:     cfg.WinOnEntry,
		OnEnd: func(res room.Result) {
			arc.Record(res)
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.NewServer(h, ws.Config{
		PingInterval: cfg.PingInterval,
		PingWait:     cfg.PingWait,
	}))
	mux.HandleFunc("/rooms/", handleBoardPNG(h))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			obslog.L().Fatal("server_failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	obslog.L().Info("server_shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	h.Close()
	if arc != nil {
		if arc.Store != nil {
			_ = arc.Store.Close()
		}
		if arc.Repo != nil {
			_ = arc.Repo.Close()
		}
	}
}

// buildArchive wires whichever archive backends are configured. A missing
// backend is logged and skipped; the server runs fine without either.
func buildArchive(cfg *appcfg.AppConfig) *archive.Archive {
	arc := &archive.Archive{}
	if cfg.RedisURL != "" {
		store, err := archive.NewStoreFromURL(context.Background(), cfg.RedisURL)
		if err != nil {
			obslog.L().Warn("archive_redis_unavailable", zap.Error(err))
		} else {
			arc.Store = store
		}
	}
	if cfg.DatabaseURL != "" {
		repo, err := archive.NewRepository(cfg.DatabaseURL)
		if err != nil {
			obslog.L().Warn("archive_db_unavailable", zap.Error(err))
		} else {
			arc.Repo = repo
		}
	}
	return arc
}

// handleBoardPNG serves GET /rooms/{code}/board.png.
func handleBoardPNG(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if len(parts) != 3 || parts[0] != "rooms" || parts[2] != "board.png" {
			http.NotFound(w, r)
			return
		}
		rm, ok := h.Room(strings.ToUpper(parts[1]))
		if !ok {
			http.NotFound(w, r)
			return
		}
		data, err := boardimg.Render(rm.State().Board)
		if err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(data)
	}
}

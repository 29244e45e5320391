package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"chesslink/internal/config"
	"chesslink/internal/handlers"
	"chesslink/internal/host"
	"chesslink/internal/logging"
	"chesslink/internal/roomstore"
	"chesslink/internal/storage"
	"chesslink/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "config file")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	logging.Debug = *debug

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Printf("failed to load config, using defaults: %v", err)
		} else {
			cfg = loaded
		}
	}
	logging.Infof("chesslink %s (%s)", commit, buildDate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, rooms, closeBackend, err := openBackend(ctx, cfg)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeBackend()

	var archive *storage.Store
	if cfg.Database.DSN != "" {
		db, err := storage.Open(cfg.Database.DSN)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		archive = storage.NewStore(db)
		logging.Infof("archiving games to postgres")
	}

	hub := host.NewHub(cfg.Server.Origin, kv, archive, cfg.Game.IdleTimeoutDuration())
	go hub.Run(ctx)

	h := handlers.NewHandler(hub, rooms, archive, transport.NewServer(cfg.Server.Origin))
	h.Commit = commit
	h.BuildDate = buildDate
	mux := http.NewServeMux()
	h.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handlers.LogRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logging.Infof("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logging.Errorf("shutdown: %v", err)
		}
	}()

	logging.Infof("chesslink listening on %s (origin %s, %s backend)", srv.Addr, cfg.Server.Origin, cfg.Storage.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}

// openBackend returns the session store and the room store selected by
// storage.backend.
func openBackend(ctx context.Context, cfg *config.Config) (storage.KV, roomstore.Store, func(), error) {
	if cfg.Storage.Backend != config.BackendRedis {
		return storage.NewMemoryKV(), roomstore.NewMemory(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}
	kv := storage.NewRedisKV(rdb, cfg.Storage.SessionTTLDuration())
	rooms := roomstore.NewRedis(rdb, cfg.Game.RoomTTLDuration())
	return kv, rooms, func() { _ = rdb.Close() }, nil
}

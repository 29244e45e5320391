package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"

	"chesslink/internal/board"
	"chesslink/internal/config"
	"chesslink/internal/embedded"
	"chesslink/internal/game"
	"chesslink/internal/logging"
	"chesslink/internal/online"
	"chesslink/internal/protocol"
	"chesslink/internal/roomstore"
	"chesslink/internal/storage"
	"chesslink/internal/transport"
	"chesslink/internal/tui"
)

func main() {
	mode := flag.String("mode", "frame", "frame | online")
	server := flag.String("server", "localhost:8080", "sync host address (frame mode)")
	gameID := flag.String("game", "", "offline game id (frame mode)")
	slot := flag.Int("slot", 0, "board slot, 0 plays white and 1 plays black (frame mode)")
	side := flag.String("side", "", "white or black, overrides -slot (frame mode)")
	binary := flag.Bool("binary", false, "use binary frames (frame mode)")
	join := flag.String("join", "", "room code to join (online mode)")
	configPath := flag.String("config", "", "config file")
	dataDir := flag.String("data", defaultDataDir(), "where session records and logs are kept")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()
	logging.Debug = *debug

	if _, err := logging.InitFile(*dataDir); err != nil {
		log.Fatalf("log file: %v", err)
	}
	defer logging.Close()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}

	kv, err := storage.NewFileKV(filepath.Join(*dataDir, "sessions"))
	if err != nil {
		log.Fatalf("session store: %v", err)
	}

	switch *mode {
	case "frame":
		if *gameID == "" {
			log.Fatal("-game is required in frame mode")
		}
		var n int
		n, err = slotFor(*side, *slot)
		if err == nil {
			err = runFrame(*server, *gameID, n, *binary)
		}
	case "online":
		err = runOnline(cfg, kv, *join)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logging.Errorf("%v", err)
		log.Fatal(err)
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".chessboard")
	}
	return ".chessboard"
}

// slotFor picks the host slot for a named side, falling back to slot.
func slotFor(side string, slot int) (int, error) {
	if side == "" {
		return slot, nil
	}
	role, ok := game.ParseRole(side)
	if !ok {
		return 0, fmt.Errorf("unknown side %q, want white or black", side)
	}
	if role == game.Black {
		return 1, nil
	}
	return 0, nil
}

// runFrame drives one board of an offline game hosted by a chesslink server.
func runFrame(server, gameID string, slot int, binary bool) error {
	url := fmt.Sprintf("ws://%s/frame/%s?slot=%d", server, gameID, slot)
	origin, err := transport.OriginOf(url)
	if err != nil {
		return err
	}

	b := board.New()
	var client *transport.Client
	ctrl := embedded.New(b, origin, func(m *protocol.Message) { client.Post(m) })

	model := tui.New(b, tui.Config{
		Title:  fmt.Sprintf("chessboard  game %s", gameID),
		Status: ctrl.Status,
		Sync: func() error {
			client.Post(protocol.RequestSync())
			return nil
		},
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	ctrl.OnUpdate(func() { p.Send(tui.RefreshMsg{}) })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err = transport.Dial(ctx, url, origin, binary, ctrl.Receive)
	if err != nil {
		return fmt.Errorf("connect %s: %w", url, err)
	}
	defer client.Close()
	go func() {
		<-client.Done()
		logging.Infof("connection to %s closed", server)
		p.Quit()
	}()
	ctrl.Activate()

	_, err = p.Run()
	return err
}

// runOnline plays a room shared through redis, resuming the saved session
// unless a code to join is given.
func runOnline(cfg *config.Config, kv storage.KV, join string) error {
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	archive, err := openArchive(cfg.Database.DSN)
	if err != nil {
		return err
	}

	b := board.New()
	ctrl := online.New(online.Config{
		Rooms:         roomstore.NewRedis(rdb, cfg.Game.RoomTTLDuration()),
		Widget:        b,
		Sessions:      storage.NewSessionStore(kv, "online-session"),
		ParticipantID: online.ParticipantID(ctx, storage.NewSessionStore(kv, "identity")),
		Archive:       archive,
		CodeLength:    cfg.Game.RoomCodeLength,
	})
	defer ctrl.Close()

	model := tui.New(b, tui.Config{
		Title:  "chessboard  online",
		Status: ctrl.Status,
		Sync: func() error {
			return ctrl.Sync(ctx)
		},
		Leave: func() error {
			ctrl.Leave(ctx)
			return nil
		},
		New: func() error {
			if ctrl.Code() != "" {
				ctrl.Leave(ctx)
			}
			_, err := ctrl.Create(ctx)
			return err
		},
		Join: func(code string) error {
			if cur := ctrl.Code(); cur != "" && !strings.EqualFold(cur, code) {
				ctrl.Leave(ctx)
			}
			return ctrl.Join(ctx, code)
		},
	})
	p := tea.NewProgram(model, tea.WithAltScreen())
	ctrl.OnUpdate(func() { p.Send(tui.RefreshMsg{}) })

	go func() {
		if err := start(ctx, ctrl, join); err != nil {
			logging.Errorf("online: %v", err)
		}
		p.Send(tui.RefreshMsg{})
	}()

	_, err = p.Run()
	return err
}

func start(ctx context.Context, ctrl *online.Controller, join string) error {
	if join != "" {
		return ctrl.Join(ctx, join)
	}
	resumed, err := ctrl.Resume(ctx)
	if err != nil || resumed {
		return err
	}
	code, err := ctrl.Create(ctx)
	if err != nil {
		return err
	}
	logging.Infof("online: created room %s", code)
	return nil
}

func openArchive(dsn string) (*storage.Store, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := storage.Open(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return storage.NewStore(db), nil
}

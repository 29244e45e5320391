package handlers

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"chesslink/internal/host"
	"chesslink/internal/logging"
	"chesslink/internal/roomstore"
	"chesslink/internal/storage"
	"chesslink/internal/transport"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Hub       *host.Hub
	Rooms     roomstore.Store
	Archive   *storage.Store
	Frames    *transport.Server
	Commit    string
	BuildDate string
}

// NewHandler creates a new handler instance
func NewHandler(hub *host.Hub, rooms roomstore.Store, archive *storage.Store, frames *transport.Server) *Handler {
	return &Handler{Hub: hub, Rooms: rooms, Archive: archive, Frames: frames}
}

// HandleNew creates an offline game and returns the frame URLs of its two boards.
func (h *Handler) HandleNew(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	id := uuid.NewString()
	g := h.Hub.Get(r.Context(), id)
	logging.Debugf("new game %s from %s", id, ClientIP(r))

	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":     true,
		"id":     id,
		"frames": []string{frameURL(r, id, 0), frameURL(r, id, 1)},
		"state":  g.State(),
	})
}

// HandleFrame upgrades a board connection and attaches it to a slot of the game.
func (h *Handler) HandleFrame(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/frame/")
	if id == "" {
		http.Error(w, "missing game id", http.StatusBadRequest)
		return
	}
	slot, err := strconv.Atoi(r.URL.Query().Get("slot"))
	if err != nil {
		http.Error(w, "bad slot", http.StatusBadRequest)
		return
	}
	g, ok := h.Hub.Open(r.Context(), id)
	if !ok {
		http.Error(w, "unknown game", http.StatusNotFound)
		return
	}
	h.Frames.ServeFrame(g, slot, w, r)
}

// HandleState returns the host snapshot of a game.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/state/")
	g, ok := h.Hub.Lookup(id)
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown game"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "state": g.State()})
}

// HandleReset resets a game to the starting position
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteJSON(w, http.StatusMethodNotAllowed, map[string]any{"ok": false, "error": "method not allowed"})
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/reset/")
	g, ok := h.Hub.Lookup(id)
	if !ok {
		WriteJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown game"})
		return
	}
	g.Reset(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "state": g.State()})
}

// HandleRoom returns the shared document of an online room.
func (h *Handler) HandleRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/rooms/"))
	room, err := h.Rooms.Get(r.Context(), code)
	if errors.Is(err, roomstore.ErrNotFound) {
		WriteJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "Game not found"})
		return
	}
	if err != nil {
		logging.Errorf("room %s: %v", code, err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "room store unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "room": room})
}

// HandleArchivedGame returns an archived game and its moves. The id is an
// archive id or the code of an online room.
func (h *Handler) HandleArchivedGame(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/games/")
	if id == "" {
		WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing game id"})
		return
	}
	archiveID, err := uuid.Parse(id)
	if err != nil {
		archiveID = storage.ArchiveID(strings.ToUpper(id))
	}
	g, err := h.Archive.LoadGame(r.Context(), archiveID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		WriteJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error": "game not archived"})
		return
	}
	if err != nil {
		logging.Errorf("archived game %s: %v", id, err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "archive unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "game": g.Game, "moves": g.Moves})
}

// HandleStats reports archive counters and the number of games in memory.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Archive.FetchStats(r.Context())
	if err != nil {
		logging.Errorf("stats: %v", err)
		WriteJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "archive unavailable"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"archive":  stats,
		"archived": h.Archive != nil,
		"hosted":   h.Hub.Len(),
	})
}

// HandleHealth reports liveness and the build.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "commit": h.Commit, "buildDate": h.BuildDate})
}

// Register installs every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/new", h.HandleNew)
	mux.HandleFunc("/frame/", h.HandleFrame)
	mux.HandleFunc("/state/", h.HandleState)
	mux.HandleFunc("/reset/", h.HandleReset)
	mux.HandleFunc("/rooms/", h.HandleRoom)
	mux.HandleFunc("/games/", h.HandleArchivedGame)
	mux.HandleFunc("/stats", h.HandleStats)
	mux.HandleFunc("/healthz", h.HandleHealth)
}

func frameURL(r *http.Request, id string, slot int) string {
	scheme := "ws"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/frame/%s?slot=%d", scheme, r.Host, id, slot)
}

// ClientIP extracts the client IP from the request
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

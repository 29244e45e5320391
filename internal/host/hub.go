package host

import (
	"context"
	"sync"
	"time"

	"chesslink/internal/game"
	"chesslink/internal/logging"
	"chesslink/internal/storage"
)

const cleanupInterval = 5 * time.Minute

// Hub keeps the hosts of every offline game served by this process.
type Hub struct {
	mu      sync.Mutex
	hosts   map[string]*Host
	origin  string
	kv      storage.KV
	archive *storage.Store
	idle    time.Duration
}

// NewHub creates an empty hub. Hosts persist their sessions in kv under
// "offline:<id>" and are evicted after idle without children.
func NewHub(origin string, kv storage.KV, archive *storage.Store, idle time.Duration) *Hub {
	return &Hub{
		hosts:   make(map[string]*Host),
		origin:  origin,
		kv:      kv,
		archive: archive,
		idle:    idle,
	}
}

// Get retrieves an existing host or creates a new one. The host is built
// outside the hub lock since New may hit the archive; a racing Get for the
// same id keeps whichever host was stored first.
func (h *Hub) Get(ctx context.Context, id string) *Host {
	if g, ok := h.Lookup(id); ok {
		return g
	}
	g := New(ctx, Config{
		ID:       id,
		Origin:   h.origin,
		Sessions: h.sessions(id),
		Archive:  h.archive,
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.hosts[id]; ok {
		return existing
	}
	h.hosts[id] = g
	return g
}

// Open returns the host for id, bringing an evicted game back from its saved
// session. An id with neither is unknown.
func (h *Hub) Open(ctx context.Context, id string) (*Host, bool) {
	if g, ok := h.Lookup(id); ok {
		return g, true
	}
	if !h.sessions(id).Load(ctx, &game.OfflineSession{}) {
		return nil, false
	}
	return h.Get(ctx, id), true
}

func (h *Hub) sessions(id string) *storage.SessionStore {
	return storage.NewSessionStore(h.kv, "offline:"+id)
}

// Lookup returns the host for id without creating one.
func (h *Hub) Lookup(id string) (*Host, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.hosts[id]
	return g, ok
}

// Len returns the number of live hosts.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hosts)
}

// Cleanup evicts hosts idle for longer than the timeout and returns how many
// were removed. The saved session stays in the store, so a later Open resumes.
func (h *Hub) Cleanup(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, g := range h.hosts {
		if g.idle(now, h.idle) {
			delete(h.hosts, id)
			removed++
		}
	}
	return removed
}

// Run evicts idle hosts periodically until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := h.Cleanup(now); n > 0 {
				logging.Debugf("hub: evicted %d idle games", n)
			}
		}
	}
}

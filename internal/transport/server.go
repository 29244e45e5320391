package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chesslink/internal/host"
	"chesslink/internal/logging"
	"chesslink/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// Host is the part of a sync host a frame connection talks to.
type Host interface {
	Attach(slot int, port host.Port) (string, error)
	Detach(childID string)
	Receive(ctx context.Context, env protocol.Envelope)
}

type frame struct {
	kind int
	data []byte
}

// peer is one websocket connection. Post never blocks; a peer that cannot
// keep up loses messages and is expected to request a sync.
type peer struct {
	conn   *websocket.Conn
	binary bool
	send   chan frame
	done   chan struct{}
	once   sync.Once
}

func newPeer(binary bool) *peer {
	return &peer{
		binary: binary,
		send:   make(chan frame, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (p *peer) Post(msg *protocol.Message) {
	kind, data, err := encode(msg, p.binary)
	if err != nil {
		logging.Errorf("transport: encode %s: %v", msg.Type, err)
		return
	}
	select {
	case <-p.done:
	case p.send <- frame{kind, data}:
	default:
		logging.Debugf("transport: send buffer full, dropping %s", msg.Type)
	}
}

// Close ends the connection; the host calls it when another connection
// takes over the slot.
func (p *peer) Close() {
	p.once.Do(func() { close(p.done) })
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("transport: writePump panic recovered: %v", r)
		}
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case f := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump hands every frame to fn until the connection fails.
func (p *peer) readPump(fn func(*protocol.Message)) {
	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("transport: readPump panic recovered: %v", r)
		}
		p.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debugf("transport: read error: %v", err)
			}
			return
		}
		msg, err := decode(kind, data)
		if err != nil {
			logging.Debugf("transport: dropping frame: %v", err)
			continue
		}
		fn(msg)
	}
}

// Server upgrades board frame connections for one configured origin.
type Server struct {
	origin   string
	upgrader websocket.Upgrader
}

// NewServer accepts websocket connections whose Origin header is origin.
func NewServer(origin string) *Server {
	s := &Server{origin: origin}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == s.origin
		},
	}
	return s
}

// ServeFrame attaches a websocket child context to slot of h and serves it
// until the connection closes. ?codec=binary switches replies to the
// binary codec.
func (s *Server) ServeFrame(h Host, slot int, w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Origin") != s.origin {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	p := newPeer(r.URL.Query().Get("codec") == "binary")
	id, err := h.Attach(slot, p)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, host.ErrInvalidSlot) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		h.Detach(id)
		p.Close()
		return
	}
	p.conn = conn
	logging.Debugf("transport: child %s connected to slot %d", id, slot)

	go p.writePump()
	p.readPump(func(msg *protocol.Message) {
		h.Receive(r.Context(), protocol.Envelope{Source: id, Origin: s.origin, Message: msg})
	})
	h.Detach(id)
	logging.Debugf("transport: child %s disconnected", id)
}

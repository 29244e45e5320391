package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chesslink/internal/protocol"
)

// Client is the child end of a frame connection.
type Client struct {
	peer   *peer
	origin string
}

// Dial connects to a frame endpoint, announcing origin. Every host message
// is passed to onMessage on the client's read goroutine, stamped with the
// connection's origin.
func Dial(ctx context.Context, url, origin string, binary bool, onMessage func(protocol.Envelope)) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	header.Set("Origin", origin)

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	p := newPeer(binary)
	p.conn = conn
	c := &Client{peer: p, origin: origin}

	go p.writePump()
	go p.readPump(func(msg *protocol.Message) {
		if onMessage != nil {
			onMessage(protocol.Envelope{Source: "host", Origin: origin, Message: msg})
		}
	})
	return c, nil
}

// Post queues a message for the host.
func (c *Client) Post(msg *protocol.Message) {
	c.peer.Post(msg)
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.peer.done
}

// Close shuts the connection down.
func (c *Client) Close() {
	c.peer.Close()
}

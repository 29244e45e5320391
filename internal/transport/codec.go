package transport

import (
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"chesslink/internal/protocol"
)

// encode returns the websocket frame type and body for msg.
func encode(msg *protocol.Message, binary bool) (int, []byte, error) {
	if binary {
		data, err := protocol.MarshalBinary(msg)
		return websocket.BinaryMessage, data, err
	}
	data, err := protocol.Encode(msg)
	return websocket.TextMessage, data, err
}

// decode accepts either frame type, whatever codec the peer asked for.
func decode(frameType int, data []byte) (*protocol.Message, error) {
	switch frameType {
	case websocket.BinaryMessage:
		return protocol.UnmarshalBinary(data)
	case websocket.TextMessage:
		return protocol.Decode(data)
	}
	return nil, fmt.Errorf("%w: frame type %d", protocol.ErrMalformed, frameType)
}

// OriginOf returns the http origin that serves a ws:// or wss:// URL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	scheme := "http"
	if u.Scheme == "wss" || u.Scheme == "https" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

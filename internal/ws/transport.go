package ws

import (
	"context"

	"github.com/coder/websocket"
)

// wsTransport adapts a websocket connection to [Transport].
type wsTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps an accepted websocket connection.
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Send(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}

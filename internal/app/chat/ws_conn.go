package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatty/internal/app/protocol"
)

const (
	// frequency at which the server sends a Ping message to keep proxies from idling the link out.
	pingPeriod = 54 * time.Second
)

// wsConn carries one protocol frame per WebSocket text message.
type wsConn struct {
	conn *websocket.Conn

	closeOnce sync.Once
	done      chan struct{}
}

// NewWebSocketConn adapts an upgraded WebSocket connection to Conn and starts its keepalive pings.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	conn.SetReadLimit(protocol.MaxFrameSize)

	c := &wsConn{
		conn: conn,
		done: make(chan struct{}),
	}
	go c.keepalive()

	return c
}

func (c *wsConn) keepalive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) ReadFrame() (string, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return "", err
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return string(data), nil
		}
	}
}

func (c *wsConn) WriteFrame(text string) error {
	if len(text) > protocol.MaxFrameSize {
		return protocol.ErrFrameTooLarge
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}

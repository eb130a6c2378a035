package chat

import (
	"bufio"
	"net"
	"time"

	"chatty/internal/app/protocol"
)

// Conn is one client transport carrying protocol frames.
// Reads happen on the session goroutine only; writes are serialised by the session.
type Conn interface {
	// ReadFrame blocks until the next frame arrives or the read deadline passes.
	ReadFrame() (string, error)

	// WriteFrame sends one frame.
	WriteFrame(text string) error

	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error

	// RemoteAddr returns the peer address for logging.
	RemoteAddr() string

	Close() error
}

// streamConn frames a byte stream such as a TCP connection.
type streamConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewStreamConn wraps a byte-stream connection with the length-prefixed framing.
func NewStreamConn(conn net.Conn) Conn {
	return &streamConn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

func (c *streamConn) ReadFrame() (string, error) {
	return protocol.ReadFrame(c.reader)
}

func (c *streamConn) WriteFrame(text string) error {
	return protocol.WriteFrame(c.conn, text)
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

func (c *streamConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

func (c *streamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *streamConn) Close() error {
	return c.conn.Close()
}

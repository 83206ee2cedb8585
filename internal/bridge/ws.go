package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/midiview/midiview/internal/protocol"
)

// Conn adapts a websocket connection to the Channel interface. Writes
// are serialized; gorilla permits only one concurrent writer.
type Conn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	closeMu sync.Mutex
	closed  bool
}

// NewConn wraps an upgraded websocket connection. readLimit bounds the
// size of a single inbound message; zero leaves the limit unset.
func NewConn(conn *websocket.Conn, readLimit int64) *Conn {
	if readLimit > 0 {
		conn.SetReadLimit(readLimit)
	}
	return &Conn{conn: conn}
}

// Dial connects to a host bridge endpoint from the sandbox side.
func Dial(ctx context.Context, url string, readLimit int64) (*Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, readLimit), nil
}

func (c *Conn) Send(msg protocol.Message) error {
	data, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return c.mapErr(err)
	}
	return nil
}

func (c *Conn) Receive() (protocol.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, c.mapErr(err)
	}
	return protocol.Unmarshal(data)
}

func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}

func (c *Conn) mapErr(err error) error {
	c.closeMu.Lock()
	closed := c.closed
	c.closeMu.Unlock()
	if closed {
		return ErrClosed
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return ErrClosed
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrClosed
	}
	return err
}

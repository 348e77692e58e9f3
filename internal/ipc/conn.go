package ipc

import (
	"bufio"
	"fmt"
	"net"
	"sync"
)

// Conn wraps a worker's local-socket connection. Reads happen on a single
// goroutine (the serve loop); writes may come concurrently from a task
// result and a heartbeat ticker, so they are serialized by writeMu.
type Conn struct {
	raw     net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

// NewConn wraps an established connection for framed message exchange.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw, reader: bufio.NewReader(raw)}
}

// Send writes a message, serialized against other concurrent senders.
func (c *Conn) Send(msg Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := WriteFrame(c.raw, &msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Tag, err)
	}
	return nil
}

// Recv reads the next message. Must only be called from the single reader
// goroutine; the protocol guarantees strict per-connection read ordering.
func (c *Conn) Recv() (Message, error) {
	var msg Message
	if err := ReadFrame(c.reader, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// LocalAddr and RemoteAddr expose the underlying socket addressing, useful
// for logging which worker a connection belongs to.
func (c *Conn) LocalAddr() net.Addr  { return c.raw.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr { return c.raw.RemoteAddr() }

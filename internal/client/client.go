// Package client is the peer side of the relay: it tags outgoing lines with
// the sender's name and decides which relayed frames were its own. The relay
// itself never looks inside a frame.
package client

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"
)

const MaxFrame = 1024

type Message struct {
	Text     string
	SentByMe bool
}

type Client struct {
	name string
	conn net.Conn

	closeOnce sync.Once
	closeErr  error
}

func Dial(ctx context.Context, addr, name string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn, name), nil
}

func New(conn net.Conn, name string) *Client {
	return &Client{name: name, conn: conn}
}

func (c *Client) Name() string { return c.name }

func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// Format 生成带昵称前缀的消息
func (c *Client) Format(text string) string { return c.name + ": " + text }

// Send writes one chat line as a single frame.
func (c *Client) Send(text string) error {
	_, err := c.conn.Write([]byte(c.Format(text)))
	return err
}

// IsMine reports whether a relayed frame was written by this client.
func (c *Client) IsMine(frame string) bool {
	return strings.HasPrefix(frame, c.name+": ") || frame == c.farewell()
}

// Receive calls fn for every frame until the connection ends. A clean close
// by the relay returns nil.
func (c *Client) Receive(fn func(Message)) error {
	buf := make([]byte, MaxFrame)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			fn(Message{Text: text, SentByMe: c.IsMine(text)})
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

func (c *Client) farewell() string { return c.name + " Disconnected!" }

// Close tells the other peers this client is leaving, then closes.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_, _ = c.conn.Write([]byte(c.farewell()))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

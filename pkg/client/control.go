// Package client implements the game hall terminal client: a line connection
// to the server and coloured display of what the server sends.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/NicolasHaas/gohall/pkg/protocol"
)

// LineHandler is a callback for each line received from the server.
type LineHandler func(line string)

// LineClient manages the TCP connection to the game hall.
type LineClient struct {
	conn    net.Conn
	mu      sync.Mutex
	handler LineHandler
	done    chan struct{}
}

// Dial connects to the game hall at addr.
func Dial(ctx context.Context, addr string) (*LineClient, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return &LineClient{
		conn: conn,
		done: make(chan struct{}),
	}, nil
}

// SetLineHandler sets the callback for incoming lines.
func (c *LineClient) SetLineHandler(handler LineHandler) {
	c.handler = handler
}

// Send writes one line to the server.
func (c *LineClient) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return protocol.WriteLine(c.conn, line)
}

// StartReceiving starts a goroutine that reads lines from the server and
// hands them to the line handler until the connection ends.
func (c *LineClient) StartReceiving() {
	go func() {
		defer close(c.done)
		r := bufio.NewReader(c.conn)
		for {
			line, err := r.ReadString('\n')
			if line != "" && c.handler != nil {
				c.handler(trimEOL(line))
			}
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
					slog.Debug("connection closed")
					return
				}
				slog.Error("read error", "err", err)
				return
			}
		}
	}()
}

// Pump sends every line read from r until r is exhausted or the connection
// is lost.
func (c *LineClient) Pump(r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := c.Send(sc.Text()); err != nil {
			return err
		}
		select {
		case <-c.done:
			return nil
		default:
		}
	}
	return sc.Err()
}

// Close closes the connection.
func (c *LineClient) Close() error {
	return c.conn.Close()
}

// Done returns a channel that's closed when the connection is lost.
func (c *LineClient) Done() <-chan struct{} {
	return c.done
}

func trimEOL(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

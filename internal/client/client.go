// Package client sends files to a running server and stores what comes back.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/andresmejia3/facedetector/internal/protocol"
	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/types"
)

// ServerError is a non-success confirmation sent by the server.
type ServerError struct {
	File    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server rejected %s: %s", e.File, e.Message)
}

// Result is one processed file saved locally.
type Result struct {
	Name string
	Path string
	Size int
}

// Client talks to one server address.
type Client struct {
	Addr      string
	Timeout   time.Duration // per dial and per frame; 0 disables
	Storage   *storage.Storage
	Progress  io.Writer // receives a copy of every uploaded byte, optional
	MaxResult uint64    // largest result frame accepted; 0 means the default payload limit
}

// Send uploads transfers in a single session. Each transfer is written and
// its response read before the next one goes out, matching the server's
// one-at-a-time handling. Results stored before a failure are returned
// alongside the error.
func (c *Client) Send(ctx context.Context, transfers []types.Transfer) ([]Result, error) {
	if len(transfers) == 0 {
		return nil, fmt.Errorf("nothing to send")
	}
	for _, t := range transfers {
		if err := protocol.ValidateName(t.Name); err != nil {
			return nil, err
		}
	}

	d := net.Dialer{Timeout: c.Timeout}
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.Addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var w io.Writer = conn
	if c.Progress != nil {
		w = io.MultiWriter(conn, c.Progress)
	}

	limit := c.MaxResult
	if limit == 0 {
		limit = protocol.DefaultMaxPayloadLength
	}

	c.arm(conn)
	if err := protocol.WriteCount(w, uint32(len(transfers))); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(transfers))
	for _, t := range transfers {
		c.arm(conn)
		if err := protocol.WriteTransfer(w, t); err != nil {
			return results, err
		}

		c.arm(conn)
		resp, err := protocol.ReadResponse(conn, limit)
		if err != nil {
			return results, err
		}
		if !resp.OK() {
			return results, &ServerError{File: t.Name, Message: resp.Confirmation}
		}

		path, err := c.Storage.SaveProcessed(t.Name, resp.Payload)
		if err != nil {
			return results, err
		}
		results = append(results, Result{Name: t.Name, Path: path, Size: len(resp.Payload)})
	}
	return results, nil
}

func (c *Client) arm(conn net.Conn) {
	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}
}

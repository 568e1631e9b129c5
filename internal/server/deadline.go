package server

import (
	"net"
	"time"
)

// writeChunk caps a single Write so the write deadline measures progress
// rather than the size of the result.
const writeChunk = 64 * 1024

// idleConn re-arms the connection deadlines before every Read and Write, so
// a peer is only cut off after a full timeout without any progress. A slow
// but steady upload of a large payload is never interrupted.
type idleConn struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c idleConn) Read(p []byte) (int, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return c.conn.Read(p)
}

func (c idleConn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		end := min(written+writeChunk, len(p))
		if c.writeTimeout > 0 {
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		n, err := c.conn.Write(p[written:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

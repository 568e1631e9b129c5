package server

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"
	"time"
)

func TestIdleConn_WritesInChunks(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	payload := bytes.Repeat([]byte{0xAB}, 3*writeChunk+5)
	got := make(chan []byte, 1)
	go func() {
		data, _ := io.ReadAll(client)
		got <- data
	}()

	c := idleConn{conn: server, writeTimeout: time.Second}
	n, err := c.Write(payload)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(payload) {
		t.Errorf("Wrote %d bytes, want %d", n, len(payload))
	}
	server.Close()

	if data := <-got; !bytes.Equal(data, payload) {
		t.Errorf("Peer received %d bytes, want %d", len(data), len(payload))
	}
}

func TestIdleConn_ReadTimesOutWithoutProgress(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c := idleConn{conn: server, readTimeout: 50 * time.Millisecond}

	// Each read gets a fresh window, so spaced writes still arrive
	for i := 0; i < 3; i++ {
		go func() {
			time.Sleep(30 * time.Millisecond)
			client.Write([]byte{byte(i)})
		}()
		buf := make([]byte, 1)
		if _, err := c.Read(buf); err != nil {
			t.Fatalf("Read %d failed: %v", i, err)
		}
	}

	_, err := c.Read(make([]byte, 1))
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("Expected a timeout once the peer goes quiet, got %v", err)
	}
}

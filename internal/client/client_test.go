package client

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/andresmejia3/facedetector/internal/protocol"
	"github.com/andresmejia3/facedetector/internal/storage"
	"github.com/andresmejia3/facedetector/internal/types"
)

// fakeServer answers every transfer with respond(transfer) until the peer
// has sent everything it announced.
func fakeServer(t *testing.T, respond func(types.Transfer) protocol.Response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				n, err := protocol.ReadCount(conn)
				if err != nil {
					return
				}
				for i := uint32(0); i < n; i++ {
					tr, err := protocol.ReadTransfer(conn, protocol.DefaultLimits())
					if err != nil {
						return
					}
					resp := respond(tr)
					if err := protocol.WriteResponse(conn, resp); err != nil || !resp.OK() {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func newStorage(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.New(t.TempDir(), storage.NamespaceSession)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSend_StoresResults(t *testing.T) {
	addr := fakeServer(t, func(tr types.Transfer) protocol.Response {
		return protocol.Response{Confirmation: protocol.Processed, Payload: append([]byte("done:"), tr.Payload...)}
	})

	var progress bytes.Buffer
	c := &Client{Addr: addr, Timeout: 5 * time.Second, Storage: newStorage(t), Progress: &progress}

	transfers := []types.Transfer{
		{Name: "a.jpg", Payload: []byte("AAAA")},
		{Name: "b.jpg", Payload: []byte("BB")},
	}
	results, err := c.Send(context.Background(), transfers)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	for i, res := range results {
		data, err := os.ReadFile(res.Path)
		if err != nil {
			t.Fatalf("result %s not stored: %v", res.Name, err)
		}
		want := append([]byte("done:"), transfers[i].Payload...)
		if !bytes.Equal(data, want) {
			t.Errorf("%s: stored %q, want %q", res.Name, data, want)
		}
		if res.Path != c.Storage.ProcessedPath(res.Name) {
			t.Errorf("%s stored at %s, want the processed area", res.Name, res.Path)
		}
	}

	// count + 2 × (name len + name + size + payload)
	wantBytes := 4 + (4 + 5 + 8 + 4) + (4 + 5 + 8 + 2)
	if progress.Len() != wantBytes {
		t.Errorf("Progress saw %d bytes, want %d", progress.Len(), wantBytes)
	}
}

func TestSend_ServerError(t *testing.T) {
	addr := fakeServer(t, func(tr types.Transfer) protocol.Response {
		if tr.Name == "bad.jpg" {
			return protocol.Response{Confirmation: "ERRO: disk full"}
		}
		return protocol.Response{Confirmation: protocol.Processed, Payload: []byte("ok")}
	})

	c := &Client{Addr: addr, Timeout: 5 * time.Second, Storage: newStorage(t)}
	results, err := c.Send(context.Background(), []types.Transfer{
		{Name: "good.jpg", Payload: []byte("1")},
		{Name: "bad.jpg", Payload: []byte("2")},
	})

	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("Expected ServerError, got %v", err)
	}
	if se.File != "bad.jpg" || se.Message != "ERRO: disk full" {
		t.Errorf("Unexpected ServerError: %+v", se)
	}
	if len(results) != 1 || results[0].Name != "good.jpg" {
		t.Errorf("Expected the first result to survive, got %+v", results)
	}
}

func TestSend_RejectsBadInput(t *testing.T) {
	c := &Client{Addr: "127.0.0.1:1", Storage: newStorage(t)}

	if _, err := c.Send(context.Background(), nil); err == nil {
		t.Error("Expected an error for an empty batch")
	}

	_, err := c.Send(context.Background(), []types.Transfer{{Name: "../escape.jpg", Payload: []byte("x")}})
	var pe *protocol.ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("Expected ProtocolError for a path-like name, got %v", err)
	}
}

func TestSend_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := &Client{Addr: addr, Timeout: time.Second, Storage: newStorage(t)}
	if _, err := c.Send(context.Background(), []types.Transfer{{Name: "a.jpg", Payload: []byte("x")}}); err == nil {
		t.Error("Expected a dial error")
	}
}

package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/andresmejia3/facedetector/internal/types"
)

func TestRequestRoundTrip(t *testing.T) {
	req := Request{Transfers: []types.Transfer{
		{Name: "a.jpg", Payload: []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}},
		{Name: "b.png", Payload: bytes.Repeat([]byte{0x42}, 10000)},
	}}

	var buf bytes.Buffer
	if err := WriteRequest(&buf, req); err != nil {
		t.Fatalf("WriteRequest failed: %v", err)
	}
	encoded := append([]byte(nil), buf.Bytes()...)

	got, err := ReadRequest(bytes.NewReader(encoded), DefaultLimits())
	if err != nil {
		t.Fatalf("ReadRequest failed: %v", err)
	}
	if len(got.Transfers) != len(req.Transfers) {
		t.Fatalf("Expected %d transfers, got %d", len(req.Transfers), len(got.Transfers))
	}
	for i := range req.Transfers {
		if got.Transfers[i].Name != req.Transfers[i].Name {
			t.Errorf("Transfer %d: name %q, want %q", i, got.Transfers[i].Name, req.Transfers[i].Name)
		}
		if !bytes.Equal(got.Transfers[i].Payload, req.Transfers[i].Payload) {
			t.Errorf("Transfer %d: payload mismatch", i)
		}
	}

	// encode(decode(bytes)) must reproduce the original stream byte for byte
	var again bytes.Buffer
	if err := WriteRequest(&again, got); err != nil {
		t.Fatalf("re-encode failed: %v", err)
	}
	if !bytes.Equal(again.Bytes(), encoded) {
		t.Error("Re-encoded request differs from the original bytes")
	}
}

func TestRequestLayout(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRequest(&buf, Request{Transfers: []types.Transfer{{Name: "x", Payload: []byte{7, 8}}}}); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0, 0, 0, 1, // count
		0, 0, 0, 1, 'x', // name
		0, 0, 0, 0, 0, 0, 0, 2, 7, 8, // payload
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("Layout = %v, want %v", buf.Bytes(), want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		size int // expected encoded size
	}{
		{
			name: "Success carries the result frame",
			resp: Response{Confirmation: Processed, Payload: []byte{1, 2, 3}},
			size: 4 + len(Processed) + 8 + 3,
		},
		{
			name: "Error stops after the confirmation",
			resp: Response{Confirmation: ErrorConfirmation(errors.New("disk full"))},
			size: 4 + len("ERRO: disk full"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteResponse(&buf, tt.resp); err != nil {
				t.Fatalf("WriteResponse failed: %v", err)
			}
			if buf.Len() != tt.size {
				t.Errorf("Encoded %d bytes, want %d", buf.Len(), tt.size)
			}
			encoded := append([]byte(nil), buf.Bytes()...)

			got, err := ReadResponse(&buf, 0)
			if err != nil {
				t.Fatalf("ReadResponse failed: %v", err)
			}
			if got.Confirmation != tt.resp.Confirmation || !bytes.Equal(got.Payload, tt.resp.Payload) {
				t.Errorf("Got %+v, want %+v", got, tt.resp)
			}

			var again bytes.Buffer
			WriteResponse(&again, got)
			if !bytes.Equal(again.Bytes(), encoded) {
				t.Error("Re-encoded response differs from the original bytes")
			}
		})
	}
}

func TestReadTransfer_Truncated(t *testing.T) {
	// Declared 1000 bytes, only 500 arrive before EOF
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(5))
	buf.WriteString("a.jpg")
	binary.Write(&buf, binary.BigEndian, uint64(1000))
	buf.Write(make([]byte, 500))

	_, err := ReadTransfer(&buf, DefaultLimits())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Expected wrapped io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadCount_ClosedBeforeHeader(t *testing.T) {
	_, err := ReadCount(bytes.NewReader([]byte{0, 0}))
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
}

func TestReadMalformed(t *testing.T) {
	frame := func(name string, size uint64, payload int) []byte {
		var b bytes.Buffer
		binary.Write(&b, binary.BigEndian, uint32(len(name)))
		b.WriteString(name)
		binary.Write(&b, binary.BigEndian, size)
		b.Write(make([]byte, payload))
		return b.Bytes()
	}

	tests := []struct {
		name  string
		input []byte
		lim   Limits
	}{
		{"Zero-length name", frame("", 4, 4), DefaultLimits()},
		{"Zero-length payload", frame("a.jpg", 0, 0), DefaultLimits()},
		{"Parent directory name", frame("..", 4, 4), DefaultLimits()},
		{"Path separator in name", frame("../../etc/passwd", 4, 4), DefaultLimits()},
		{"Payload over limit", frame("a.jpg", 4096, 0), Limits{MaxNameLength: 16, MaxPayloadLength: 1024}},
		{"Name over limit", frame("very-long-name.jpg", 4, 4), Limits{MaxNameLength: 8, MaxPayloadLength: 1024}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTransfer(bytes.NewReader(tt.input), tt.lim)
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Errorf("Expected ProtocolError, got %v", err)
			}
		})
	}

	if _, err := ReadCount(bytes.NewReader([]byte{0, 0, 0, 0})); err == nil {
		t.Error("Expected zero transfer count to be rejected")
	}
}

func TestRead_UnreadableLength(t *testing.T) {
	var transfer bytes.Buffer
	binary.Write(&transfer, binary.BigEndian, uint32(5))
	transfer.WriteString("a.jpg")
	binary.Write(&transfer, binary.BigEndian, uint64(1)<<63)
	transfer.Write(make([]byte, 8))

	var result bytes.Buffer
	binary.Write(&result, binary.BigEndian, uint64(math.MaxUint64))
	result.Write(make([]byte, 8))

	tests := []struct {
		name string
		read func() error
	}{
		{"Payload with no payload limit", func() error {
			_, err := ReadTransfer(&transfer, Limits{MaxNameLength: 4096})
			return err
		}},
		{"Result with no result limit", func() error {
			_, err := ReadResult(&result, 0)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.read()
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("Expected ProtocolError, got %v", err)
			}
		})
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, io.ErrClosedPipe }

func TestWrite_TransportError(t *testing.T) {
	err := WriteConfirmation(failingWriter{}, Processed)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Expected wrapped io.ErrClosedPipe, got %v", err)
	}
}

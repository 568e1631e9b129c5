// Package protocol implements the length-prefixed wire format spoken between
// peers and the detection server. All integers are big-endian.
//
//	request:  u32 count, count × (u32 nameLen, name, u64 payloadLen, payload)
//	response: u32 confLen, confirmation [, u64 resultLen, result]
//
// The result frame follows only when the confirmation is Processed.
package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/andresmejia3/facedetector/internal/types"
)

// Processed is the confirmation sent when a transfer completed, including
// transfers whose detection degraded to the error placeholder.
const Processed = "PROCESSADO"

const errorPrefix = "ERRO: "

const (
	DefaultMaxNameLength    = 4096
	DefaultMaxPayloadLength = 64 * 1024 * 1024
	maxConfirmationLength   = 64 * 1024
)

// Limits bounds the variable-length fields a decoder will accept.
type Limits struct {
	MaxNameLength    uint32
	MaxPayloadLength uint64
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxNameLength: DefaultMaxNameLength, MaxPayloadLength: DefaultMaxPayloadLength}
}

// Request is everything a peer sends in one session.
type Request struct {
	Transfers []types.Transfer
}

// Response is what the server sends back for one transfer.
type Response struct {
	Confirmation string
	Payload      []byte
}

// OK reports whether the confirmation is the success sentinel.
func (r Response) OK() bool { return r.Confirmation == Processed }

// ErrorConfirmation builds the confirmation text for a failed session.
func ErrorConfirmation(err error) string {
	return errorPrefix + err.Error()
}

// --- fixed-width fields ---

func writeUint32(w io.Writer, v uint32, op string) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return transportErr(op, err)
	}
	return nil
}

func writeUint64(w io.Writer, v uint64, op string) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return transportErr(op, err)
	}
	return nil
}

func writeBytes(w io.Writer, b []byte, op string) error {
	if _, err := w.Write(b); err != nil {
		return transportErr(op, err)
	}
	return nil
}

func readUint32(r io.Reader, op string) (uint32, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, transportErr(op, err)
	}
	return binary.BigEndian.Uint32(header[:]), nil
}

func readUint64(r io.Reader, op string) (uint64, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, transportErr(op, err)
	}
	return binary.BigEndian.Uint64(header[:]), nil
}

// readBody accumulates exactly size bytes. A stream that ends first is a
// TransportError, never a short result. Lengths past math.MaxInt64 cannot be
// read at all and are rejected regardless of the configured limits.
func readBody(r io.Reader, size uint64, field, op string) ([]byte, error) {
	if size > math.MaxInt64 {
		return nil, protocolErr(field, "%d is not a readable length", size)
	}
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, int64(size))
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, transportErr(op, fmt.Errorf("received %d of %d bytes: %w", n, size, err))
	}
	return buf.Bytes(), nil
}

// --- request side ---

// WriteCount encodes the transfer count that opens a session.
func WriteCount(w io.Writer, n uint32) error {
	return writeUint32(w, n, "write transfer count")
}

// ReadCount decodes the transfer count. Zero is rejected.
func ReadCount(r io.Reader) (uint32, error) {
	n, err := readUint32(r, "read transfer count")
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, protocolErr("transfer_count", "must be at least 1")
	}
	return n, nil
}

// WriteTransfer encodes one name + payload pair.
func WriteTransfer(w io.Writer, t types.Transfer) error {
	if err := writeUint32(w, uint32(len(t.Name)), "write name length"); err != nil {
		return err
	}
	if err := writeBytes(w, []byte(t.Name), "write name"); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(len(t.Payload)), "write payload length"); err != nil {
		return err
	}
	return writeBytes(w, t.Payload, "write payload")
}

// ReadTransfer decodes one name + payload pair, enforcing lim.
func ReadTransfer(r io.Reader, lim Limits) (types.Transfer, error) {
	nameLen, err := readUint32(r, "read name length")
	if err != nil {
		return types.Transfer{}, err
	}
	if nameLen == 0 {
		return types.Transfer{}, protocolErr("name_length", "must not be zero")
	}
	if lim.MaxNameLength > 0 && nameLen > lim.MaxNameLength {
		return types.Transfer{}, protocolErr("name_length", "%d exceeds limit %d", nameLen, lim.MaxNameLength)
	}
	name, err := readBody(r, uint64(nameLen), "name_length", "read name")
	if err != nil {
		return types.Transfer{}, err
	}
	if err := ValidateName(string(name)); err != nil {
		return types.Transfer{}, err
	}

	size, err := readUint64(r, "read payload length")
	if err != nil {
		return types.Transfer{}, err
	}
	if size == 0 {
		return types.Transfer{}, protocolErr("payload_length", "must not be zero")
	}
	if lim.MaxPayloadLength > 0 && size > lim.MaxPayloadLength {
		return types.Transfer{}, protocolErr("payload_length", "%d exceeds limit %d", size, lim.MaxPayloadLength)
	}
	payload, err := readBody(r, size, "payload_length", "read payload")
	if err != nil {
		return types.Transfer{}, err
	}
	return types.Transfer{Name: string(name), Payload: payload}, nil
}

// ValidateName rejects names that cannot be used as a single path element.
func ValidateName(name string) error {
	switch {
	case name == "":
		return protocolErr("name", "must not be empty")
	case name == "." || name == "..":
		return protocolErr("name", "%q is not a file name", name)
	case strings.ContainsAny(name, "/\\\x00"):
		return protocolErr("name", "%q contains a path separator", name)
	}
	return nil
}

// WriteRequest encodes a complete session request.
func WriteRequest(w io.Writer, req Request) error {
	if err := WriteCount(w, uint32(len(req.Transfers))); err != nil {
		return err
	}
	for _, t := range req.Transfers {
		if err := WriteTransfer(w, t); err != nil {
			return err
		}
	}
	return nil
}

// ReadRequest decodes a complete session request.
func ReadRequest(r io.Reader, lim Limits) (Request, error) {
	n, err := ReadCount(r)
	if err != nil {
		return Request{}, err
	}
	req := Request{Transfers: make([]types.Transfer, 0, min(n, 16))}
	for i := uint32(0); i < n; i++ {
		t, err := ReadTransfer(r, lim)
		if err != nil {
			return Request{}, err
		}
		req.Transfers = append(req.Transfers, t)
	}
	return req, nil
}

// --- response side ---

// WriteConfirmation encodes the confirmation text frame.
func WriteConfirmation(w io.Writer, msg string) error {
	if err := writeUint32(w, uint32(len(msg)), "write confirmation length"); err != nil {
		return err
	}
	return writeBytes(w, []byte(msg), "write confirmation")
}

// ReadConfirmation decodes the confirmation text frame.
func ReadConfirmation(r io.Reader) (string, error) {
	n, err := readUint32(r, "read confirmation length")
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", protocolErr("confirmation_length", "must not be zero")
	}
	if n > maxConfirmationLength {
		return "", protocolErr("confirmation_length", "%d exceeds limit %d", n, maxConfirmationLength)
	}
	msg, err := readBody(r, uint64(n), "confirmation_length", "read confirmation")
	if err != nil {
		return "", err
	}
	return string(msg), nil
}

// WriteResult encodes the processed payload frame.
func WriteResult(w io.Writer, payload []byte) error {
	if err := writeUint64(w, uint64(len(payload)), "write result length"); err != nil {
		return err
	}
	return writeBytes(w, payload, "write result")
}

// ReadResult decodes the processed payload frame. limit == 0 disables the check.
func ReadResult(r io.Reader, limit uint64) ([]byte, error) {
	n, err := readUint64(r, "read result length")
	if err != nil {
		return nil, err
	}
	if limit > 0 && n > limit {
		return nil, protocolErr("result_length", "%d exceeds limit %d", n, limit)
	}
	return readBody(r, n, "result_length", "read result")
}

// WriteResponse encodes a response; the result frame is written only on success.
func WriteResponse(w io.Writer, resp Response) error {
	if err := WriteConfirmation(w, resp.Confirmation); err != nil {
		return err
	}
	if !resp.OK() {
		return nil
	}
	return WriteResult(w, resp.Payload)
}

// ReadResponse decodes a response, reading the result frame only on success.
func ReadResponse(r io.Reader, limit uint64) (Response, error) {
	msg, err := ReadConfirmation(r)
	if err != nil {
		return Response{}, err
	}
	resp := Response{Confirmation: msg}
	if !resp.OK() {
		return resp, nil
	}
	resp.Payload, err = ReadResult(r, limit)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

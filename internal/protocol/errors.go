package protocol

import (
	"errors"
	"fmt"
	"net"
)

// TransportError reports a broken byte stream: truncated reads, resets, closed
// connections and expired deadlines.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline expiry.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// ProtocolError reports a frame that arrived intact but carries an invalid value.
type ProtocolError struct {
	Field  string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (%s): %s", e.Field, e.Reason)
}

func transportErr(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func protocolErr(field, format string, args ...any) error {
	return &ProtocolError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

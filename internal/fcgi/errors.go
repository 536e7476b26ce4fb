package fcgi

import (
	"errors"
	"fmt"
)

// Sentinel categories for errors.Is matching. The structured types below
// carry the per-failure context and unwrap to one of these.
var (
	// ErrConnection indicates the pool socket could not be reached or
	// written to. The common cause is a stopped pool or a wrong path.
	ErrConnection = errors.New("fastcgi connection error")

	// ErrTimeout indicates the pool did not answer within the
	// configured bound.
	ErrTimeout = errors.New("fastcgi timeout")

	// ErrProtocol indicates the pool answered with a malformed or
	// unexpected record stream.
	ErrProtocol = errors.New("fastcgi protocol error")
)

// ConnectionError wraps the OS-level error from a failed connect or write.
type ConnectionError struct {
	Op   string // "connect", "write" or "read"
	Path string // socket path
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("fastcgi %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// TimeoutError wraps a deadline expiry during the exchange.
type TimeoutError struct {
	Op      string
	Path    string
	Timeout string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fastcgi %s %s: no response within %s: %v", e.Op, e.Path, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() []error {
	return []error{ErrTimeout, e.Err}
}

// ProtocolError reports a record stream that violates the exchange
// contract: wrong protocol version, an FCGI_STDERR record, or a record
// type the client does not expect.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("fastcgi protocol violation: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocol
}

// Package fcgi implements the client side of the FastCGI record protocol,
// limited to what a single responder-role status request needs: framing,
// name-value parameter encoding, and a unix-socket transport.
package fcgi

import (
	"encoding/binary"
	"fmt"
)

// Protocol constants from the FastCGI specification.
const (
	// Version is the only FastCGI protocol version in existence.
	Version = 1

	// RoleResponder is the role used for status requests.
	RoleResponder = 1

	// headerLen is the fixed size of every record header.
	headerLen = 8

	// maxContentLen is the largest content a single record can carry.
	maxContentLen = 0xffff
)

// RecordType identifies the kind of a FastCGI record.
type RecordType uint8

// Record types defined by the FastCGI specification. Only BeginRequest,
// Params, Stdout and Stderr are used here; the rest exist so unexpected
// types decode to something printable.
const (
	TypeBeginRequest RecordType = 1
	TypeAbortRequest RecordType = 2
	TypeEndRequest   RecordType = 3
	TypeParams       RecordType = 4
	TypeStdin        RecordType = 5
	TypeStdout       RecordType = 6
	TypeStderr       RecordType = 7
	TypeData         RecordType = 8
)

// String returns the specification name of the record type.
func (t RecordType) String() string {
	switch t {
	case TypeBeginRequest:
		return "FCGI_BEGIN_REQUEST"
	case TypeAbortRequest:
		return "FCGI_ABORT_REQUEST"
	case TypeEndRequest:
		return "FCGI_END_REQUEST"
	case TypeParams:
		return "FCGI_PARAMS"
	case TypeStdin:
		return "FCGI_STDIN"
	case TypeStdout:
		return "FCGI_STDOUT"
	case TypeStderr:
		return "FCGI_STDERR"
	case TypeData:
		return "FCGI_DATA"
	default:
		return fmt.Sprintf("FCGI_UNKNOWN(%d)", uint8(t))
	}
}

// Record is one framed protocol unit. Records are built once and never
// mutated; Encode derives the header fields from the content.
type Record struct {
	Type      RecordType
	RequestID uint16
	Content   []byte
}

// paddingFor returns the number of zero bytes needed to align content of
// the given length to the next 8-byte boundary.
func paddingFor(contentLen int) int {
	return -contentLen & 7
}

// Encode serializes the record as header + content + alignment padding.
// The header is big-endian: version, type, requestId, contentLength,
// paddingLength, one reserved byte.
func (r Record) Encode() []byte {
	padding := paddingFor(len(r.Content))

	buf := make([]byte, headerLen+len(r.Content)+padding)
	buf[0] = Version
	buf[1] = uint8(r.Type)
	binary.BigEndian.PutUint16(buf[2:4], r.RequestID)
	binary.BigEndian.PutUint16(buf[4:6], uint16(len(r.Content)))
	buf[6] = uint8(padding)
	// buf[7] reserved, buf[len-padding:] already zero

	copy(buf[headerLen:], r.Content)
	return buf
}

// header is a decoded record header; content and padding follow on the wire.
type header struct {
	Version    uint8
	Type       RecordType
	RequestID  uint16
	ContentLen uint16
	PaddingLen uint8
}

// decodeHeader parses the 8-byte record header.
func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerLen {
		return header{}, &ProtocolError{Reason: fmt.Sprintf("short record header: %d bytes", len(buf))}
	}
	return header{
		Version:    buf[0],
		Type:       RecordType(buf[1]),
		RequestID:  binary.BigEndian.Uint16(buf[2:4]),
		ContentLen: binary.BigEndian.Uint16(buf[4:6]),
		PaddingLen: buf[6],
	}, nil
}

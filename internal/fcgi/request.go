package fcgi

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Param is a single CGI name-value pair. A slice of Params preserves the
// order in which pairs are sent, which a map would not.
type Param struct {
	Name  string
	Value string
}

// StatusParams returns the fixed parameter set for a PHP-FPM status query
// against the given status path.
func StatusParams(statusPath string) []Param {
	return []Param{
		{Name: "SCRIPT_NAME", Value: statusPath},
		{Name: "SCRIPT_FILENAME", Value: statusPath},
		{Name: "QUERY_STRING", Value: ""},
		{Name: "REQUEST_METHOD", Value: "GET"},
	}
}

// BuildBeginRequest constructs the begin-request record: 2-byte responder
// role, 1-byte flags (0, do not keep the connection open), 5 reserved bytes.
func BuildBeginRequest(requestID uint16) Record {
	content := make([]byte, 8)
	binary.BigEndian.PutUint16(content[0:2], RoleResponder)
	// content[2] flags = 0, content[3:8] reserved

	return Record{Type: TypeBeginRequest, RequestID: requestID, Content: content}
}

// BuildParams encodes the parameter set into one or more FCGI_PARAMS
// records followed by the mandatory zero-length terminator record that
// signals the end of the parameter stream.
func BuildParams(requestID uint16, params []Param) []Record {
	var buf bytes.Buffer
	for _, p := range params {
		writeLength(&buf, len(p.Name))
		writeLength(&buf, len(p.Value))
		buf.WriteString(p.Name)
		buf.WriteString(p.Value)
	}

	var records []Record
	content := buf.Bytes()
	for len(content) > 0 {
		n := len(content)
		if n > maxContentLen {
			// Keep full chunks 8-byte aligned so only the final
			// record needs padding.
			n = maxContentLen &^ 7
		}
		records = append(records, Record{Type: TypeParams, RequestID: requestID, Content: content[:n]})
		content = content[n:]
	}

	// Terminator: content length 0, padding 0.
	return append(records, Record{Type: TypeParams, RequestID: requestID})
}

// writeLength emits a name-value length prefix: a single byte for lengths
// up to 127, otherwise four big-endian bytes with the top bit of the first
// byte set.
func writeLength(buf *bytes.Buffer, n int) {
	if n <= 0x7f {
		buf.WriteByte(byte(n))
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	b[0] |= 0x80
	buf.Write(b[:])
}

// ParseParams decodes a name-value byte stream back into its parameter
// list. It is the inverse of the encoding performed by BuildParams.
func ParseParams(content []byte) ([]Param, error) {
	var params []Param
	for len(content) > 0 {
		nameLen, rest, err := readLength(content)
		if err != nil {
			return nil, err
		}
		valueLen, rest, err := readLength(rest)
		if err != nil {
			return nil, err
		}
		if len(rest) < nameLen+valueLen {
			return nil, &ProtocolError{Reason: fmt.Sprintf("name-value pair truncated: need %d bytes, have %d", nameLen+valueLen, len(rest))}
		}
		params = append(params, Param{
			Name:  string(rest[:nameLen]),
			Value: string(rest[nameLen : nameLen+valueLen]),
		})
		content = rest[nameLen+valueLen:]
	}
	return params, nil
}

// readLength consumes one length prefix from the front of the stream.
func readLength(content []byte) (int, []byte, error) {
	if len(content) == 0 {
		return 0, nil, &ProtocolError{Reason: "name-value stream truncated at length prefix"}
	}
	if content[0] <= 0x7f {
		return int(content[0]), content[1:], nil
	}
	if len(content) < 4 {
		return 0, nil, &ProtocolError{Reason: "name-value stream truncated inside long length prefix"}
	}
	n := binary.BigEndian.Uint32(content[:4]) &^ (1 << 31)
	return int(n), content[4:], nil
}

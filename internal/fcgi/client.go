package fcgi

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// Client is a single-request FastCGI client over a local stream socket.
// It owns the socket for exactly one exchange; Close must run on every
// exit path.
type Client struct {
	conn    net.Conn
	path    string
	timeout time.Duration
	logger  *zap.Logger
}

// DialTimeout opens a unix stream socket connection to path. The same
// timeout bounds the connect and every subsequent read.
func DialTimeout(path string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, &ConnectionError{Op: "connect", Path: path, Err: err}
	}

	logger.Debug("Connected to FastCGI socket",
		zap.String("path", path),
		zap.Duration("timeout", timeout))

	return &Client{
		conn:    conn,
		path:    path,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Close releases the socket. Safe to call more than once.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// Send writes the given records to the socket in order. A short or failed
// write is a ConnectionError.
func (c *Client) Send(records ...Record) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return &ConnectionError{Op: "write", Path: c.path, Err: err}
	}
	for _, rec := range records {
		if _, err := c.conn.Write(rec.Encode()); err != nil {
			return &ConnectionError{Op: "write", Path: c.path, Err: err}
		}
	}
	return nil
}

// ReadResponse reads the record stream until the pool signals end of
// output and returns the accumulated FCGI_STDOUT content.
//
// FCGI_STDOUT records append to the output; a zero-length FCGI_STDOUT
// terminates the stream. An FCGI_STDERR record means the pool reported an
// application-level error and aborts the exchange, as does any record
// type other than stdout/stderr or a version mismatch.
func (c *Client) ReadResponse() ([]byte, error) {
	var output bytes.Buffer
	headerBuf := make([]byte, headerLen)

	for {
		if err := c.readFull(headerBuf); err != nil {
			return nil, err
		}

		hdr, err := decodeHeader(headerBuf)
		if err != nil {
			return nil, err
		}
		if hdr.Version != Version {
			return nil, &ProtocolError{Reason: fmt.Sprintf("unsupported protocol version %d", hdr.Version)}
		}

		body := make([]byte, int(hdr.ContentLen)+int(hdr.PaddingLen))
		if err := c.readFull(body); err != nil {
			return nil, err
		}
		content := body[:hdr.ContentLen]

		switch hdr.Type {
		case TypeStdout:
			if hdr.ContentLen == 0 {
				c.logger.Debug("FastCGI output stream complete",
					zap.Int("bytes", output.Len()))
				return output.Bytes(), nil
			}
			output.Write(content)
		case TypeStderr:
			return nil, &ProtocolError{Reason: fmt.Sprintf("received an error packet: %q", content)}
		default:
			return nil, &ProtocolError{Reason: fmt.Sprintf("received unexpected packet type %s", hdr.Type)}
		}
	}
}

// readFull fills buf from the socket under the read deadline, classifying
// deadline expiry as a TimeoutError and anything else as a ConnectionError.
func (c *Client) readFull(buf []byte) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return &ConnectionError{Op: "read", Path: c.path, Err: err}
	}
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &TimeoutError{Op: "read", Path: c.path, Timeout: c.timeout.String(), Err: err}
		}
		return &ConnectionError{Op: "read", Path: c.path, Err: err}
	}
	return nil
}

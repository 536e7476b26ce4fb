package fcgi

import (
	"errors"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// serveOnce accepts one connection on a fresh unix socket and hands it to
// the handler on its own goroutine. Returns the socket path.
func serveOnce(t *testing.T, handler func(conn net.Conn)) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fpm.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn)
	}()

	return path
}

// drainRequest reads records off the connection until the zero-length
// params terminator arrives.
func drainRequest(t *testing.T, conn net.Conn) {
	t.Helper()

	headerBuf := make([]byte, headerLen)
	for {
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			t.Errorf("server read header: %v", err)
			return
		}
		hdr, err := decodeHeader(headerBuf)
		if err != nil {
			t.Errorf("server decode header: %v", err)
			return
		}
		body := make([]byte, int(hdr.ContentLen)+int(hdr.PaddingLen))
		if _, err := io.ReadFull(conn, body); err != nil {
			t.Errorf("server read body: %v", err)
			return
		}
		if hdr.Type == TypeParams && hdr.ContentLen == 0 {
			return
		}
	}
}

func sendStatusRequest(t *testing.T, client *Client) {
	t.Helper()

	records := append([]Record{BuildBeginRequest(1)}, BuildParams(1, StatusParams("/status"))...)
	if err := client.Send(records...); err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestClientExchange(t *testing.T) {
	payload := "X-Powered-By: PHP\r\nContent-type: text/plain\r\n\r\npool: www\nlisten queue: 0\n"

	path := serveOnce(t, func(conn net.Conn) {
		drainRequest(t, conn)

		// Split the body across two stdout records, then terminate.
		half := len(payload) / 2
		conn.Write(Record{Type: TypeStdout, RequestID: 1, Content: []byte(payload[:half])}.Encode())
		conn.Write(Record{Type: TypeStdout, RequestID: 1, Content: []byte(payload[half:])}.Encode())
		conn.Write(Record{Type: TypeStdout, RequestID: 1}.Encode())
	})

	client, err := DialTimeout(path, time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}
	defer client.Close()

	sendStatusRequest(t, client)

	got, err := client.ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if string(got) != payload {
		t.Errorf("response = %q, want %q", got, payload)
	}
}

func TestClientStderrRecord(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {
		drainRequest(t, conn)
		conn.Write(Record{Type: TypeStderr, RequestID: 1, Content: []byte("Primary script unknown")}.Encode())
	})

	client, err := DialTimeout(path, time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}
	defer client.Close()

	sendStatusRequest(t, client)

	if _, err := client.ReadResponse(); !errors.Is(err, ErrProtocol) {
		t.Errorf("error = %v, want protocol error", err)
	}
}

func TestClientUnexpectedRecordType(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {
		drainRequest(t, conn)
		conn.Write(Record{Type: TypeEndRequest, RequestID: 1, Content: make([]byte, 8)}.Encode())
	})

	client, err := DialTimeout(path, time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}
	defer client.Close()

	sendStatusRequest(t, client)

	if _, err := client.ReadResponse(); !errors.Is(err, ErrProtocol) {
		t.Errorf("error = %v, want protocol error", err)
	}
}

func TestClientVersionMismatch(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {
		drainRequest(t, conn)
		rec := Record{Type: TypeStdout, RequestID: 1}.Encode()
		rec[0] = 9
		conn.Write(rec)
	})

	client, err := DialTimeout(path, time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}
	defer client.Close()

	sendStatusRequest(t, client)

	if _, err := client.ReadResponse(); !errors.Is(err, ErrProtocol) {
		t.Errorf("error = %v, want protocol error", err)
	}
}

func TestClientReadTimeout(t *testing.T) {
	// The server accepts but never responds; the read deadline must fire.
	block := make(chan struct{})
	path := serveOnce(t, func(conn net.Conn) {
		drainRequest(t, conn)
		<-block
	})
	defer close(block)

	client, err := DialTimeout(path, 50*time.Millisecond, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}
	defer client.Close()

	sendStatusRequest(t, client)

	_, err = client.ReadResponse()
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want timeout error", err)
	}

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error is not a *TimeoutError: %v", err)
	}
	if timeoutErr.Op != "read" {
		t.Errorf("op = %q, want %q", timeoutErr.Op, "read")
	}
}

func TestClientDialFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.sock")

	_, err := DialTimeout(path, time.Second, zaptest.NewLogger(t))
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want connection error", err)
	}

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("error is not a *ConnectionError: %v", err)
	}
	if connErr.Path != path {
		t.Errorf("path = %q, want %q", connErr.Path, path)
	}
}

func TestClientTruncatedStream(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {
		drainRequest(t, conn)
		// Header promises content that never arrives.
		conn.Write([]byte{Version, uint8(TypeStdout), 0, 1, 0, 64, 0, 0})
	})

	client, err := DialTimeout(path, 50*time.Millisecond, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}
	defer client.Close()

	sendStatusRequest(t, client)

	if _, err := client.ReadResponse(); err == nil {
		t.Error("expected error for truncated record stream")
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	path := serveOnce(t, func(conn net.Conn) {})

	client, err := DialTimeout(path, time.Second, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("DialTimeout: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

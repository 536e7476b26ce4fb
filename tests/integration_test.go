package tests

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cboxdk/phpfpm-pool-check/internal/app"
	"github.com/cboxdk/phpfpm-pool-check/internal/check"
	"github.com/cboxdk/phpfpm-pool-check/internal/config"
	"github.com/cboxdk/phpfpm-pool-check/internal/fcgi"
	"go.uber.org/zap/zaptest"
)

const statusPayload = "X-Powered-By: PHP/8.2.7\r\n" +
	"Content-type: text/plain;charset=UTF-8\r\n" +
	"\r\n" +
	"pool:                 www\n" +
	"process manager:      dynamic\n" +
	"accepted conn:        4821\n" +
	"listen queue:         0\n" +
	"max listen queue:     2\n" +
	"idle processes:       7\n" +
	"active processes:     3\n" +
	"total processes:      10\n" +
	"max active processes: 6\n" +
	"max children reached: 0\n" +
	"slow requests:        0\n"

// startFakePool serves FastCGI status responses on a unix socket for the
// lifetime of the test, one exchange per connection like php-fpm with
// keep-alive off.
func startFakePool(t *testing.T, payload string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "www.sock")
	listener, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()

				headerBuf := make([]byte, 8)
				for {
					if _, err := io.ReadFull(conn, headerBuf); err != nil {
						return
					}
					recType := fcgi.RecordType(headerBuf[1])
					contentLen := binary.BigEndian.Uint16(headerBuf[4:6])
					paddingLen := headerBuf[6]
					if _, err := io.ReadFull(conn, make([]byte, int(contentLen)+int(paddingLen))); err != nil {
						return
					}
					if recType == fcgi.TypeParams && contentLen == 0 {
						break
					}
				}

				conn.Write(fcgi.Record{Type: fcgi.TypeStdout, RequestID: 1, Content: []byte(payload)}.Encode())
				conn.Write(fcgi.Record{Type: fcgi.TypeStdout, RequestID: 1}.Encode())
			}(conn)
		}
	}()

	return path
}

// TestCheckPipelineIntegration runs the full request/transport/parse/
// evaluate pipeline against a live unix socket.
func TestCheckPipelineIntegration(t *testing.T) {
	socketPath := startFakePool(t, statusPayload)

	checker, err := check.NewChecker(socketPath, "/status", time.Second, check.DefaultThresholds(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewChecker: %v", err)
	}

	snapshot, verdict := checker.Run(context.Background())
	if verdict.Severity != check.SeverityOK {
		t.Fatalf("severity = %v, want OK (message: %s)", verdict.Severity, verdict.Message)
	}
	if got := snapshot["pool"]; got != "www" {
		t.Errorf("pool name = %q, want www", got)
	}

	// Same checker, second exchange: the pool closes the socket after
	// every request, so each check dials fresh.
	_, verdict = checker.Run(context.Background())
	if verdict.Severity != check.SeverityOK {
		t.Errorf("second check severity = %v, want OK", verdict.Severity)
	}
}

// TestServeModeIntegration brings the whole serve mode up against a fake
// pool and scrapes the HTTP endpoints.
func TestServeModeIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	socketPath := startFakePool(t, statusPayload)

	cfg, err := config.LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	cfg.Pool.SocketPath = socketPath
	cfg.Server.BindAddress = "127.0.0.1:19253"
	cfg.Monitoring.PollInterval = time.Second

	manager, err := app.NewManager(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- manager.Run(ctx)
	}()

	baseURL := fmt.Sprintf("http://%s", cfg.Server.BindAddress)
	waitForServer(t, baseURL+cfg.Server.HealthPath)

	// The health endpoint reports 503 until the first poll lands.
	healthStatus := 0
	for deadline := time.Now().Add(3 * time.Second); time.Now().Before(deadline); {
		resp, err := http.Get(baseURL + cfg.Server.HealthPath)
		if err != nil {
			t.Fatalf("get health: %v", err)
		}
		resp.Body.Close()
		healthStatus = resp.StatusCode
		if healthStatus == http.StatusOK {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if healthStatus != http.StatusOK {
		t.Errorf("health status = %d, want 200", healthStatus)
	}

	resp, err := http.Get(baseURL + cfg.Server.MetricsPath)
	if err != nil {
		t.Fatalf("scrape metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", resp.StatusCode)
	}
	for _, want := range []string{
		"phpfpm_up 1",
		"phpfpm_listen_queue 0",
		"phpfpm_total_processes 10",
		"phpfpm_pool_utilization_percent 30",
		"phpfpm_check_severity 0",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v after cancel", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("manager did not shut down")
	}
}

// waitForServer polls the URL until the listener answers or the deadline
// passes.
func waitForServer(t *testing.T, url string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("server did not come up")
}

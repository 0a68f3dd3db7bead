package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/config"
	"github.com/qiuzhanghua/fs-proxy/internal/infrastructure/logging"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Sandbox.Root = t.TempDir()
	cfg.Audit.DSN = "memory://"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.ShutdownTimeout = 5 * time.Second
	cfg.Logging.Development = true
	return cfg
}

type running struct {
	srv    *Server
	base   string
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, cfg *config.Config) *running {
	t.Helper()
	srv, err := NewServer(cfg, logging.Wrap(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{
		srv:    srv,
		base:   "http://" + ln.Addr().String(),
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() { r.done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-r.done:
		case <-time.After(5 * time.Second):
		}
	})
	return r
}

func (r *running) request(t *testing.T, method, path, body string) (*http.Response, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, r.base+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestServerEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	r := start(t, cfg)

	resp, _ := r.request(t, "PUT", "/files/notes/a.txt", "hello")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-ID"))

	resp, body := r.request(t, "GET", "/files/notes/a.txt", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)

	data, err := os.ReadFile(filepath.Join(cfg.Sandbox.Root, "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	resp, body = r.request(t, "GET", "/dirs/notes", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"name":"a.txt","isDirectory":false,"size":5}]`, body)

	resp, body = r.request(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"requests":{"total_requests":`)
	assert.Contains(t, body, `"locks_active":0`)

	resp, body = r.request(t, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "fsproxy_file_operations_total")
	assert.Contains(t, body, "fsproxy_http_requests_total")

	resp, _ = r.request(t, "POST", "/shutdown", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = r.request(t, "GET", "/log/level", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"level"`)
	resp, _ = r.request(t, "PUT", "/log/level", `{"level":"error"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	r.cancel()
	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	// audit records were flushed before the store closed
	records, err := r.srv.Manager().Recorder().Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestAdminShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.AdminShutdown = true
	r := start(t, cfg)

	resp, body := r.request(t, "PUT", "/log/level", `{"level":"warn"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"level":"warn"}`, body)

	resp, _ = r.request(t, "POST", "/shutdown", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after shutdown request")
	}

	// new file operations are rejected once shutdown began
	_, err := r.srv.Manager().Write(context.Background(), "late.txt", strings.NewReader("x"), 0)
	assert.Error(t, err)
}

func TestNewServerStartupFailures(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing root", func(c *config.Config) { c.Sandbox.Root = filepath.Join(t.TempDir(), "nope") }},
		{"root is a file", func(c *config.Config) { c.Sandbox.Root = file }},
		{"unknown store", func(c *config.Config) { c.Audit.DSN = "postgres://db" }},
		{"malformed dsn", func(c *config.Config) { c.Audit.DSN = "memory" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := NewServer(cfg, logging.Wrap(zaptest.NewLogger(t)))
			assert.Error(t, err)
		})
	}
}

func TestRunListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	cfg.Server.Port = port

	srv, err := NewServer(cfg, logging.Wrap(zaptest.NewLogger(t)))
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "sqlite:///var/lib/audit.db", redactDSN("sqlite:///var/lib/audit.db"))
	assert.Equal(t, "pg://***@db:5432/x", redactDSN("pg://user:secret@db:5432/x"))
	assert.Equal(t, "plain", redactDSN("plain"))
}

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/readingd/internal/infrastructure/config"
	"github.com/nerrad567/readingd/internal/infrastructure/logging"
)

const testBatch = `{"id":"36d5658a-6908-479e-887e-a949ec199272","readings":[` +
	`{"timestamp":"2021-09-29T16:08:15+01:00","count":2}]}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func quietLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error"}, "test", io.Discard)
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("READINGD_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("READINGD_CONFIG", "/etc/readingd/config.yaml")
	if got := getConfigPath(); got != "/etc/readingd/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestRunInvalidConfigPath(t *testing.T) {
	t.Setenv("READINGD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

func TestRunInvalidBackend(t *testing.T) {
	t.Setenv("READINGD_CONFIG", writeConfig(t, `
storage:
  backend: cassandra
logging:
  level: error
`))

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "storage.backend") {
		t.Fatalf("run() error = %v, want storage.backend validation error", err)
	}
}

func TestRunServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	t.Setenv("READINGD_CONFIG", writeConfig(t, fmt.Sprintf(`
database:
  path: %q
api:
  host: "127.0.0.1"
  port: %d
logging:
  level: error
  output: stderr
`, filepath.Join(dir, "readingd.db"), port)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/api/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	resp, err := http.Post(base+"/api/devices", "application/json", strings.NewReader(testBatch))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("POST status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}

	if _, err := os.Stat(filepath.Join(dir, "readingd.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Database.Path = filepath.Join(t.TempDir(), "readingd.db")

	st, err := openStorage(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("openStorage() error = %v", err)
	}
	if _, ok := st.checks["database"]; !ok {
		t.Error("database health check not registered")
	}

	fresh, err := st.fingerprints.Record(ctx, "abc")
	if err != nil || !fresh {
		t.Fatalf("Record() = %v, %v", fresh, err)
	}
	st.Close()

	// Reopen: the fingerprint persisted in the same database.
	st, err = openStorage(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	fresh, err = st.fingerprints.Record(ctx, "abc")
	if err != nil || fresh {
		t.Errorf("Record() after reopen = %v, %v; want duplicate", fresh, err)
	}
	st.Close()

	// reset_on_start clears it.
	cfg.Storage.ResetOnStart = true
	st, err = openStorage(ctx, cfg, quietLogger())
	if err != nil {
		t.Fatalf("reset open error = %v", err)
	}
	defer st.Close()
	fresh, err = st.fingerprints.Record(ctx, "abc")
	if err != nil || !fresh {
		t.Errorf("Record() after reset = %v, %v; want fresh", fresh, err)
	}
}

func TestOpenStorageMemoryFingerprints(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Database.Path = ":memory:"
	cfg.Storage.Fingerprints = config.FingerprintsMemory

	st, err := openStorage(context.Background(), cfg, quietLogger())
	if err != nil {
		t.Fatalf("openStorage() error = %v", err)
	}
	defer st.Close()

	if _, ok := st.checks["redis"]; ok {
		t.Error("redis check registered without redis")
	}
}

func TestOpenStorageRedisUnreachable(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Database.Path = ":memory:"
	cfg.Storage.Fingerprints = config.FingerprintsRedis
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	cfg.Redis.DialTimeout = 1

	if _, err := openStorage(context.Background(), cfg, quietLogger()); err == nil {
		t.Error("openStorage() should fail when redis is unreachable")
	}
}

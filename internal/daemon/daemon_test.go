package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"courier/internal/archive"
	"courier/internal/config"
	"courier/internal/deliverylog"
	"courier/internal/events"
	"courier/internal/ledger"
	"courier/internal/logging"
	"courier/internal/scheduler"
	"courier/internal/sizecache"
	"courier/internal/testsupport"
)

type testEnv struct {
	cfg     *config.Config
	daemon  *Daemon
	history *ledger.Store
	audit   *deliverylog.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	cfg.Watch.CheckInterval = 3600

	logger := logging.NewNop()
	history := testsupport.MustOpenLedger(t, cfg)
	sizes, err := sizecache.Open(cfg.SizeCachePath(), logger)
	if err != nil {
		t.Fatalf("open size cache: %v", err)
	}
	audit := testsupport.MustOpenDeliveryLog(t, cfg)

	sched := scheduler.New(cfg, history, sizes,
		archive.New(cfg.Paths.StagingDir, logger),
		nil, events.NewPublisher(config.Aggregator{}, logger), audit, logger)

	d, err := New(cfg, history, sizes, audit, sched, logger)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return &testEnv{cfg: cfg, daemon: d, history: history, audit: audit}
}

func (e *testEnv) apiClient(t *testing.T, token string) *httptest.Server {
	t.Helper()
	e.cfg.Paths.APIBind = "127.0.0.1:0"
	e.cfg.Paths.APIToken = token
	srv, err := newAPIServer(e.cfg, e.daemon, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer failed: %v", err)
	}
	server := httptest.NewServer(srv.routes())
	t.Cleanup(server.Close)
	return server
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	if err := env.history.Commit("/watch/a.txt", ledger.FileRecord{Hash: "h1", SequenceID: 1, Delivered: true}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	server := env.apiClient(t, "")

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	defer resp.Body.Close()
	var status Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Running {
		t.Fatal("daemon reported running before Start")
	}
	if status.LedgerEntries != 1 {
		t.Fatalf("ledger entries = %d, want 1", status.LedgerEntries)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	if err := env.history.Commit("/watch/a.txt", ledger.FileRecord{Hash: "h1", SequenceID: 1, Delivered: true}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	server := env.apiClient(t, "")

	resp, err := http.Get(server.URL + "/api/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Entries []historyEntry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(payload.Entries) != 1 || payload.Entries[0].Path != "/watch/a.txt" {
		t.Fatalf("unexpected history payload: %+v", payload)
	}
}

func TestResetEndpointClearsState(t *testing.T) {
	env := newTestEnv(t)
	if err := env.history.Commit("/watch/a.txt", ledger.FileRecord{Hash: "h1", SequenceID: 1}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	server := env.apiClient(t, "")

	resp, err := http.Post(server.URL+"/api/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reset: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}
	if env.history.Len() != 0 {
		t.Fatalf("ledger not cleared: %d entries", env.history.Len())
	}
}

func TestClearLogsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if err := env.audit.Record(ctx, deliverylog.Entry{Path: "/watch/a", Hash: "h", Outcome: deliverylog.OutcomeDelivered}); err != nil {
		t.Fatalf("record: %v", err)
	}
	server := env.apiClient(t, "")

	resp, err := http.Post(server.URL+"/api/logs/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("POST logs/clear: %v", err)
	}
	resp.Body.Close()
	entries, err := env.audit.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("delivery log not cleared: %d entries", len(entries))
	}
}

func TestDownloadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	srcDir := t.TempDir()
	path := filepath.Join(srcDir, "doc.txt")
	if err := os.WriteFile(path, []byte("original content"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	if err := env.history.Commit(path, ledger.FileRecord{Hash: "h1", SequenceID: 7, Delivered: true}); err != nil {
		t.Fatalf("commit: %v", err)
	}
	server := env.apiClient(t, "")

	resp, err := http.Get(server.URL + "/api/download/7")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "original content" {
		t.Fatalf("download failed: status %d body %q", resp.StatusCode, body)
	}

	// A vanished source is best-effort: 410, not 500.
	os.Remove(path)
	resp, err = http.Get(server.URL + "/api/download/7")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusGone {
		t.Fatalf("expected 410 for vanished source, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/download/999")
	if err != nil {
		t.Fatalf("GET download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown id, got %d", resp.StatusCode)
	}
}

func TestAuthTokenRequired(t *testing.T) {
	env := newTestEnv(t)
	server := env.apiClient(t, "secret-token")

	resp, err := http.Get(server.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET status with token: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := env.daemon.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer env.daemon.Stop()

	second, err := New(env.cfg, env.history, nil, nil,
		scheduler.New(env.cfg, env.history, nil, archive.New(env.cfg.Paths.StagingDir, logging.NewNop()),
			nil, events.NewPublisher(config.Aggregator{}, nil), nil, logging.NewNop()),
		logging.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("second instance acquired the lock")
	}
}

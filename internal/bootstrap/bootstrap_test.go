package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/config"
	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/repository/snapshot"
)

func testConfig(t *testing.T, backendURL string) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		BackendURL:       backendURL,
		BackendTimeout:   time.Second,
		RetryMaxAttempts: 1,
		ChunkPartSize:    5 << 20,
		OCRPollInterval:  10 * time.Millisecond,
		OCRMaxAttempts:   3,
		OCRMaxWait:       time.Second,
		SnapshotDriver:   snapshot.DriverSQLite,
		SnapshotDSN:      filepath.Join(dir, "state", "queue.db"),
		SnapshotLockPath: filepath.Join(dir, "state", "queue.lock"),
		SpoolPath:        filepath.Join(dir, "spool"),
		MappingCacheTTL:  time.Minute,
	}
}

func TestNewHoldsSingleWriterLock(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	cfg := testConfig(t, srv.URL)

	app, err := New(context.Background(), "intake-test", cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := New(context.Background(), "intake-test", cfg); !errors.Is(err, snapshot.ErrLocked) {
		t.Fatalf("expected second process to be locked out, got %v", err)
	}

	app.Close()

	again, err := New(context.Background(), "intake-test", cfg)
	if err != nil {
		t.Fatalf("New() after Close error = %v", err)
	}
	again.Close()
}

func TestNewReconcilesSnapshotsOnReload(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	cfg := testConfig(t, srv.URL)

	db, err := snapshot.OpenDB(cfg.SnapshotDriver, cfg.SnapshotDSN)
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	store := snapshot.New(db, cfg.SnapshotDriver)
	ctx := context.Background()
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	now := time.Now().UTC()
	for _, it := range []domain.UploadItem{
		{ID: "ready-1", Name: "gastos.csv", Status: domain.StatusReady, CreatedAt: now, UpdatedAt: now},
		{ID: "busy-1", Name: "scan.pdf", Status: domain.StatusProcessing, CreatedAt: now, UpdatedAt: now},
		{ID: "saving-1", Name: "big.xlsx", Status: domain.StatusSaving, CreatedAt: now, UpdatedAt: now},
	} {
		if err := store.Put(ctx, it); err != nil {
			t.Fatalf("Put(%s) error = %v", it.ID, err)
		}
	}
	_ = store.Close()

	app, err := New(ctx, "intake-test", cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	items := app.Queue.List()
	if len(items) != 1 || items[0].ID != "ready-1" {
		t.Fatalf("expected only the ready item to survive reload, got %+v", items)
	}
}

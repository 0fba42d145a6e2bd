package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

type enqueuerFake struct {
	mu    sync.Mutex
	names []string
}

func (f *enqueuerFake) Enqueue(_ context.Context, files []domain.FileSource) ([]domain.UploadItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := make([]domain.UploadItem, 0, len(files))
	for _, file := range files {
		f.names = append(f.names, file.Name())
		items = append(items, domain.UploadItem{Name: file.Name(), Status: domain.StatusPending})
	}
	return items, nil
}

func (f *enqueuerFake) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func waitForNames(t *testing.T, f *enqueuerFake, n int) []string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if names := f.snapshot(); len(names) >= n {
			return names
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d enqueued files, got %v", n, f.snapshot())
	return nil
}

func TestInboxEnqueuesSupportedFilesOnce(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "existing.csv"), []byte("a,b\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	fake := &enqueuerFake{}
	inbox := NewInbox(Config{Dir: dir, Debounce: 40 * time.Millisecond, InitialScan: true}, fake)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- inbox.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	waitForNames(t, fake, 1)

	if err := os.WriteFile(filepath.Join(dir, "notes.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".hidden.csv"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "scan.pdf"), []byte("%PDF-1.4"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	waitForNames(t, fake, 2)
	time.Sleep(150 * time.Millisecond)
	names := fake.snapshot()
	if len(names) != 2 || names[0] != "existing.csv" || names[1] != "scan.pdf" {
		t.Fatalf("unexpected enqueued files %v", names)
	}
}

func TestEligible(t *testing.T) {
	cases := map[string]bool{
		"/in/extracto.csv": true,
		"/in/factura.XML":  true,
		"/in/~$libro.xlsx": false,
		"/in/.DS_Store":    false,
		"/in/archive.zip":  false,
		"/in/ticket.jpeg":  true,
	}
	for path, want := range cases {
		if got := eligible(path); got != want {
			t.Fatalf("eligible(%q) = %v, want %v", path, got, want)
		}
	}
}

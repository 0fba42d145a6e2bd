package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
)

func TestSpoolSaveKeepsOriginalNameAndSize(t *testing.T) {
	dir := t.TempDir()
	spool, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	file, err := spool.Save(context.Background(), "../Extracto Enero.csv", "", strings.NewReader("Fecha;Importe\n"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if file.Name() != "Extracto Enero.csv" || file.Size() != 14 || file.ContentType() != "text/csv" {
		t.Fatalf("unexpected file %+v", file)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || strings.Contains(entries[0].Name(), " ") {
		t.Fatalf("expected one sanitized spool entry, got %v", entries)
	}

	rc, err := file.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "Fecha;Importe\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestSpoolPurgeRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	spool, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, name := range []string{"a.csv", "b.pdf"} {
		if _, err := spool.Save(context.Background(), name, "", strings.NewReader("x")); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	removed, err := spool.Purge()
	if err != nil || removed != 2 {
		t.Fatalf("Purge() = %d, %v", removed, err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected empty spool, got %d entries", len(entries))
	}
}

func TestReleaseDeletesSpooledCopyOnce(t *testing.T) {
	dir := t.TempDir()
	spool, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	file, err := spool.Save(context.Background(), "facturas.xml", "", strings.NewReader("<Invoice/>"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := domain.ReleaseFile(file); err != nil {
		t.Fatalf("ReleaseFile() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spool to be empty after release, got %d entries", len(entries))
	}
	if err := file.Release(); err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
}

func TestReleaseKeepsFilesOpenedInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extracto.csv")
	if err := os.WriteFile(path, []byte("Fecha;Importe\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	file, err := OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath() error = %v", err)
	}
	if err := domain.ReleaseFile(file); err != nil {
		t.Fatalf("ReleaseFile() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("user file must survive release: %v", err)
	}
}

func TestOpenPathRejectsDirectories(t *testing.T) {
	if _, err := OpenPath(t.TempDir()); err == nil {
		t.Fatalf("expected directory to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename("facturas/Año 2024 (1).xml"); got != "A_o_2024__1_.xml" {
		t.Fatalf("sanitizeFilename() = %q", got)
	}
	if got := sanitizeFilename(""); got != "upload.bin" {
		t.Fatalf("sanitizeFilename(\"\") = %q", got)
	}
}

package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Spool holds uploaded files on local disk while their items are processed.
// Restored items never reference spooled bytes, so the spool is purged on
// startup.
type Spool struct {
	basePath string
}

func New(basePath string) (*Spool, error) {
	if basePath == "" {
		basePath = "./data/spool"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{basePath: basePath}, nil
}

// Save copies data into the spool and returns a file source over the copy.
func (s *Spool) Save(ctx context.Context, name, contentType string, data io.Reader) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.basePath, uuid.NewString()+"_"+sanitizeFilename(name))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, data)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write file: %w", err)
	}
	if contentType == "" {
		contentType = contentTypeFor(name)
	}
	return &File{path: path, name: filepath.Base(name), contentType: contentType, size: size, spooled: true}, nil
}

// Purge removes every spooled file.
func (s *Spool) Purge() (int, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return 0, fmt.Errorf("read spool dir: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.basePath, e.Name())); err != nil {
			return removed, fmt.Errorf("remove spooled file: %w", err)
		}
		removed++
	}
	return removed, nil
}

// File is a file on local disk. It satisfies domain.FileSource.
type File struct {
	path        string
	name        string
	contentType string
	size        int64
	spooled     bool
}

// OpenPath describes an existing local file without copying it.
func OpenPath(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &File{
		path:        path,
		name:        filepath.Base(path),
		contentType: contentTypeFor(path),
		size:        info.Size(),
	}, nil
}

func (f *File) Name() string        { return f.name }
func (f *File) Size() int64         { return f.size }
func (f *File) ContentType() string { return f.contentType }

func (f *File) Open() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Release deletes a spooled copy. Files opened in place with OpenPath belong
// to the user and are never removed. Releasing twice is not an error.
func (f *File) Release() error {
	if !f.spooled {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release spooled file: %w", err)
	}
	return nil
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".csv" {
		return "text/csv"
	}
	return mime.TypeByExtension(ext)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "upload.bin"
	}
	return base
}

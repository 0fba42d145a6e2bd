package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kirillkom/intake-pipeline/internal/core/domain"
	"github.com/kirillkom/intake-pipeline/internal/infrastructure/storage/localfs"
)

// Enqueuer is the part of the intake queue the inbox feeds.
type Enqueuer interface {
	Enqueue(ctx context.Context, files []domain.FileSource) ([]domain.UploadItem, error)
}

type Config struct {
	Dir         string
	Debounce    time.Duration
	InitialScan bool
}

// Inbox enqueues files dropped into a directory once they stop changing.
type Inbox struct {
	cfg   Config
	queue Enqueuer

	pending map[string]time.Time
	handled map[string]time.Time
}

func NewInbox(cfg Config, queue Enqueuer) *Inbox {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &Inbox{
		cfg:     cfg,
		queue:   queue,
		pending: make(map[string]time.Time),
		handled: make(map[string]time.Time),
	}
}

// Run watches until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	if in.cfg.Dir == "" {
		return errors.New("inbox dir is required")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(in.cfg.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", in.cfg.Dir, err)
	}
	slog.Info("inbox_watching", "dir", in.cfg.Dir)

	if in.cfg.InitialScan {
		entries, err := os.ReadDir(in.cfg.Dir)
		if err != nil {
			return fmt.Errorf("scan inbox: %w", err)
		}
		now := time.Now()
		for _, e := range entries {
			if !e.IsDir() {
				in.note(filepath.Join(in.cfg.Dir, e.Name()), now.Add(-in.cfg.Debounce))
			}
		}
	}

	ticker := time.NewTicker(in.cfg.Debounce / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				in.note(e.Name, time.Now())
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("inbox_watch_error", "error", err)
		case now := <-ticker.C:
			in.flush(ctx, now)
		}
	}
}

func (in *Inbox) note(path string, at time.Time) {
	if !eligible(path) {
		return
	}
	in.pending[path] = at
}

// flush enqueues every pending file that has been quiet for the debounce
// window. A file is enqueued again only if its modification time changed.
func (in *Inbox) flush(ctx context.Context, now time.Time) {
	var files []domain.FileSource
	for path, last := range in.pending {
		if now.Sub(last) < in.cfg.Debounce {
			continue
		}
		delete(in.pending, path)

		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if prev, ok := in.handled[path]; ok && prev.Equal(info.ModTime()) {
			continue
		}
		file, err := localfs.OpenPath(path)
		if err != nil {
			slog.Warn("inbox_file_unreadable", "path", path, "error", err.Error())
			continue
		}
		in.handled[path] = info.ModTime()
		files = append(files, file)
	}
	if len(files) == 0 {
		return
	}
	items, err := in.queue.Enqueue(ctx, files)
	if err != nil {
		slog.Error("inbox_enqueue_failed", "files", len(files), "error", err.Error())
		return
	}
	slog.Info("inbox_enqueued", "items", len(items))
}

func eligible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return domain.DetectKind(base, "") != domain.KindUnknown
}

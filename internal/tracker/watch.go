package tracker

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"thoth/internal/logging"
)

// Watch watches dir (recursive) for new/changed .pdf files and calls
// onPDF with each resolved path once its write has settled, per §6.4's
// "watch a directory; every new file with extension .pdf is enqueued."
// A small debounce absorbs multi-event writes (rename+chmod+write) common
// with PDF downloads and OCR tool output.
func Watch(ctx context.Context, dir string, debounce time.Duration, onPDF func(path string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addRecursive(w, dir); err != nil {
		return err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	pending := make(map[string]*time.Timer)
	fire := make(chan string, 16)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path := <-fire:
			onPDF(path)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".pdf") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			path := ev.Name
			if t, ok := pending[path]; ok {
				t.Stop()
			}
			pending[path] = time.AfterFunc(debounce, func() { fire <- path })
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Log.WithError(err).Warn("tracker: watcher error")
		}
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

package inbox

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/anemone/pkg/utils/logging"
)

// Watcher reports files created or written in a box as they happen. It only
// notifies; the Scanner decides what is actually new.
type Watcher struct {
	dir     string
	fsw     *fsnotify.Watcher
	changes chan string
}

// NewWatcher watches dir and its existing subdirectories. New subdirectories
// are added as they appear.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create file watcher")
	}

	w := &Watcher{
		dir:     dir,
		fsw:     fsw,
		changes: make(chan string, 64),
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		_ = fsw.Close()
		return nil, goerr.Wrap(err, "failed to watch box", goerr.V("dir", dir))
	}

	return w, nil
}

// Changes delivers relative, slash separated paths. Notifications are dropped
// when the receiver falls behind.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

// Run forwards file system events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	logger := logging.From(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if !strings.HasPrefix(filepath.Base(ev.Name), ".") {
						if err := w.fsw.Add(ev.Name); err != nil {
							logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
						}
					}
					continue
				}
			}

			rel, err := filepath.Rel(w.dir, ev.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			if Ignored(rel) {
				continue
			}

			select {
			case w.changes <- rel:
			default:
				logger.Debug("dropping file change notification", "path", rel)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("file watcher error", "dir", w.dir, "error", err)
		}
	}
}

func (w *Watcher) Close() error {
	if err := w.fsw.Close(); err != nil {
		return goerr.Wrap(err, "failed to close file watcher", goerr.V("dir", w.dir))
	}
	return nil
}

package templates

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lehdermann/ontomed/internal/logging"
)

// debounceInterval coalesces the event bursts editors and deploy tools
// produce for a single logical change.
const debounceInterval = 500 * time.Millisecond

// Watcher reloads the template directory whenever a YAML file changes and
// hands the fresh set to the callback. Registration is idempotent, so
// re-registering an unchanged template is harmless.
type Watcher struct {
	dir      string
	onReload func([]Template)
	fs       *fsnotify.Watcher
}

// NewWatcher starts watching dir. The callback runs on the watcher
// goroutine.
func NewWatcher(dir string, onReload func([]Template)) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{dir: dir, onReload: onReload, fs: fs}, nil
}

// Run processes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	log := logging.Get(logging.CategoryTemplates)
	defer w.fs.Close()

	var timer *time.Timer
	var pending <-chan time.Time

	reload := func() {
		ts, err := LoadDir(w.dir)
		if err != nil {
			log.Errorw("template reload failed", "dir", w.dir, "error", err)
			return
		}
		w.onReload(ts)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !relevant(ev) {
				continue
			}
			log.Debugw("template change detected", "file", ev.Name, "op", ev.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
			} else {
				timer.Reset(debounceInterval)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warnw("template watcher error", "error", err)
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yaml" || ext == ".yml"
}

package intake

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/logging"
)

// Watcher is the drop zone: files created or rewritten in a directory are
// collected and, once no event arrived for a quiet period and their sizes
// held still over one more, handed over as one batch.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *logging.Logger
}

// NewWatcher watches dir. A zero debounce uses the default quiet period.
func NewWatcher(dir string, debounce time.Duration, logger *logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = constants.WatchDebounce
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{dir: dir, debounce: debounce, logger: logger}
}

// Run blocks until ctx is done or the watcher fails, calling submit for
// every batch. Hidden files (leading dot) are ignored so editors' swap
// files and partial downloads are not uploaded.
func (w *Watcher) Run(ctx context.Context, submit func(context.Context, []File)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info().Str("dir", w.dir).Msg("Watching drop directory")

	pending := make(map[string]int64) // Size seen at the last tick, -1 before the first
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(e.Name), ".") {
				continue
			}
			if _, ok := pending[e.Name]; !ok {
				pending[e.Name] = -1
			}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("received fsnotify error: %w", err)

		case <-timer.C:
			batch := w.collect(pending)
			if len(pending) > 0 {
				timer.Reset(w.debounce)
			}
			if len(batch) > 0 {
				submit(ctx, batch)
			}
		}
	}
}

// collect returns the pending files whose size matches the previous tick
// and removes them from pending. Files still growing stay pending with
// their new size; directories and vanished files are dropped.
func (w *Watcher) collect(pending map[string]int64) []File {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	batch := make([]File, 0, len(paths))
	for _, p := range paths {
		f, err := FromPath(p)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				w.logger.Debugf("Skipping %s: %v", p, err)
			}
			delete(pending, p)
			continue
		}
		if f.Size != pending[p] {
			pending[p] = f.Size
			continue
		}
		delete(pending, p)
		batch = append(batch, f)
	}
	return batch
}

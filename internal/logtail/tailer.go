// Package logtail follows the server log the way the log pane of the web
// UI does: poll, print what is new, stop polling while paused.
package logtail

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/logging"
)

// Source returns the full current log text.
type Source interface {
	Logs(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

// Logs implements Source.
func (f SourceFunc) Logs(ctx context.Context) (string, error) { return f(ctx) }

// Tailer polls a Source and writes the text that appeared since the last poll.
type Tailer struct {
	source   Source
	out      io.Writer
	interval time.Duration
	logger   *logging.Logger

	mu     sync.Mutex
	paused bool
	resume chan struct{}
	seen   string
}

// New creates a tailer writing to out. A non-positive interval uses the default.
func New(source Source, out io.Writer, interval time.Duration, logger *logging.Logger) *Tailer {
	if interval <= 0 {
		interval = constants.LogPollInterval
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Tailer{
		source:   source,
		out:      out,
		interval: interval,
		logger:   logger,
		resume:   make(chan struct{}, 1),
	}
}

// Pause stops polling until Resume.
func (t *Tailer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paused = true
}

// Resume restarts polling with an immediate fetch.
func (t *Tailer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.paused {
		return
	}
	t.paused = false
	select {
	case t.resume <- struct{}{}:
	default:
	}
}

// Toggle flips between paused and polling and reports whether it is now paused.
func (t *Tailer) Toggle() bool {
	t.mu.Lock()
	paused := t.paused
	t.mu.Unlock()
	if paused {
		t.Resume()
		return false
	}
	t.Pause()
	return true
}

// Paused reports whether polling is paused.
func (t *Tailer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Run polls until ctx is done. Fetch errors are logged and polling goes on.
func (t *Tailer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	if err := t.Poll(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warnf("Failed to fetch logs: %v", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if t.Paused() {
				continue
			}
		case <-t.resume:
		}
		if err := t.Poll(ctx); err != nil && ctx.Err() == nil {
			t.logger.Warnf("Failed to fetch logs: %v", err)
		}
	}
}

// Poll fetches the log once and writes what is new. When the log no longer
// starts with what was already printed (cleared or rotated), the whole log
// is written again.
func (t *Tailer) Poll(ctx context.Context) error {
	text, err := t.source.Logs(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	seen := t.seen
	t.seen = text
	t.mu.Unlock()

	delta := text
	if strings.HasPrefix(text, seen) {
		delta = text[len(seen):]
	} else {
		t.logger.Debug().Msg("Server log was reset")
	}
	if delta == "" {
		return nil
	}
	if _, err := io.WriteString(t.out, delta); err != nil {
		return fmt.Errorf("failed to write logs: %w", err)
	}
	return nil
}

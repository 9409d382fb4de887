package progress

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/exposerver/exposerver/internal/constants"
)

// UploadUI renders the progress container on a terminal using mpb
// multi-bars. Each fragment is a bar with total 100 driven by the
// displayed percent. When stderr is not a terminal it prints plain lines.
type UploadUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu        sync.Mutex
	fragments map[string][]*FileBar // slot -> fragments currently shown
}

// FileBar is one upload's row in the terminal container.
type FileBar struct {
	ui      *UploadUI
	bar     *mpb.Bar
	slot    string
	name    string
	size    int64
	done    bool
	percent int
}

// NewUploadUI creates an upload UI on stderr.
func NewUploadUI() *UploadUI {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		// Enable ANSI escape sequences on Windows for proper progress bar rendering
		enableANSIOnWindows(os.Stderr)
	}
	return newUploadUI(os.Stderr, isTerminal)
}

func newUploadUI(out io.Writer, isTerminal bool) *UploadUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(constants.ProgressRefreshRate),
			mpb.WithWidth(constants.ProgressBarWidth),
		)
	} else {
		// Non-TTY: disable progress bars, just use text output
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &UploadUI{
		progress:   p,
		out:        out,
		isTerminal: isTerminal,
		fragments:  make(map[string][]*FileBar),
	}
}

// Add implements Presenter.
func (u *UploadUI) Add(slot, name string, size int64) Fragment {
	fb := &FileBar{ui: u, slot: slot, name: name, size: size}
	label := fmt.Sprintf("%s (%s)", name, sizeLabel(size))

	if u.isTerminal {
		fb.bar = u.progress.New(100,
			mpb.BarStyle().
				Lbound("[").
				Filler("█").
				Tip("█").
				Padding("░").
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Name(label, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  [x] "+slot),
			),
		)
	} else {
		fmt.Fprintf(u.out, "Uploading %s\n", label)
	}

	u.mu.Lock()
	u.fragments[slot] = append(u.fragments[slot], fb)
	u.mu.Unlock()
	return fb
}

// Remove implements Presenter.
func (u *UploadUI) Remove(slot string) {
	u.mu.Lock()
	bars := u.fragments[slot]
	delete(u.fragments, slot)
	for _, fb := range bars {
		fb.done = true
	}
	u.mu.Unlock()

	for _, fb := range bars {
		if fb.bar != nil {
			fb.bar.Abort(true)
		}
	}
}

// SetPercent moves the bar to percent.
func (f *FileBar) SetPercent(percent int) {
	f.ui.mu.Lock()
	if f.done {
		f.ui.mu.Unlock()
		return
	}
	f.percent = clampPercent(percent)
	f.ui.mu.Unlock()

	if f.bar != nil {
		f.bar.SetCurrent(int64(f.percent))
	}
}

// Finish drops the bar and prints the status line in its place.
func (f *FileBar) Finish(outcome Outcome) {
	u := f.ui
	u.mu.Lock()
	if f.done {
		u.mu.Unlock()
		return
	}
	f.done = true
	bars := u.fragments[f.slot]
	for i, fb := range bars {
		if fb == f {
			u.fragments[f.slot] = append(bars[:i], bars[i+1:]...)
			break
		}
	}
	if len(u.fragments[f.slot]) == 0 {
		delete(u.fragments, f.slot)
	}
	u.mu.Unlock()

	if f.bar != nil {
		if outcome.Kind == KindSucceeded {
			f.bar.SetCurrent(100)
		}
		f.bar.Abort(true)
	}

	msg := fmt.Sprintf("%s %s\n", marker(outcome.Kind), outcome.Line)
	// Write through mpb's writer (not stdout) to avoid tearing the bars
	if u.isTerminal {
		_, _ = u.progress.Write([]byte(msg))
	} else {
		_, _ = io.WriteString(u.out, msg)
	}
}

func marker(kind Kind) string {
	switch kind {
	case KindSucceeded:
		return "✓"
	case KindFailed:
		return "✗"
	default:
		return "-"
	}
}

func sizeLabel(size int64) string {
	if size < 0 {
		return "size unknown"
	}
	return fmt.Sprintf("% .1f", decor.SizeB1024(size))
}

// Wait blocks until every bar has been finished or removed.
func (u *UploadUI) Wait() {
	if u.progress != nil {
		u.progress.Wait()
	}
}

// LogWriter returns an io.Writer that safely prints above the progress bars
func (u *UploadUI) LogWriter() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal returns true if output is to a terminal (progress bars are active).
func (u *UploadUI) IsTerminal() bool {
	return u.isTerminal
}

// enableANSIOnWindows enables Virtual Terminal processing on Windows for ANSI escape sequences
func enableANSIOnWindows(f *os.File) {
	if runtime.GOOS == "windows" {
		enableWindowsANSI(f)
	}
}

package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Panel is an in-memory progress container. It keeps fragments in
// insertion order and records every state a fragment went through, which
// makes it the presenter of choice for tests and for the status summary
// printed after a batch.
type Panel struct {
	mu        sync.Mutex
	fragments []*panelFragment
	barWidth  int
}

// FragmentView is a snapshot of one fragment.
type FragmentView struct {
	Slot       string
	Name       string
	Size       int64
	Percent    int
	Label      string // "37%"; empty once finished
	FillWidth  int    // Filled cells out of the panel's bar width
	Cancelable bool   // Cancel control still present
	Finished   bool
	Kind       Kind
	Line       string // Status line once finished
	History    []int  // Every percent shown, in order
}

type panelFragment struct {
	panel   *Panel
	view    FragmentView
	removed bool
}

// NewPanel creates an empty panel whose fill bars are barWidth cells wide.
func NewPanel(barWidth int) *Panel {
	if barWidth <= 0 {
		barWidth = 100
	}
	return &Panel{barWidth: barWidth}
}

// Add implements Presenter.
func (p *Panel) Add(slot, name string, size int64) Fragment {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := &panelFragment{
		panel: p,
		view: FragmentView{
			Slot:       slot,
			Name:       name,
			Size:       size,
			Label:      "0%",
			Cancelable: true,
			History:    []int{0},
		},
	}
	p.fragments = append(p.fragments, f)
	return f
}

// Remove implements Presenter.
func (p *Panel) Remove(slot string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := p.fragments[:0]
	for _, f := range p.fragments {
		if f.view.Slot == slot {
			f.removed = true
			continue
		}
		kept = append(kept, f)
	}
	for i := len(kept); i < len(p.fragments); i++ {
		p.fragments[i] = nil
	}
	p.fragments = kept
}

func (f *panelFragment) SetPercent(percent int) {
	p := f.panel
	p.mu.Lock()
	defer p.mu.Unlock()

	if f.removed || f.view.Finished {
		return
	}
	percent = clampPercent(percent)
	f.view.Percent = percent
	f.view.Label = fmt.Sprintf("%d%%", percent)
	f.view.FillWidth = percent * p.barWidth / 100
	f.view.History = append(f.view.History, percent)
}

func (f *panelFragment) Finish(outcome Outcome) {
	p := f.panel
	p.mu.Lock()
	defer p.mu.Unlock()

	if f.removed || f.view.Finished {
		return
	}
	f.view.Finished = true
	f.view.Cancelable = false
	f.view.Label = ""
	f.view.FillWidth = 0
	f.view.Kind = outcome.Kind
	f.view.Line = outcome.Line
}

// Fragments returns snapshots of every fragment in display order.
func (p *Panel) Fragments() []FragmentView {
	p.mu.Lock()
	defer p.mu.Unlock()

	views := make([]FragmentView, len(p.fragments))
	for i, f := range p.fragments {
		views[i] = f.snapshot()
	}
	return views
}

// Fragment returns the snapshot of the fragment shown for slot.
func (p *Panel) Fragment(slot string) (FragmentView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := len(p.fragments) - 1; i >= 0; i-- {
		if p.fragments[i].view.Slot == slot {
			return p.fragments[i].snapshot(), true
		}
	}
	return FragmentView{}, false
}

func (f *panelFragment) snapshot() FragmentView {
	v := f.view
	v.History = append([]int(nil), f.view.History...)
	return v
}

// Render writes one line per fragment.
func (p *Panel) Render(w io.Writer) error {
	for _, v := range p.Fragments() {
		var line string
		if v.Finished {
			line = fmt.Sprintf("%s: %s\n", v.Name, v.Line)
		} else {
			bar := strings.Repeat("█", v.FillWidth) + strings.Repeat("░", p.barWidth-v.FillWidth)
			line = fmt.Sprintf("%s [%s] %s [x]\n", v.Name, bar, v.Label)
		}
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

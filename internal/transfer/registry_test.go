package transfer

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/exposerver/exposerver/internal/ident"
	"github.com/exposerver/exposerver/internal/progress"
)

type countingHandle struct {
	aborts atomic.Int32
}

func (h *countingHandle) Abort() { h.aborts.Add(1) }

func newTestRecord(name string, h Handle) *Record {
	return NewRecord(ident.Assign(name), newTicket(), name, 10, h, progress.Discard)
}

func TestRegistry_RegisterAndCancel(t *testing.T) {
	r := NewRegistry()
	h := &countingHandle{}
	rec := newTestRecord("report.pdf", h)

	r.Register(rec.ID, rec)
	if !r.Has("reportpdf") || r.Len() != 1 {
		t.Fatalf("registry should contain reportpdf, has %v", r.IDs())
	}

	if !r.Cancel("reportpdf") {
		t.Error("Cancel() = false, want true")
	}
	if got := h.aborts.Load(); got != 1 {
		t.Errorf("aborts = %d, want 1", got)
	}
	if !r.Has("reportpdf") {
		t.Error("Cancel must not remove the entry")
	}
}

func TestRegistry_CancelMissingIsNoop(t *testing.T) {
	r := NewRegistry()
	if r.Cancel("nothing") {
		t.Error("Cancel() on empty registry = true, want false")
	}
	r.Unregister("nothing")
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_CancelAfterTerminalDoesNotAbortAgain(t *testing.T) {
	r := NewRegistry()
	h := &countingHandle{}
	rec := newTestRecord("a.txt", h)
	r.Register(rec.ID, rec)

	r.Cancel(rec.ID)
	if _, ok := rec.finish(Outcome{Status: StatusCanceled}); !ok {
		t.Fatal("finish() should succeed once")
	}
	if !r.Release(rec.ID, rec.Ticket) {
		t.Fatal("Release() = false, want true")
	}

	if r.Cancel(rec.ID) {
		t.Error("Cancel() after terminal = true, want false")
	}
	if rec.abort() {
		t.Error("abort() after terminal = true, want false")
	}
	if got := h.aborts.Load(); got != 1 {
		t.Errorf("aborts = %d, want exactly 1", got)
	}
}

func TestRegistry_ReleaseChecksTicket(t *testing.T) {
	r := NewRegistry()
	first := newTestRecord("a!.txt", &countingHandle{})
	second := newTestRecord("a?.txt", &countingHandle{})
	if first.ID != second.ID {
		t.Fatalf("ids differ: %q vs %q", first.ID, second.ID)
	}

	r.Register(first.ID, first)
	r.Register(second.ID, second)

	if r.Release(first.ID, first.Ticket) {
		t.Error("stale ticket released the replacement")
	}
	got, ok := r.Get(second.ID)
	if !ok || got != second {
		t.Error("replacement should still be registered")
	}
	if !r.Release(second.ID, second.Ticket) {
		t.Error("Release() with current ticket = false, want true")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_IDsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"c", "a", "b"} {
		rec := newTestRecord(name, &countingHandle{})
		r.Register(rec.ID, rec)
	}
	ids := r.IDs()
	want := []ident.Identifier{"a", "b", "c"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", ids, want)
		}
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := newTestRecord(string(rune('a'+i%26)), &countingHandle{})
			r.Register(rec.ID, rec)
			r.Cancel(rec.ID)
			r.Release(rec.ID, rec.Ticket)
			_ = r.IDs()
		}(i)
	}
	wg.Wait()
}

func TestRecord_FinishOnce(t *testing.T) {
	h := &countingHandle{}
	rec := newTestRecord("x", h)

	if _, ok := rec.finish(Outcome{Status: StatusFailed}); !ok {
		t.Fatal("first finish should succeed")
	}
	if _, ok := rec.finish(Outcome{Status: StatusSucceeded}); ok {
		t.Error("second finish should be rejected")
	}
	if rec.Status() != StatusFailed {
		t.Errorf("Status() = %s, want failed", rec.Status())
	}
	if rec.Handle() != nil {
		t.Error("handle should be released at the terminal transition")
	}
	if _, ok := rec.advance(5); ok {
		t.Error("progress after terminal should be ignored")
	}
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		sent, size int64
		want       int
	}{
		{0, 0, 100},
		{0, 10000, 0},
		{2500, 10000, 25},
		{5, 1000, 1},   // 0.5 rounds up
		{4, 1000, 0},   // 0.4 rounds down
		{995, 1000, 100},
		{10000, 10000, 100},
		{20000, 10000, 100},
		{-1, 100, 0},
	}
	for _, tt := range tests {
		if got := percentOf(tt.sent, tt.size); got != tt.want {
			t.Errorf("percentOf(%d, %d) = %d, want %d", tt.sent, tt.size, got, tt.want)
		}
	}
}

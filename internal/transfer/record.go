package transfer

import (
	"sync"
	"time"

	"github.com/exposerver/exposerver/internal/ident"
	"github.com/exposerver/exposerver/internal/progress"
)

// Outcome is the terminal result of a transfer.
type Outcome struct {
	Status     Status
	StatusCode int    // HTTP status when the server answered
	Body       string // Response body when the server answered
	Line       string // Status line rendered in place of the fragment
	Err        error  // nil on success
}

// Record is the state of one submitted upload.
// Thread-safe: exported fields are immutable, the rest is read via methods.
type Record struct {
	ID       ident.Identifier
	Ticket   Ticket
	FileName string
	FileSize int64 // Negative when unknown

	mu          sync.RWMutex
	status      Status
	bytesSent   int64
	percent     int
	handle      Handle
	fragment    progress.Fragment
	outcome     Outcome
	createdAt   time.Time
	completedAt time.Time
	done        chan struct{}
}

// NewRecord creates a pending record owning handle and fragment.
func NewRecord(id ident.Identifier, ticket Ticket, name string, size int64, handle Handle, fragment progress.Fragment) *Record {
	if fragment == nil {
		fragment = progress.Discard
	}
	return &Record{
		ID:        id,
		Ticket:    ticket,
		FileName:  name,
		FileSize:  size,
		status:    StatusPending,
		handle:    handle,
		fragment:  fragment,
		createdAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// Status returns the current status.
func (r *Record) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// BytesSent returns the highest byte count reported by the transport.
func (r *Record) BytesSent() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bytesSent
}

// Percent returns the percentage last shown in the fragment.
func (r *Record) Percent() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.percent
}

// Handle returns the network handle, nil once the record is terminal.
func (r *Record) Handle() Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handle
}

// Done is closed once the record reached its terminal status and the
// fragment shows the final line.
func (r *Record) Done() <-chan struct{} {
	return r.done
}

// Outcome returns the terminal result; ok is false while still running.
func (r *Record) Outcome() (Outcome, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.outcome, r.status.IsTerminal()
}

// Duration returns the time from submission to the terminal status.
func (r *Record) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.completedAt.IsZero() {
		return time.Since(r.createdAt)
	}
	return r.completedAt.Sub(r.createdAt)
}

// abort invokes the handle. It reports false once the record is terminal.
func (r *Record) abort() bool {
	r.mu.RLock()
	h := r.handle
	r.mu.RUnlock()
	if h == nil {
		return false
	}
	h.Abort()
	return true
}

// startSending moves pending to sending.
func (r *Record) startSending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusPending {
		r.status = StatusSending
	}
}

// advance records sent bytes and returns the new percent when the
// displayed value must change. Unknown sizes never produce a percent.
func (r *Record) advance(sent int64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.IsTerminal() {
		return 0, false
	}
	r.status = StatusSending
	if sent > r.bytesSent {
		r.bytesSent = sent
	}
	if r.FileSize < 0 {
		return 0, false
	}
	pct := percentOf(r.bytesSent, r.FileSize)
	if pct <= r.percent {
		return 0, false
	}
	r.percent = pct
	return pct, true
}

// finish performs the single terminal transition. It releases the handle
// and returns the fragment to render into; ok is false if the record was
// already terminal.
func (r *Record) finish(outcome Outcome) (progress.Fragment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.IsTerminal() {
		return nil, false
	}
	r.status = outcome.Status
	r.outcome = outcome
	r.handle = nil
	r.completedAt = time.Now()
	return r.fragment, true
}

// detach points the record at a fragment that renders nowhere.
func (r *Record) detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragment = progress.Discard
}

func (r *Record) currentFragment() progress.Fragment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fragment
}

func (r *Record) closeDone() {
	close(r.done)
}

// percentOf returns round(sent/size*100) clamped to [0, 100].
// A zero-byte file is complete by definition.
func percentOf(sent, size int64) int {
	if size == 0 {
		return 100
	}
	if sent <= 0 {
		return 0
	}
	if sent >= size {
		return 100
	}
	return int((sent*200 + size) / (size * 2))
}

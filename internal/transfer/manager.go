package transfer

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/events"
	"github.com/exposerver/exposerver/internal/ident"
	"github.com/exposerver/exposerver/internal/intake"
	"github.com/exposerver/exposerver/internal/logging"
	"github.com/exposerver/exposerver/internal/progress"
)

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func())
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// Option configures a Manager.
type Option func(*Manager)

// WithEventBus publishes transfer and listing events on bus.
func WithEventBus(bus *events.EventBus) Option {
	return func(m *Manager) { m.eventBus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithReloadDelay sets the delay between a successful upload and the
// FileAdded notification.
func WithReloadDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.reloadDelay = d
		}
	}
}

// WithRetention keeps at most n finished transfers. Older ones are
// forgotten together with their progress fragment; their outcomes still
// count in GetStats. Zero keeps everything.
func WithRetention(n int) Option {
	return func(m *Manager) {
		if n >= 0 {
			m.retention = n
		}
	}
}

// WithScheduler replaces the wall-clock scheduler used for FileAdded.
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// Stats counts transfers by status.
type Stats struct {
	Pending   int
	Sending   int
	Succeeded int
	Failed    int
	Canceled  int
}

// Total returns the number of submitted transfers.
func (s Stats) Total() int {
	return s.Pending + s.Sending + s.Succeeded + s.Failed + s.Canceled
}

// Manager starts one transfer per submitted file, immediately and
// concurrently, and keeps the registry and the progress container in step
// with each transfer's updates.
//
// All registry, record and presenter mutations happen under mu, so the
// updates of one transfer are applied in arrival order and every record
// sees exactly one terminal transition.
type Manager struct {
	transport   Transport
	presenter   progress.Presenter
	registry    *Registry
	eventBus    *events.EventBus
	logger      *logging.Logger
	scheduler   Scheduler
	reloadDelay time.Duration
	retention   int

	mu       sync.Mutex
	slots    map[ident.Identifier]*Record // Record whose fragment occupies the slot
	records  map[Ticket]*Record
	order    []*Record
	finished []*Record // Retained terminal records, oldest first
	tally    Stats     // Terminal outcomes, including forgotten ones
}

// NewManager creates a manager sending through transport and rendering
// into presenter.
func NewManager(transport Transport, presenter progress.Presenter, opts ...Option) *Manager {
	m := &Manager{
		transport:   transport,
		presenter:   presenter,
		registry:    NewRegistry(),
		logger:      logging.Nop(),
		scheduler:   clockScheduler{},
		reloadDelay: constants.ListingRefreshDelay,
		slots:       make(map[ident.Identifier]*Record),
		records:     make(map[Ticket]*Record),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SubmitBatch starts one upload per file and returns without waiting.
// Tickets are returned in file order. An empty batch does nothing.
// Canceling ctx aborts every transfer of the batch.
func (m *Manager) SubmitBatch(ctx context.Context, files []intake.File) []Ticket {
	if len(files) == 0 {
		return nil
	}
	tickets := make([]Ticket, 0, len(files))
	for _, f := range files {
		tickets = append(tickets, m.submit(ctx, f))
	}
	return tickets
}

func (m *Manager) submit(ctx context.Context, file intake.File) Ticket {
	id := ident.Assign(file.Name)
	tctx, cancel := context.WithCancel(ctx)
	updates := make(chan Update, constants.UpdateChannelBuffer)

	m.mu.Lock()
	if prior, ok := m.slots[id]; ok {
		m.replace(prior)
	}
	frag := m.presenter.Add(string(id), file.Name, file.Size)
	rec := NewRecord(id, newTicket(), file.Name, file.Size, cancelHandle(cancel), frag)
	m.registry.Register(id, rec)
	m.slots[id] = rec
	m.records[rec.Ticket] = rec
	m.order = append(m.order, rec)
	m.publish(events.EventTransferQueued, rec, 0, nil)
	m.mu.Unlock()

	m.logger.Debug().Str("file", file.Name).Str("id", string(id)).Str("ticket", string(rec.Ticket)).Msg("Upload queued")

	go m.consume(rec, updates)
	go m.run(tctx, cancel, rec, file, updates)
	return rec.Ticket
}

// replace frees the slot held by prior for a new submission with the same
// identifier. A still-running prior transfer is aborted first; its
// cancellation then renders nowhere. Caller holds mu.
func (m *Manager) replace(prior *Record) {
	if !prior.Status().IsTerminal() {
		m.logger.Info().Str("file", prior.FileName).Str("id", string(prior.ID)).
			Msg("Aborting upload replaced by a file with the same identifier")
		prior.abort()
	}
	prior.detach()
	m.presenter.Remove(string(prior.ID))
}

// run drives the transport and writes the update stream for rec.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, rec *Record, file intake.File, updates chan<- Update) {
	defer close(updates)
	defer cancel()

	if err := ctx.Err(); err != nil {
		updates <- Update{Kind: UpdateCanceled, Err: err}
		return
	}

	rec.startSending()
	sink := &progressSink{updates: updates}
	resp, err := m.transport.Send(ctx, file, sink.report)
	sink.seal()
	updates <- terminalUpdate(ctx, resp, err)
}

// progressSink forwards progress callbacks until sealed. The HTTP client
// may still be reading the request body after the response arrived.
type progressSink struct {
	mu      sync.Mutex
	sealed  bool
	updates chan<- Update
}

func (s *progressSink) report(sent int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.sealed {
		s.updates <- Update{Kind: UpdateProgress, Sent: sent}
	}
}

func (s *progressSink) seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

func (m *Manager) consume(rec *Record, updates <-chan Update) {
	for u := range updates {
		m.apply(rec, u)
	}
}

// apply handles one update of rec.
func (m *Manager) apply(rec *Record, u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.Kind == UpdateProgress {
		pct, changed := rec.advance(u.Sent)
		if !changed {
			return
		}
		rec.currentFragment().SetPercent(pct)
		m.publish(events.EventTransferProgress, rec, pct, nil)
		return
	}

	outcome := outcomeFor(rec.FileName, u)
	frag, ok := rec.finish(outcome)
	if !ok {
		return
	}
	m.registry.Release(rec.ID, rec.Ticket)
	frag.Finish(progress.Outcome{Kind: kindOf(outcome.Status), Line: outcome.Line})

	switch outcome.Status {
	case StatusSucceeded:
		m.logger.Info().Str("file", rec.FileName).Int("status", outcome.StatusCode).
			Dur("elapsed", rec.Duration()).Msg("Upload succeeded")
		m.publish(events.EventTransferSucceeded, rec, rec.Percent(), &outcome)
		m.scheduleFileAdded(rec.FileName, outcome.Body)
	case StatusFailed:
		m.logger.Warn().Str("file", rec.FileName).Int("status", outcome.StatusCode).
			Err(outcome.Err).Msg("Upload failed")
		m.publish(events.EventTransferFailed, rec, rec.Percent(), &outcome)
	case StatusCanceled:
		m.logger.Info().Str("file", rec.FileName).Msg("Upload canceled")
		m.publish(events.EventTransferCanceled, rec, rec.Percent(), &outcome)
	}
	m.tally.count(outcome.Status)

	rec.closeDone()
	m.finished = append(m.finished, rec)
	m.prune()
}

// prune forgets the oldest finished records beyond the retention limit.
// Caller holds mu.
func (m *Manager) prune() {
	if m.retention == 0 {
		return
	}
	for len(m.finished) > m.retention {
		old := m.finished[0]
		m.finished[0] = nil
		m.finished = m.finished[1:]

		delete(m.records, old.Ticket)
		m.order = slices.DeleteFunc(m.order, func(r *Record) bool { return r == old })
		if m.slots[old.ID] == old {
			delete(m.slots, old.ID)
			m.presenter.Remove(string(old.ID))
		}
	}
}

func outcomeFor(name string, u Update) Outcome {
	switch {
	case u.Kind == UpdateSucceeded:
		return Outcome{
			Status:     StatusSucceeded,
			StatusCode: u.StatusCode,
			Body:       u.Body,
			Line:       succeededLine(u.Body),
		}
	case u.Kind == UpdateCanceled:
		return Outcome{
			Status: StatusCanceled,
			Line:   canceledLine(name),
			Err:    context.Canceled,
		}
	case u.StatusCode != 0:
		return Outcome{
			Status:     StatusFailed,
			StatusCode: u.StatusCode,
			Body:       u.Body,
			Line:       rejectedLine(name, u.StatusCode, u.Body),
			Err:        &RejectedError{StatusCode: u.StatusCode, Body: u.Body},
		}
	default:
		err := ErrNetwork
		if u.Err != nil {
			err = fmt.Errorf("%w: %w", ErrNetwork, u.Err)
		}
		return Outcome{
			Status: StatusFailed,
			Line:   networkErrorLine(name),
			Err:    err,
		}
	}
}

func kindOf(s Status) progress.Kind {
	switch s {
	case StatusSucceeded:
		return progress.KindSucceeded
	case StatusCanceled:
		return progress.KindCanceled
	default:
		return progress.KindFailed
	}
}

// scheduleFileAdded tells the listing about the new file after the
// reload delay. Caller holds mu.
func (m *Manager) scheduleFileAdded(name, body string) {
	bus := m.eventBus
	m.scheduler.AfterFunc(m.reloadDelay, func() {
		if bus != nil {
			bus.PublishFileAdded(name, body)
		}
	})
}

// publish sends a transfer event. Caller holds mu.
func (m *Manager) publish(eventType events.EventType, rec *Record, percent int, outcome *Outcome) {
	if m.eventBus == nil {
		return
	}
	ev := &events.TransferEvent{
		BaseEvent: events.BaseEvent{
			EventType: eventType,
			Time:      time.Now(),
		},
		Ticket:  string(rec.Ticket),
		ID:      string(rec.ID),
		Name:    rec.FileName,
		Size:    rec.FileSize,
		Percent: percent,
	}
	if outcome != nil {
		ev.StatusCode = outcome.StatusCode
		ev.Message = outcome.Line
		ev.Error = outcome.Err
	}
	m.eventBus.Publish(ev)
}

// Cancel aborts the transfer registered under id. Canceling an identifier
// with no cancelable transfer is a no-op and returns false.
func (m *Manager) Cancel(id ident.Identifier) bool {
	return m.registry.Cancel(id)
}

// CancelTicket aborts the transfer of one submission.
func (m *Manager) CancelTicket(ticket Ticket) bool {
	m.mu.Lock()
	rec := m.records[ticket]
	m.mu.Unlock()

	if rec == nil {
		return false
	}
	return rec.abort()
}

// CancelAll aborts every cancelable transfer and returns how many were aborted.
func (m *Manager) CancelAll() int {
	n := 0
	for _, id := range m.registry.IDs() {
		if m.registry.Cancel(id) {
			n++
		}
	}
	return n
}

// Wait blocks until every transfer submitted so far is terminal.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	recs := append([]*Record(nil), m.order...)
	m.mu.Unlock()

	for _, rec := range recs {
		select {
		case <-rec.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Active returns the identifiers that can still be canceled.
func (m *Manager) Active() []ident.Identifier {
	return m.registry.IDs()
}

// Record returns the record of a submission.
func (m *Manager) Record(ticket Ticket) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[ticket]
	return rec, ok
}

// Records returns every record in submission order.
func (m *Manager) Records() []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Record(nil), m.order...)
}

// Registry exposes the registry of cancelable transfers.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// GetStats returns the number of transfers per status.
func (m *Manager) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.tally
	for _, rec := range m.order {
		if st := rec.Status(); !st.IsTerminal() {
			s.count(st)
		}
	}
	return s
}

func (s *Stats) count(status Status) {
	switch status {
	case StatusPending:
		s.Pending++
	case StatusSending:
		s.Sending++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	case StatusCanceled:
		s.Canceled++
	}
}

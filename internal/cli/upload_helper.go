package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/events"
	ehttp "github.com/exposerver/exposerver/internal/http"
	"github.com/exposerver/exposerver/internal/ident"
	"github.com/exposerver/exposerver/internal/logging"
	"github.com/exposerver/exposerver/internal/progress"
	"github.com/exposerver/exposerver/internal/transfer"
	"github.com/exposerver/exposerver/internal/upload"
)

// uploadSession ties a manager to the terminal container and an in-memory
// panel used for the final summary.
type uploadSession struct {
	manager *transfer.Manager
	ui      *progress.UploadUI
	panel   *progress.Panel
	bus     *events.EventBus
	logger  *logging.Logger
	journal <-chan struct{}
}

func newUploadSession(ctx context.Context, cfg *config.Config, target string, log *logging.Logger, opts ...transfer.Option) (*uploadSession, error) {
	httpClient, err := ehttp.CreateOptimizedClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	transport, err := upload.NewFromTarget(ctx, target, cfg, httpClient)
	if err != nil {
		return nil, err
	}

	ui := progress.NewUploadUI()
	// Log lines go through mpb so they print above the bars
	log.SetOutput(ui.LogWriter())

	s := &uploadSession{
		ui:     ui,
		panel:  progress.NewPanel(constants.ProgressBarWidth),
		bus:    events.NewEventBus(constants.EventBusDefaultBuffer),
		logger: log,
	}
	log.SetEventBus(s.bus)
	opts = append([]transfer.Option{
		transfer.WithEventBus(s.bus),
		transfer.WithLogger(log),
		transfer.WithReloadDelay(cfg.ReloadDelay),
	}, opts...)
	s.manager = transfer.NewManager(transport, progress.Multi{ui, s.panel}, opts...)
	return s, nil
}

// keepJournal writes the session's events to w until finish.
func (s *uploadSession) keepJournal(w io.Writer) {
	s.journal = events.StartJournal(s.bus, w)
}

// listenForCancels reads identifiers, one per line, and cancels the
// matching upload. "all" cancels every upload in flight.
func (s *uploadSession) listenForCancels(ctx context.Context, r io.Reader, w io.Writer) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "all":
			n := s.manager.CancelAll()
			fmt.Fprintf(w, "Cancelling %d upload(s)\n", n)
		default:
			id := ident.Assign(line)
			if !s.manager.Cancel(id) {
				fmt.Fprintf(w, "No upload in flight with identifier %q (active: %v)\n", id, s.manager.Active())
			}
		}
	}
}

// finish waits for every transfer and the terminal container, then prints
// the summary. It returns an error when any upload did not succeed.
func (s *uploadSession) finish(w io.Writer) error {
	// Cancellation reaches the transfers through their own contexts
	_ = s.manager.Wait(context.Background())
	if n := s.bus.GetDroppedEventCount(); n > 0 {
		s.logger.Warn().Int64("events", n).Msg("Event subscribers fell behind; some events were not delivered")
	}
	s.ui.Wait()
	s.logger.SetEventBus(nil)
	s.bus.Close()
	if s.journal != nil {
		<-s.journal
	}

	stats := s.manager.GetStats()
	fmt.Fprintf(w, "\n%d uploaded, %d failed, %d canceled\n", stats.Succeeded, stats.Failed, stats.Canceled)
	if !s.ui.IsTerminal() {
		_ = s.panel.Render(w)
	}

	if n := stats.Failed + stats.Canceled; n > 0 {
		return fmt.Errorf("%d of %d upload(s) did not complete", n, stats.Total())
	}
	return nil
}

package events

import (
	"fmt"
	"io"
	"time"
)

// StartJournal subscribes to every event on bus and writes one line per
// started or finished transfer, served file and mirrored warning or error.
// It stops once the bus is closed and every buffered event is written;
// the returned channel is closed then.
func StartJournal(bus *EventBus, w io.Writer) <-chan struct{} {
	ch := bus.SubscribeAll()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range ch {
			if line, ok := journalLine(ev); ok {
				fmt.Fprintln(w, line)
			}
		}
	}()
	return done
}

func journalLine(ev Event) (string, bool) {
	ts := ev.Timestamp().Format(time.RFC3339)

	switch e := ev.(type) {
	case *TransferEvent:
		switch e.EventType {
		case EventTransferQueued:
			return fmt.Sprintf("%s started   %s", ts, e.Name), true
		case EventTransferSucceeded:
			return fmt.Sprintf("%s succeeded %s (%d)", ts, e.Name, e.StatusCode), true
		case EventTransferFailed:
			return fmt.Sprintf("%s failed    %s: %s", ts, e.Name, e.Message), true
		case EventTransferCanceled:
			return fmt.Sprintf("%s canceled  %s", ts, e.Name), true
		}
	case *FileAddedEvent:
		return fmt.Sprintf("%s served    %s", ts, e.Name), true
	case *LogEvent:
		if e.Level >= WarnLevel {
			return fmt.Sprintf("%s %-9s %s", ts, e.Level, e.Message), true
		}
	}
	return "", false
}

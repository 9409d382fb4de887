// Package transfer runs concurrent single-file uploads: one abortable
// network operation per file, tracked in a registry of cancelable
// transfers and mirrored into a progress container.
package transfer

import (
	"context"

	"github.com/google/uuid"

	"github.com/exposerver/exposerver/internal/intake"
)

// Ticket identifies one submission. Unlike the sanitized Identifier it is
// unique, so it stays a safe handle when two names collide.
type Ticket string

func newTicket() Ticket {
	return Ticket(uuid.NewString())
}

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending   Status = "pending"   // Fragment shown, request not started
	StatusSending   Status = "sending"   // Request body is being written
	StatusSucceeded Status = "succeeded" // Server answered 2xx
	StatusFailed    Status = "failed"    // Non-2xx answer or network error
	StatusCanceled  Status = "canceled"  // Aborted before the server answered
)

// IsTerminal reports whether no further events are expected.
func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCanceled
}

// UpdateKind enumerates what a transport reports for one transfer.
type UpdateKind int

const (
	UpdateProgress UpdateKind = iota
	UpdateSucceeded
	UpdateFailed
	UpdateCanceled
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateProgress:
		return "progress"
	case UpdateSucceeded:
		return "succeeded"
	case UpdateFailed:
		return "failed"
	case UpdateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Update is one message on a transfer's update channel. A channel carries
// zero or more UpdateProgress values with non-decreasing Sent, followed by
// exactly one terminal update.
type Update struct {
	Kind       UpdateKind
	Sent       int64  // Bytes handed to the network (progress)
	StatusCode int    // HTTP status (succeeded, failed); 0 for network errors
	Body       string // Response body, possibly truncated
	Err        error  // Transport error (failed without a response)
}

// Response is what the server answered.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx status.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Transport performs one upload. It reads file exactly once, calls
// progress with the cumulative number of bytes sent (non-decreasing), and
// returns the server response. A nil error means a response was received,
// whatever its status. Cancellation is signaled through ctx.
type Transport interface {
	Send(ctx context.Context, file intake.File, progress func(sent int64)) (Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, file intake.File, progress func(sent int64)) (Response, error)

// Send implements Transport.
func (f TransportFunc) Send(ctx context.Context, file intake.File, progress func(sent int64)) (Response, error) {
	return f(ctx, file, progress)
}

// Handle is the abortable reference to an in-flight network operation.
type Handle interface {
	Abort()
}

// cancelHandle aborts by canceling the transfer's context.
type cancelHandle context.CancelFunc

func (h cancelHandle) Abort() { h() }

// terminalUpdate classifies how Send returned. A response always wins over
// a late abort: once the server has answered the outcome is known.
func terminalUpdate(ctx context.Context, resp Response, err error) Update {
	switch {
	case err == nil && resp.OK():
		return Update{Kind: UpdateSucceeded, StatusCode: resp.StatusCode, Body: resp.Body}
	case err == nil:
		return Update{Kind: UpdateFailed, StatusCode: resp.StatusCode, Body: resp.Body}
	case ctx.Err() != nil:
		return Update{Kind: UpdateCanceled, Err: err}
	default:
		return Update{Kind: UpdateFailed, Err: err}
	}
}

package http

import (
	"context"
	"errors"
	"math/rand"
	"net"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/logging"
)

// ErrorType represents different classes of errors for retry strategy
type ErrorType int

const (
	// ErrorTypeSuccess indicates the request succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates the server refused our basic auth (401, 403)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (429, 5xx)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates everything else
	ErrorTypeFatal
)

// String returns a human-readable name for an ErrorType
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify determines the error type of a finished request. resp may be nil
// when err is set.
func Classify(resp *nethttp.Response, err error) ErrorType {
	if err != nil {
		return ClassifyError(err)
	}
	if resp == nil {
		return ErrorTypeFatal
	}
	switch code := resp.StatusCode; {
	case code < 400:
		return ErrorTypeSuccess
	case code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusTooManyRequests || code >= 500 && code != nethttp.StatusNotImplemented:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// ClassifyError determines the error type of a transport error.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}
	if errors.Is(err, context.Canceled) {
		return ErrorTypeFatal
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "forbidden") {
		return ErrorTypeCredential
	}

	return ErrorTypeFatal
}

// CalculateBackoff returns exponential backoff duration with full jitter
//
// Formula: random(0, min(maxDelay, initialDelay * 2^attempt))
func CalculateBackoff(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt <= 0 || initialDelay <= 0 {
		return 0
	}

	base := maxDelay
	if attempt < 31 {
		if d := time.Duration(1<<uint(attempt)) * initialDelay; d < maxDelay {
			base = d
		}
	}

	return time.Duration(rand.Int63n(int64(base)))
}

// retryLogger implements the retryablehttp.LeveledLogger interface
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Only log errors and warnings, not all info
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg("[RETRY] " + msg)
}

// checkRetry retries network and server errors, never credential or client errors.
func checkRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	switch Classify(resp, err) {
	case ErrorTypeNetwork, ErrorTypeRetryable:
		return true, nil
	default:
		return false, nil
	}
}

// backoff adapts CalculateBackoff, honoring Retry-After on 429 and 503.
func backoff(min, max time.Duration, attempt int, resp *nethttp.Response) time.Duration {
	if resp != nil && (resp.StatusCode == nethttp.StatusTooManyRequests || resp.StatusCode == nethttp.StatusServiceUnavailable) {
		return retryablehttp.DefaultBackoff(min, max, attempt, resp)
	}
	return CalculateBackoff(attempt+1, min, max)
}

// NewRetryClient wraps the proxy-aware client with retries for idempotent
// requests (metadata, logs, downloads). Uploads never go through it.
func NewRetryClient(base *nethttp.Client, logger *logging.Logger) *retryablehttp.Client {
	if logger == nil {
		logger = logging.Nop()
	}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = constants.MaxRetries
	retryClient.RetryWaitMin = constants.RetryInitialDelay
	retryClient.RetryWaitMax = constants.RetryMaxDelay
	retryClient.CheckRetry = checkRetry
	retryClient.Backoff = backoff
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.Logger = &retryLogger{logger: logger}
	return retryClient
}

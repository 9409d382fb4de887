package constants

import (
	"time"
)

// Server endpoints exposed by an exposerver instance
const (
	// UploadPath - single-file multipart upload endpoint
	UploadPath = "/upload"

	// UploadFieldName - multipart form field that carries the file
	UploadFieldName = "file"

	// LogsPath - plain-text server log
	LogsPath = "/logs"

	// MetadataPath - JSON metadata for one file (?file=<path>)
	MetadataPath = "/metadata"
)

// Upload behaviour
const (
	// ListingRefreshDelay - delay between a successful upload and the
	// "file added" notification sent to the listing (2 seconds)
	ListingRefreshDelay = 2 * time.Second

	// MaxResponseBody - upper bound on the response body kept for the
	// terminal message of a transfer (64 KB)
	MaxResponseBody = 64 * 1024

	// UpdateChannelBuffer - per-transfer buffer between transport and manager
	UpdateChannelBuffer = 64
)

// Log viewer
const (
	// LogPollInterval - interval between GET /logs polls (2 seconds)
	LogPollInterval = 2 * time.Second
)

// Drop zone
const (
	// WatchDebounce - quiet period after the last filesystem event before
	// a batch of dropped files is submitted
	WatchDebounce = 500 * time.Millisecond

	// WatchRetention - finished uploads kept in the panel while watching
	WatchRetention = 50
)

// Metadata cache
const (
	// MetadataCacheSize - number of metadata responses kept in memory
	MetadataCacheSize = 256
)

// Event System
const (
	// EventBusDefaultBuffer - default buffer size for event channels (1000)
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - maximum buffer size for high-throughput scenarios (5000)
	EventBusMaxBuffer = 5000
)

// UI Updates
const (
	// ProgressRefreshRate - redraw interval of the terminal progress panel
	ProgressRefreshRate = 150 * time.Millisecond

	// ProgressBarWidth - width of the terminal progress panel
	ProgressBarWidth = 80
)

// API and Context Timeouts
const (
	// APIContextTimeout - default timeout for non-upload requests (30 seconds)
	APIContextTimeout = 30 * time.Second

	// ProxyWarmupTimeout - timeout for the optional proxy warmup request
	ProxyWarmupTimeout = 15 * time.Second
)

// Retry configuration for idempotent GET requests (uploads are never retried)
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 3

	// RetryInitialDelay - initial delay before first retry
	RetryInitialDelay = 500 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries
	RetryMaxDelay = 5 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)

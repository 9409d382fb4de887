// Package http builds the HTTP clients used to talk to an exposerver instance.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/logging"
)

// CreateOptimizedClient creates the client used for uploads and downloads.
//
// It starts from ConfigureHTTPClient and then tunes the transport for many
// concurrent long-running bodies:
//   - one connection per concurrent upload to the same host
//   - no compression (uploaded files are sent as-is)
//   - HTTP/2 when talking TLS directly, HTTP/1.1 through a proxy
//
// Set DISABLE_HTTP2=true to force HTTP/1.1, FORCE_HTTP2=true to keep HTTP/2
// through a proxy.
func CreateOptimizedClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	baseClient, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; keep it as configured
		return baseClient, nil
	}

	tr.MaxIdleConns = 256
	tr.MaxIdleConnsPerHost = 64
	tr.MaxConnsPerHost = 0
	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	baseClient.Transport = tr
	return baseClient, nil
}

// proxyActive reports whether requests may go through a proxy.
func proxyActive(cfg *config.Config) bool {
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}

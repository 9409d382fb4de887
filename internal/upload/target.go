package upload

import (
	"context"
	"fmt"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/transfer"
)

// Target is a parsed upload destination.
type Target struct {
	Scheme string // "http", "https", "s3" or "azblob"
	Host   string // Server host, bucket or container
	Prefix string // Key prefix inside a bucket or container
	raw    string
}

// String returns the destination as given.
func (t Target) String() string {
	return t.raw
}

// ParseTarget parses an upload destination. An empty target means the
// configured exposerver.
func ParseTarget(target string, cfg *config.Config) (Target, error) {
	if target == "" {
		target = cfg.ServerURL
	}
	u, err := url.Parse(target)
	if err != nil {
		return Target{}, fmt.Errorf("invalid target %q: %w", target, err)
	}

	t := Target{
		Scheme: strings.ToLower(u.Scheme),
		Host:   u.Host,
		Prefix: strings.Trim(u.Path, "/"),
		raw:    target,
	}
	switch t.Scheme {
	case "http", "https":
		t.Prefix = ""
	case "s3", "azblob":
		if t.Host == "" {
			return Target{}, fmt.Errorf("target %q has no bucket or container", target)
		}
	default:
		return Target{}, fmt.Errorf("unsupported target scheme %q (want http, https, s3 or azblob)", u.Scheme)
	}
	return t, nil
}

// NewFromTarget picks the transport for target. httpClient carries proxy
// settings into every transport.
func NewFromTarget(ctx context.Context, target string, cfg *config.Config, httpClient *nethttp.Client) (transfer.Transport, error) {
	t, err := ParseTarget(target, cfg)
	if err != nil {
		return nil, err
	}

	switch t.Scheme {
	case "s3":
		s3t, err := NewS3Transport(ctx, cfg, httpClient, t.Host, t.Prefix)
		if err != nil {
			return nil, err
		}
		return s3t, nil
	case "azblob":
		azt, err := NewAzureTransport(cfg, httpClient, t.Host, t.Prefix)
		if err != nil {
			return nil, err
		}
		return azt, nil
	default:
		return NewHTTPTransport(httpClient, strings.TrimRight(t.raw, "/"), cfg.AuthUser, cfg.AuthPassword), nil
	}
}

// Package browse talks to the read side of an exposerver: directory
// listings, file metadata and downloads.
package browse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"path"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/events"
	ehttp "github.com/exposerver/exposerver/internal/http"
	"github.com/exposerver/exposerver/internal/logging"
	"github.com/exposerver/exposerver/internal/progress"
)

// Metadata is the tag map the server extracts from a file.
type Metadata map[string]any

// Served is a file that appeared in a listing after an upload.
type Served struct {
	Entry
	Path     string   // Absolute served path, e.g. /upload/20250101120000_a.txt
	Metadata Metadata // Nil when the server could not extract any
}

// cachedMetadata remembers the listing size a metadata answer belongs to.
// Empty when it was fetched without a listing.
type cachedMetadata struct {
	md   Metadata
	size string
}

// StatusError is a non-2xx answer to a read request.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: server returned %d", e.Path, e.StatusCode)
}

// Client reads from one exposerver instance.
type Client struct {
	baseURL  string
	user     string
	password string
	http     *retryablehttp.Client
	cache    *lru.Cache[string, cachedMetadata]
	logger   *logging.Logger
}

// NewClient creates a client for cfg.ServerURL. Requests are retried on
// network and server errors.
func NewClient(cfg *config.Config, httpClient *nethttp.Client, logger *logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if httpClient == nil {
		var err error
		httpClient, err = ehttp.ConfigureHTTPClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
	}
	cache, err := lru.New[string, cachedMetadata](constants.MetadataCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.ServerURL, "/"),
		user:     cfg.AuthUser,
		password: cfg.AuthPassword,
		http:     ehttp.NewRetryClient(httpClient, logger),
		cache:    cache,
		logger:   logger,
	}, nil
}

// URL returns the absolute link to a served path, escaped the way a
// browser would copy it.
func (c *Client) URL(p string) string {
	u := url.URL{Path: "/" + strings.TrimLeft(p, "/")}
	return c.baseURL + u.EscapedPath()
}

// get issues an authenticated GET and checks for a 2xx status.
// The caller closes the body.
func (c *Client) get(ctx context.Context, rawURL string) (*nethttp.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, nethttp.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.user != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	req.Header.Set("Accept-Encoding", "zstd, identity")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Path: req.URL.Path}
	}
	return resp, nil
}

// Metadata returns the tags of a served file. Answers are cached.
func (c *Client) Metadata(ctx context.Context, p string) (Metadata, error) {
	p = servedPath(p)
	if hit, ok := c.cache.Get(p); ok {
		return hit.md, nil
	}

	md, err := c.fetchMetadata(ctx, p)
	if err != nil {
		return nil, err
	}
	c.cache.Add(p, cachedMetadata{md: md})
	return md, nil
}

func (c *Client) fetchMetadata(ctx context.Context, p string) (Metadata, error) {
	resp, err := c.get(ctx, c.baseURL+constants.MetadataPath+"?file="+url.QueryEscape(p))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata for %s: %w", p, err)
	}
	defer resp.Body.Close()

	md := Metadata{}
	if err := json.NewDecoder(resp.Body).Decode(&md); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", p, err)
	}
	return md, nil
}

// Follow re-reads dir every time an upload adds a file and calls onServed
// for each matching file it has not reported yet, until ctx is done or the
// bus closes.
func (c *Client) Follow(ctx context.Context, bus *events.EventBus, dir string, onServed func(Served)) {
	ch := bus.Subscribe(events.EventFileAdded)
	defer bus.Unsubscribe(events.EventFileAdded, ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if added, ok := ev.(*events.FileAddedEvent); ok {
				c.refresh(ctx, dir, added.Name, onServed)
			}
		}
	}
}

// refresh lists dir and reports the files whose name contains name. A file
// counts as reported while its metadata is cached for the size now listed;
// the server reuses a stored name within the same second, so an overwrite
// shows up as a size change.
func (c *Client) refresh(ctx context.Context, dir, name string, onServed func(Served)) {
	entries, err := c.List(ctx, dir)
	if err != nil {
		c.logger.Warnf("Failed to refresh listing: %v", err)
		return
	}
	c.logger.Debug().Int("entries", len(entries)).Str("dir", dir).Msg("Listing refreshed")

	for _, e := range FilterEntries(entries, name) {
		if e.IsDir {
			continue
		}
		p := servedPath(path.Join(dir, e.Href))
		if hit, ok := c.cache.Get(p); ok && hit.size == e.Size {
			continue
		}

		md, err := c.fetchMetadata(ctx, p)
		if err != nil {
			c.logger.Debugf("No metadata for %s: %v", p, err)
		}
		c.cache.Add(p, cachedMetadata{md: md, size: e.Size})
		onServed(Served{Entry: e, Path: p, Metadata: md})
	}
}

func servedPath(p string) string {
	return "/" + strings.TrimLeft(p, "/")
}

// Download streams a served file into w, reporting progress, and returns
// the number of bytes written.
func (c *Client) Download(ctx context.Context, p string, w io.Writer, reporter progress.Reporter) (int64, error) {
	if reporter == nil {
		reporter = progress.NoOpProgress{}
	}

	resp, err := c.get(ctx, c.URL(p))
	if err != nil {
		reporter.Error(err)
		return 0, fmt.Errorf("failed to download %s: %w", p, err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		reporter.Error(err)
		return 0, err
	}
	defer body.Close()

	total := resp.ContentLength
	if resp.Header.Get("Content-Encoding") != "" {
		total = -1
	}
	reporter.Start(total, p)

	n, err := io.Copy(w, progress.NewProgressReader(body, reporter))
	if err != nil {
		reporter.Error(err)
		return n, fmt.Errorf("failed to download %s: %w", p, err)
	}
	reporter.Finish()
	return n, nil
}

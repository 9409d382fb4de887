package browse

import (
	"context"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/net/html"

	"github.com/exposerver/exposerver/internal/constants"
)

// Entry is one row of a directory listing.
type Entry struct {
	Name  string // Display name without the trailing slash
	Href  string // Link as served
	IsDir bool
	Size  string // Human-readable size, "-" for directories
}

// List fetches and parses the listing of a served directory.
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	p := "/" + strings.Trim(dir, "/")
	if p != "/" {
		p += "/"
	}
	resp, err := c.get(ctx, c.URL(p))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", p, err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return parseListing(body)
}

// Logs returns the full server log.
func (c *Client) Logs(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, c.baseURL+constants.LogsPath)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs: %w", err)
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read logs: %w", err)
	}
	return string(data), nil
}

// parseListing extracts the rows of the listing table. Each row is
// <tr><td><a href=...>name</a></td><td>type</td><td>size</td>...</tr>.
func parseListing(r io.Reader) ([]Entry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing: %w", err)
	}

	var entries []Entry
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			if e, ok := parseRow(n); ok {
				entries = append(entries, e)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return entries, nil
}

func parseRow(tr *html.Node) (Entry, bool) {
	var cells []*html.Node
	for child := tr.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.Data == "td" {
			cells = append(cells, child)
		}
	}
	if len(cells) < 3 {
		return Entry{}, false
	}

	link := findElement(cells[0], "a")
	if link == nil {
		return Entry{}, false
	}
	href := attr(link, "href")
	if href == ".." || href == "../" {
		return Entry{}, false
	}
	if unescaped, err := url.PathUnescape(href); err == nil {
		href = unescaped
	}

	isDir := strings.TrimSpace(text(cells[1])) == "Directory"
	return Entry{
		Name:  strings.TrimSuffix(strings.TrimSpace(text(cells[0])), "/"),
		Href:  href,
		IsDir: isDir,
		Size:  strings.TrimSpace(text(cells[2])),
	}, true
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findElement(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(n)
	return sb.String()
}

// decodeBody undoes a zstd or gzip Content-Encoding.
func decodeBody(resp *nethttp.Response) (io.ReadCloser, error) {
	switch enc := strings.ToLower(resp.Header.Get("Content-Encoding")); enc {
	case "", "identity":
		return io.NopCloser(resp.Body), nil
	case "zstd":
		dec, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd body: %w", err)
		}
		return dec.IOReadCloser(), nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip body: %w", err)
		}
		return gz, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}

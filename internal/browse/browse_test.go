package browse

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/events"
)

const listingHTML = `<html><body><table id="file-list"><tbody>
<tr><td><a href=".."><span class="icon icon-dir"></span>..</a></td><td>Directory</td><td>-</td></tr>
<tr><td><a href="docs/"><span class="icon icon-dir"></span>docs/</a></td><td>Directory</td><td>-</td><td></td></tr>
<tr><td><a href="Report%20Q1.pdf"><span class="icon icon-pdf"></span>Report Q1.pdf</a></td><td>File</td><td class="size-cell">9.77 kb</td><td><button class="copy-btn" data-url="Report Q1.pdf">Copy URL</button></td></tr>
<tr><td><a href="notes.txt"><span class="icon icon-text"></span>notes.txt</a></td><td>File</td><td class="size-cell">12.00 B</td><td></td></tr>
</tbody></table></body></html>`

type fakeServer struct {
	metadataCalls atomic.Int32
	logs          atomic.Value
	listing       atomic.Value
}

func newTestClient(t *testing.T, user, pass string) (*Client, *fakeServer) {
	t.Helper()
	fs := &fakeServer{}
	fs.logs.Store("")
	fs.listing.Store(listingHTML)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		switch {
		case r.URL.Path == "/metadata":
			fs.metadataCalls.Add(1)
			if r.URL.Query().Get("file") == "" {
				http.Error(w, "File parameter is missing", http.StatusBadRequest)
				return
			}
			fmt.Fprintf(w, `{"FileName": %q, "ImageWidth": 640}`, r.URL.Query().Get("file"))
		case r.URL.Path == "/logs":
			s := fs.logs.Load().(string)
			if strings.Contains(r.Header.Get("Accept-Encoding"), "zstd") {
				enc, _ := zstd.NewWriter(nil)
				w.Header().Set("Content-Encoding", "zstd")
				_, _ = w.Write(enc.EncodeAll([]byte(s), nil))
				return
			}
			_, _ = io.WriteString(w, s)
		case r.URL.Path == "/":
			_, _ = io.WriteString(w, fs.listing.Load().(string))
		case r.URL.Path == "/Report Q1.pdf":
			w.Header().Set("Content-Length", "5000")
			_, _ = w.Write(bytes.Repeat([]byte("p"), 5000))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.ServerURL = srv.URL
	cfg.AuthUser = user
	cfg.AuthPassword = pass
	c, err := NewClient(cfg, srv.Client(), nil)
	require.NoError(t, err)
	c.http.RetryWaitMin = time.Millisecond
	c.http.RetryWaitMax = time.Millisecond
	return c, fs
}

func TestClient_MetadataCached(t *testing.T) {
	c, fs := newTestClient(t, "", "")
	ctx := context.Background()

	md, err := c.Metadata(ctx, "upload/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/upload/photo.jpg", md["FileName"])
	assert.Equal(t, float64(640), md["ImageWidth"])

	_, err = c.Metadata(ctx, "/upload/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, int32(1), fs.metadataCalls.Load(), "second lookup should hit the cache")

	c.cache.Purge()
	_, err = c.Metadata(ctx, "/upload/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, int32(2), fs.metadataCalls.Load())
}

func TestClient_FollowReportsEachServedFileOnce(t *testing.T) {
	c, fs := newTestClient(t, "", "")
	bus := events.NewEventBus(10)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan Served, 10)
	go c.Follow(ctx, bus, "", func(s Served) { served <- s })

	next := func() Served {
		t.Helper()
		select {
		case s := <-served:
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("no file reported")
			return Served{}
		}
	}

	// Publish until the subscription is in place
	var first atomic.Value
	require.Eventually(t, func() bool {
		bus.PublishFileAdded("notes.txt", "ok")
		select {
		case s := <-served:
			first.Store(s)
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	s := first.Load().(Served)
	assert.Equal(t, "notes.txt", s.Name)
	assert.Equal(t, "/notes.txt", s.Path)
	assert.Equal(t, "/notes.txt", s.Metadata["FileName"])

	// Already reported: only the new file comes through
	bus.PublishFileAdded("notes.txt", "ok")
	bus.PublishFileAdded("Report Q1.pdf", "ok")
	s = next()
	assert.Equal(t, "Report Q1.pdf", s.Name)
	assert.Equal(t, "/Report Q1.pdf", s.Path)
	assert.Equal(t, int32(2), fs.metadataCalls.Load())

	// Same stored name rewritten with other content
	fs.listing.Store(strings.Replace(listingHTML, "12.00 B", "15.00 B", 1))
	bus.PublishFileAdded("notes.txt", "ok")
	s = next()
	assert.Equal(t, "notes.txt", s.Name)
	assert.Equal(t, "15.00 B", s.Size)
	assert.Equal(t, int32(3), fs.metadataCalls.Load())

	// The metadata command reads what Follow cached
	md, err := c.Metadata(ctx, "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "/notes.txt", md["FileName"])
	assert.Equal(t, int32(3), fs.metadataCalls.Load())
}

func TestClient_BasicAuth(t *testing.T) {
	c, _ := newTestClient(t, "alice", "pw")
	_, err := c.Metadata(context.Background(), "x")
	require.NoError(t, err)

	c.password = "wrong"
	c.cache.Purge()
	_, err = c.Metadata(context.Background(), "x")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestClient_List(t *testing.T) {
	c, _ := newTestClient(t, "", "")
	entries, err := c.List(context.Background(), "/")
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, Entry{Name: "docs", Href: "docs/", IsDir: true, Size: "-"}, entries[0])
	assert.Equal(t, Entry{Name: "Report Q1.pdf", Href: "Report Q1.pdf", Size: "9.77 kb"}, entries[1])
	assert.Equal(t, "notes.txt", entries[2].Name)

	assert.Equal(t, []Entry{entries[1]}, FilterEntries(entries, "report"))
}

type recordingReporter struct {
	total    int64
	last     int64
	finished bool
}

func (r *recordingReporter) Start(total int64, _ string) { r.total = total }
func (r *recordingReporter) Update(current int64)        { r.last = current }
func (r *recordingReporter) Finish()                     { r.finished = true }
func (r *recordingReporter) Error(error)                 {}

func TestClient_Download(t *testing.T) {
	c, _ := newTestClient(t, "", "")
	var buf bytes.Buffer
	rep := &recordingReporter{}

	n, err := c.Download(context.Background(), "Report Q1.pdf", &buf, rep)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), n)
	assert.Equal(t, 5000, buf.Len())
	assert.Equal(t, int64(5000), rep.total)
	assert.Equal(t, int64(5000), rep.last)
	assert.True(t, rep.finished)

	_, err = c.Download(context.Background(), "missing.bin", io.Discard, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestClient_LogsZstd(t *testing.T) {
	c, fs := newTestClient(t, "", "")
	fs.logs.Store("line one\nline two\n")

	got, err := c.Logs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", got)
}

func TestClient_URL(t *testing.T) {
	c, _ := newTestClient(t, "", "")
	assert.Equal(t, c.baseURL+"/upload/My%20File%231.txt", c.URL("upload/My File#1.txt"))
	assert.Equal(t, c.baseURL+"/", c.URL(""))
}

func TestFilterEntries(t *testing.T) {
	entries := []Entry{{Name: "Report.PDF"}, {Name: "notes.txt"}, {Name: "report-old.pdf"}, {Name: "docs", IsDir: true}}
	names := func(es []Entry) []string {
		var out []string
		for _, e := range es {
			out = append(out, e.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Report.PDF", "report-old.pdf"}, names(FilterEntries(entries, "RePoRt")))
	assert.Len(t, FilterEntries(entries, ""), 4)
	assert.Empty(t, FilterEntries(entries, "zzz"))
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0.00 B"},
		{1023, "1023.00 B"},
		{1024, "1.00 kb"},
		{10000, "9.77 kb"},
		{5 * 1024 * 1024, "5.00 mb"},
		{3 << 30, "3.00 gb"},
		{2 << 40, "2.00 tb"},
		{2048 << 40, "2048.00 tb"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HumanSize(tt.size), "size %d", tt.size)
	}
}

func TestPreviewable(t *testing.T) {
	assert.Equal(t, PreviewImage, Previewable("photo.JPG"))
	assert.Equal(t, PreviewText, Previewable("notes.md"))
	assert.Equal(t, PreviewText, Previewable("archive.tar.gz"))
	assert.Equal(t, PreviewNone, Previewable("tool.exe"))
	assert.Equal(t, PreviewNone, Previewable("Makefile"))
	assert.Equal(t, "image", PreviewImage.String())
}

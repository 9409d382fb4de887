package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposerver/exposerver/internal/config"
	"github.com/exposerver/exposerver/internal/intake"
	"github.com/exposerver/exposerver/internal/progress"
	"github.com/exposerver/exposerver/internal/transfer"
)

type received struct {
	contentLength int64
	fileName      string
	data          []byte
	user, pass    string
	hasAuth       bool
}

// uploadServer mimics the exposerver upload endpoint.
func uploadServer(t *testing.T, status int, reply string) (*httptest.Server, <-chan received) {
	t.Helper()
	got := make(chan received, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		rec := received{contentLength: r.ContentLength}
		rec.user, rec.pass, rec.hasAuth = r.BasicAuth()

		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "Bad Request: No file found in multipart/form-data.\n")
			return
		}
		defer f.Close()
		rec.fileName = hdr.Filename
		rec.data, _ = io.ReadAll(f)
		got <- rec

		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

type progressLog struct {
	mu   sync.Mutex
	sent []int64
}

func (p *progressLog) report(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *progressLog) values() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int64(nil), p.sent...)
}

func TestHTTPTransport_Success(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, "File 'report.pdf' uploaded and saved as '20240101_report.pdf'.\n")
	payload := bytes.Repeat([]byte("x"), 100000)

	tr := NewHTTPTransport(srv.Client(), srv.URL+"/", "", "")
	var pl progressLog
	resp, err := tr.Send(context.Background(), intake.FromBytes("report.pdf", payload), pl.report)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "File 'report.pdf' uploaded and saved as '20240101_report.pdf'.", resp.Body)
	assert.True(t, resp.OK())

	rec := <-got
	assert.Equal(t, "report.pdf", rec.fileName)
	assert.Equal(t, payload, rec.data)
	assert.Greater(t, rec.contentLength, int64(len(payload)), "exact length must include multipart framing")
	assert.False(t, rec.hasAuth)

	sent := pl.values()
	require.NotEmpty(t, sent)
	assert.Equal(t, int64(len(payload)), sent[len(sent)-1])
	for i := 1; i < len(sent); i++ {
		assert.GreaterOrEqual(t, sent[i], sent[i-1])
	}
}

func TestHTTPTransport_BasicAuth(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, "ok")

	tr := NewHTTPTransport(srv.Client(), srv.URL, "alice", "s3cret")
	_, err := tr.Send(context.Background(), intake.FromBytes("a.txt", []byte("a")), nil)
	require.NoError(t, err)

	rec := <-got
	assert.True(t, rec.hasAuth)
	assert.Equal(t, "alice", rec.user)
	assert.Equal(t, "s3cret", rec.pass)
}

func TestHTTPTransport_ZeroByteFileReportsProgress(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, "ok")

	var pl progressLog
	_, err := NewHTTPTransport(srv.Client(), srv.URL, "", "").
		Send(context.Background(), intake.FromBytes("empty.txt", nil), pl.report)
	require.NoError(t, err)

	rec := <-got
	assert.Empty(t, rec.data)
	assert.Equal(t, []int64{0}, pl.values())
}

func TestHTTPTransport_UnknownSizeIsChunked(t *testing.T) {
	srv, got := uploadServer(t, http.StatusOK, "ok")

	_, err := NewHTTPTransport(srv.Client(), srv.URL, "", "").
		Send(context.Background(), intake.FromReader("stdin", strings.NewReader("streamed")), nil)
	require.NoError(t, err)

	rec := <-got
	assert.Equal(t, int64(-1), rec.contentLength)
	assert.Equal(t, "streamed", string(rec.data))
}

func TestHTTPTransport_RejectedIsResponseNotError(t *testing.T) {
	srv, _ := uploadServer(t, http.StatusInternalServerError, "Internal Server Error: disk full\n")

	resp, err := NewHTTPTransport(srv.Client(), srv.URL, "", "").
		Send(context.Background(), intake.FromBytes("bad.pdf", []byte("x")), nil)
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	assert.Equal(t, "Internal Server Error: disk full", resp.Body)
	assert.False(t, resp.OK())
}

func TestHTTPTransport_BodyTruncated(t *testing.T) {
	srv, _ := uploadServer(t, http.StatusOK, strings.Repeat("y", 200*1024))

	resp, err := NewHTTPTransport(srv.Client(), srv.URL, "", "").
		Send(context.Background(), intake.FromBytes("a", []byte("a")), nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 64*1024)
}

func TestHTTPTransport_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPTransport(nil, url, "", "").
		Send(context.Background(), intake.FromBytes("a", []byte("a")), nil)
	assert.Error(t, err)
}

func TestHTTPTransport_OpenError(t *testing.T) {
	f := intake.File{Name: "gone", Size: 1, Open: func() (io.ReadCloser, error) {
		return nil, errors.New("permission denied")
	}}
	_, err := NewHTTPTransport(nil, "http://127.0.0.1:1", "", "").Send(context.Background(), f, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
}

// End to end: manager, HTTP transport and panel against a live server.
func TestHTTPTransport_WithManager(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.Close()
		if hdr.Filename == "slow.bin" {
			select {
			case <-block:
			case <-r.Context().Done():
				return
			}
		}
		if hdr.Filename == "bad.bin" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, "disk full")
			return
		}
		_, _ = io.WriteString(w, "File '"+hdr.Filename+"' uploaded")
	}))
	defer srv.Close()
	defer close(block)

	panel := progress.NewPanel(10)
	m := transfer.NewManager(NewHTTPTransport(srv.Client(), srv.URL, "", ""), panel)

	tickets := m.SubmitBatch(context.Background(), []intake.File{
		intake.FromBytes("good.bin", bytes.Repeat([]byte("g"), 4096)),
		intake.FromBytes("bad.bin", []byte("b")),
		intake.FromBytes("slow.bin", []byte("s")),
	})
	require.Len(t, tickets, 3)

	good, _ := m.Record(tickets[0])
	bad, _ := m.Record(tickets[1])
	waitRecord(t, good)
	waitRecord(t, bad)

	require.Eventually(t, func() bool { return m.Cancel("slowbin") }, 5*time.Second, 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))

	v, ok := panel.Fragment("goodbin")
	require.True(t, ok)
	assert.Equal(t, "File 'good.bin' uploaded", v.Line)
	assert.Equal(t, 100, v.History[len(v.History)-1])

	v, _ = panel.Fragment("badbin")
	assert.Equal(t, "Error uploading 'bad.bin'. Status: 500 - disk full", v.Line)

	v, _ = panel.Fragment("slowbin")
	assert.Equal(t, "Upload of 'slow.bin' was canceled.", v.Line)
	assert.Equal(t, 0, m.Registry().Len())
}

func waitRecord(t *testing.T, rec *transfer.Record) {
	t.Helper()
	select {
	case <-rec.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %s", rec.FileName)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	data  []byte
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	f.data, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{ETag: aws.String(`"abc"`)}, nil
}

func TestS3Transport_Send(t *testing.T) {
	fake := &fakeS3{}
	tr := newS3Transport(fake, "bucket", "incoming/")

	var pl progressLog
	resp, err := tr.Send(context.Background(), intake.FromBytes("a.txt", []byte("hello")), pl.report)
	require.NoError(t, err)

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Body, "s3://bucket/incoming/a.txt")
	assert.Equal(t, "incoming/a.txt", aws.ToString(fake.input.Key))
	assert.Equal(t, int64(5), aws.ToInt64(fake.input.ContentLength))
	assert.Equal(t, "hello", string(fake.data))
	assert.Equal(t, int64(5), pl.values()[len(pl.values())-1])
}

func TestS3Transport_Rejected(t *testing.T) {
	fake := &fakeS3{err: &awshttp.ResponseError{
		ResponseError: &smithyhttp.ResponseError{
			Response: &smithyhttp.Response{Response: &http.Response{StatusCode: 403}},
			Err:      &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"},
		},
		RequestID: "req-1",
	}}

	resp, err := newS3Transport(fake, "bucket", "").Send(context.Background(), intake.FromBytes("a", []byte("a")), nil)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "Access Denied", resp.Body)
}

func TestS3Transport_NetworkError(t *testing.T) {
	fake := &fakeS3{err: errors.New("dial tcp: connection refused")}
	_, err := newS3Transport(fake, "bucket", "").Send(context.Background(), intake.FromBytes("a", []byte("a")), nil)
	assert.Error(t, err)
}

func TestSeekingCounter_FollowsOffset(t *testing.T) {
	var pl progressLog
	body := newProgressBody(bytes.NewReader([]byte("abcdef")), pl.report)
	rs, ok := body.(io.ReadSeeker)
	require.True(t, ok, "seekable input must stay seekable")

	_, _ = io.ReadAll(rs)
	_, err := rs.Seek(0, io.SeekStart)
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, _ = rs.Read(buf)

	got := pl.values()
	assert.Equal(t, int64(2), got[len(got)-1])
}

type fakeBlob struct {
	container, blob string
	data            []byte
	err             error
}

func (f *fakeBlob) UploadStream(ctx context.Context, container, blob string, body io.Reader, _ *azblob.UploadStreamOptions) (azblob.UploadStreamResponse, error) {
	f.container, f.blob = container, blob
	if f.err != nil {
		return azblob.UploadStreamResponse{}, f.err
	}
	f.data, _ = io.ReadAll(body)
	return azblob.UploadStreamResponse{}, nil
}

func TestAzureTransport_Send(t *testing.T) {
	fake := &fakeBlob{}
	resp, err := newAzureTransport(fake, "uploads", "day1").
		Send(context.Background(), intake.FromBytes("b.bin", []byte("xyz")), nil)
	require.NoError(t, err)

	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, "uploads", fake.container)
	assert.Equal(t, "day1/b.bin", fake.blob)
	assert.Equal(t, "xyz", string(fake.data))
}

func TestAzureTransport_Rejected(t *testing.T) {
	fake := &fakeBlob{err: &azcore.ResponseError{StatusCode: 404, ErrorCode: "ContainerNotFound"}}
	resp, err := newAzureTransport(fake, "missing", "").
		Send(context.Background(), intake.FromBytes("b", []byte("b")), nil)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "ContainerNotFound", resp.Body)
}

func TestParseTarget(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		target  string
		scheme  string
		host    string
		prefix  string
		wantErr bool
	}{
		{"", "http", "localhost:8000", "", false},
		{"https://files.example.com", "https", "files.example.com", "", false},
		{"s3://bucket/in/coming/", "s3", "bucket", "in/coming", false},
		{"azblob://container", "azblob", "container", "", false},
		{"s3:///nobucket", "", "", "", true},
		{"ftp://host", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, err := ParseTarget(tt.target, cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, got.Scheme)
			assert.Equal(t, tt.host, got.Host)
			assert.Equal(t, tt.prefix, got.Prefix)
		})
	}
}

func TestNewFromTarget(t *testing.T) {
	cfg := config.Default()

	tr, err := NewFromTarget(context.Background(), "http://example.com:8000/", cfg, nil)
	require.NoError(t, err)
	httpT, ok := tr.(*HTTPTransport)
	require.True(t, ok)
	assert.Equal(t, "http://example.com:8000/upload", httpT.uploadURL)

	_, err = NewFromTarget(context.Background(), "azblob://container", cfg, nil)
	assert.Error(t, err, "azure needs credentials")
}

// objectStore answers every request with status and counts the requests.
// Bodies of successful PUTs are kept by object path.
type objectStore struct {
	*httptest.Server
	requests atomic.Int32
	mu       sync.Mutex
	objects  map[string][]byte
}

func newObjectStore(t *testing.T, status int, header, reply string) *objectStore {
	t.Helper()
	st := &objectStore{objects: make(map[string][]byte)}
	st.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st.requests.Add(1)
		data, _ := io.ReadAll(r.Body)
		if status == http.StatusOK {
			st.mu.Lock()
			st.objects[r.URL.Path] = data
			st.mu.Unlock()
			w.Header().Set("ETag", `"etag-1"`)
			w.WriteHeader(status)
			return
		}
		if header != "" {
			w.Header().Set(header, "InternalError")
		}
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(st.Close)
	return st
}

func s3TestConfig(t *testing.T, endpoint string) *config.Config {
	t.Helper()
	missing := filepath.Join(t.TempDir(), "none")
	t.Setenv("AWS_CONFIG_FILE", missing)
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", missing)
	t.Setenv("AWS_PROFILE", "")

	cfg := config.Default()
	cfg.S3Region = "us-east-1"
	cfg.S3Endpoint = endpoint
	cfg.S3AccessKeyID = "AKIDEXAMPLE"
	cfg.S3SecretAccessKey = "secret"
	return cfg
}

const s3InternalError = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>InternalError</Code><Message>disk full</Message><RequestId>r1</RequestId></Error>`

func TestS3Transport_RejectedIsSentOnce(t *testing.T) {
	store := newObjectStore(t, http.StatusInternalServerError, "", s3InternalError)
	tr, err := NewS3Transport(context.Background(), s3TestConfig(t, store.URL), store.Client(), "bucket", "")
	require.NoError(t, err)

	p := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(p, bytes.Repeat([]byte("x"), 4096), 0644))
	file, err := intake.FromPath(p)
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), file, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "disk full", resp.Body)
	assert.Equal(t, int32(1), store.requests.Load())
}

func TestS3Transport_UnseekableBodyOverPlainHTTP(t *testing.T) {
	store := newObjectStore(t, http.StatusOK, "", "")
	tr, err := NewS3Transport(context.Background(), s3TestConfig(t, store.URL), store.Client(), "bucket", "in")
	require.NoError(t, err)

	var pl progressLog
	file := intake.FromReader("piped.log", strings.NewReader("line one\nline two\n"))
	resp, err := tr.Send(context.Background(), file, pl.report)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), store.requests.Load())
	store.mu.Lock()
	assert.Equal(t, "line one\nline two\n", string(store.objects["/bucket/in/piped.log"]))
	store.mu.Unlock()
	got := pl.values()
	require.NotEmpty(t, got)
	assert.Equal(t, int64(18), got[len(got)-1])
}

func TestS3Transport_InMemoryFileOverPlainHTTP(t *testing.T) {
	store := newObjectStore(t, http.StatusInternalServerError, "", s3InternalError)
	tr, err := NewS3Transport(context.Background(), s3TestConfig(t, store.URL), store.Client(), "bucket", "")
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), intake.FromBytes("bad.pdf", []byte("%PDF-1.7")), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(1), store.requests.Load())
}

func TestSpool(t *testing.T) {
	f, n, err := spool(strings.NewReader("abc"))
	require.NoError(t, err)
	defer os.Remove(f.Name())
	defer f.Close()

	assert.Equal(t, int64(3), n)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestAzureTransport_RejectedIsSentOnce(t *testing.T) {
	store := newObjectStore(t, http.StatusInternalServerError, "x-ms-error-code", "")
	cfg := config.Default()
	cfg.AzureAccountURL = store.URL + "/acct?sv=x"

	tr, err := NewAzureTransport(cfg, store.Client(), "uploads", "")
	require.NoError(t, err)

	resp, err := tr.Send(context.Background(), intake.FromBytes("b.bin", []byte("xyz")), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "InternalError", resp.Body)
	assert.Equal(t, int32(1), store.requests.Load())
}

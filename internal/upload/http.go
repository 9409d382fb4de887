// Package upload implements the transports that carry one file to its
// destination: the exposerver upload endpoint or an object store.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"strings"

	"github.com/exposerver/exposerver/internal/constants"
	"github.com/exposerver/exposerver/internal/intake"
	"github.com/exposerver/exposerver/internal/transfer"
)

// HTTPTransport posts each file as multipart/form-data to <server>/upload.
type HTTPTransport struct {
	client    *nethttp.Client
	uploadURL string
	user      string
	password  string
}

// NewHTTPTransport creates a transport for the exposerver at serverURL.
// A non-empty user enables HTTP basic auth.
func NewHTTPTransport(client *nethttp.Client, serverURL, user, password string) *HTTPTransport {
	if client == nil {
		client = nethttp.DefaultClient
	}
	return &HTTPTransport{
		client:    client,
		uploadURL: strings.TrimSuffix(serverURL, "/") + constants.UploadPath,
		user:      user,
		password:  password,
	}
}

// Send implements transfer.Transport.
func (t *HTTPTransport) Send(ctx context.Context, file intake.File, progress func(sent int64)) (transfer.Response, error) {
	content, err := file.Open()
	if err != nil {
		return transfer.Response{}, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer content.Close()

	body, contentType, length, err := multipartBody(file, &countingReader{r: content, progress: progress})
	if err != nil {
		return transfer.Response{}, err
	}

	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, t.uploadURL, body)
	if err != nil {
		return transfer.Response{}, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.ContentLength = length
	req.Header.Set("Content-Type", contentType)
	if t.user != "" {
		req.SetBasicAuth(t.user, t.password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return transfer.Response{}, err
	}
	defer resp.Body.Close()

	text, err := readBody(resp.Body)
	if err != nil {
		return transfer.Response{}, fmt.Errorf("failed to read upload response: %w", err)
	}
	return transfer.Response{StatusCode: resp.StatusCode, Body: text}, nil
}

// multipartBody frames content as a single "file" part. The length is exact
// when the file size is known and -1 otherwise, which makes the request chunked.
func multipartBody(file intake.File, content io.Reader) (io.Reader, string, int64, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if _, err := mw.CreateFormFile(constants.UploadFieldName, file.Name); err != nil {
		return nil, "", 0, fmt.Errorf("failed to create multipart header: %w", err)
	}
	head := append([]byte(nil), buf.Bytes()...)

	buf.Reset()
	if err := mw.Close(); err != nil {
		return nil, "", 0, fmt.Errorf("failed to close multipart body: %w", err)
	}
	tail := append([]byte(nil), buf.Bytes()...)

	length := int64(-1)
	if file.Size >= 0 {
		length = int64(len(head)) + file.Size + int64(len(tail))
	}
	body := io.MultiReader(bytes.NewReader(head), content, bytes.NewReader(tail))
	return body, mw.FormDataContentType(), length, nil
}

// readBody reads at most MaxResponseBody bytes of a response.
func readBody(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, constants.MaxResponseBody))
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// countingReader reports the cumulative number of file bytes read. EOF is
// always reported, so an empty file still produces one progress call.
type countingReader struct {
	r        io.Reader
	progress func(int64)
	sent     int64
	eof      bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.sent += int64(n)
		c.report()
	}
	if err == io.EOF && !c.eof {
		c.eof = true
		if n == 0 {
			c.report()
		}
	}
	return n, err
}

func (c *countingReader) report() {
	if c.progress != nil {
		c.progress(c.sent)
	}
}

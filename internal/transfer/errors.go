package transfer

import (
	"errors"
	"fmt"
)

// ErrNetwork marks a transfer that ended without any response from the server.
var ErrNetwork = errors.New("network error")

// RejectedError describes a non-2xx answer to an upload.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Body)
}

// Message lines rendered in place of a finished fragment.

func succeededLine(body string) string {
	return body
}

func rejectedLine(name string, statusCode int, body string) string {
	line := fmt.Sprintf("Error uploading '%s'. Status: %d", name, statusCode)
	if body != "" {
		line += " - " + body
	}
	return line
}

func networkErrorLine(name string) string {
	return fmt.Sprintf("Network error uploading file '%s'.", name)
}

func canceledLine(name string) string {
	return fmt.Sprintf("Upload of '%s' was canceled.", name)
}

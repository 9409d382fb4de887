package browse

import (
	"fmt"
	"path"
	"strings"
)

// FilterEntries keeps the rows whose name contains query, ignoring case.
// An empty query keeps everything.
func FilterEntries(entries []Entry, query string) []Entry {
	query = strings.ToLower(query)
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), query) {
			kept = append(kept, e)
		}
	}
	return kept
}

var sizeUnits = []string{"B", "kb", "mb", "gb", "tb"}

// HumanSize formats a byte count the way the server listing does:
// two decimals, 1024-based units, topping out at tb.
func HumanSize(size int64) string {
	v := float64(size)
	unit := sizeUnits[0]
	for _, u := range sizeUnits {
		unit = u
		if v < 1024 {
			break
		}
		if u != sizeUnits[len(sizeUnits)-1] {
			v /= 1024
		}
	}
	return fmt.Sprintf("%.2f %s", v, unit)
}

// Preview is how a file can be shown inline.
type Preview int

const (
	PreviewNone Preview = iota
	PreviewImage
	PreviewText
)

func (p Preview) String() string {
	switch p {
	case PreviewImage:
		return "image"
	case PreviewText:
		return "text"
	default:
		return "none"
	}
}

var previewExtensions = map[string]Preview{}

func init() {
	for _, ext := range []string{"jpg", "jpeg", "png", "gif", "svg", "bmp", "webp"} {
		previewExtensions[ext] = PreviewImage
	}
	for _, ext := range []string{
		"txt", "md", "py", "js", "css", "html", "json", "xml", "sh", "bat", "log",
		"pdf", "doc", "docx", "xls", "xlsx", "ppt", "pptx", "odt", "ods", "odp", "rtf", "csv",
		"mp3", "wav", "ogg", "mp4", "avi", "mov", "mkv", "psd", "crt", "gz", "zip",
		"php", "cpp", "jar", "key",
	} {
		previewExtensions[ext] = PreviewText
	}
}

// Previewable classifies a file name by its extension.
func Previewable(name string) Preview {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	return previewExtensions[ext]
}

// Package intake turns user selections into upload batches: paths given on
// the command line (the file picker) and files dropped into a watched
// directory (the drop zone). Both produce []File for the upload manager.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrIsDirectory is returned when a selected path is a directory.
var ErrIsDirectory = errors.New("is a directory")

// File is one selected file. Open is called once, by the transport.
type File struct {
	Name string // Base name sent as the multipart filename
	Path string // Local path, empty for in-memory files
	Size int64  // Negative when the length is unknown
	Open func() (io.ReadCloser, error)
}

// FromPath builds a File from a regular file on disk.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s: %w", path, ErrIsDirectory)
	}
	return File{
		Name: filepath.Base(path),
		Path: path,
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromBytes builds an in-memory File.
func FromBytes(name string, data []byte) File {
	return File{
		Name: name,
		Size: int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return bytesFile{bytes.NewReader(data)}, nil
		},
	}
}

// bytesFile keeps in-memory content seekable for transports that rewind.
type bytesFile struct {
	*bytes.Reader
}

func (bytesFile) Close() error { return nil }

// FromReader builds a File of unknown length backed by r (e.g. stdin).
func FromReader(name string, r io.Reader) File {
	return File{
		Name: name,
		Size: -1,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(r), nil
		},
	}
}

// FromPaths expands glob patterns and returns one File per distinct path,
// in argument order. Directories are rejected.
func FromPaths(patterns []string) ([]File, error) {
	paths, err := expandGlobPatterns(patterns)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		f, err := FromPath(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// expandGlobPatterns expands glob patterns into absolute file paths.
// Literal paths are used as-is; duplicates are dropped.
func expandGlobPatterns(patterns []string) ([]string, error) {
	var expanded []string
	seen := make(map[string]bool)

	add := func(p string) error {
		absPath, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", p, err)
		}
		if !seen[absPath] {
			expanded = append(expanded, absPath)
			seen[absPath] = true
		}
		return nil
	}

	for _, pattern := range patterns {
		if !strings.ContainsAny(pattern, "*?[]") {
			if err := add(pattern); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match pattern: %s", pattern)
		}
		for _, match := range matches {
			if err := add(match); err != nil {
				return nil, err
			}
		}
	}

	return expanded, nil
}

package intake

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestFromPaths(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "aaa")
	writeFile(t, dir, "b.txt", "bb")
	writeFile(t, dir, "c.log", "c")

	files, err := FromPaths([]string{a, filepath.Join(dir, "*.txt")})
	require.NoError(t, err)
	require.Len(t, files, 2, "a.txt must not appear twice")

	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, int64(3), files[0].Size)
	assert.Equal(t, "b.txt", files[1].Name)

	rc, err := files[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "bb", string(data))
}

func TestFromPaths_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := FromPaths([]string{filepath.Join(dir, "*.none")})
	assert.Error(t, err, "pattern without matches")

	_, err = FromPaths([]string{dir})
	assert.True(t, errors.Is(err, ErrIsDirectory), "directory should be rejected, got %v", err)

	_, err = FromPaths([]string{filepath.Join(dir, "missing.txt")})
	assert.Error(t, err)
}

func TestFromBytesAndReader(t *testing.T) {
	f := FromBytes("empty.bin", nil)
	assert.Equal(t, int64(0), f.Size)

	r := FromReader("stdin", nil)
	assert.Equal(t, int64(-1), r.Size)
}

func TestWatcher_SubmitsDebouncedBatch(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var batches [][]File
	got := make(chan struct{}, 1)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx, func(_ context.Context, files []File) {
			mu.Lock()
			batches = append(batches, files)
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		})
	}()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)

	writeFile(t, dir, "one.txt", "1")
	writeFile(t, dir, "two.txt", "22")
	writeFile(t, dir, ".swp", "ignored")

	seen := func() map[string]bool {
		mu.Lock()
		defer mu.Unlock()
		names := map[string]bool{}
		for _, b := range batches {
			for _, f := range b {
				names[f.Name] = true
			}
		}
		return names
	}

	deadline := time.After(5 * time.Second)
	for {
		names := seen()
		if names["one.txt"] && names["two.txt"] {
			break
		}
		select {
		case <-got:
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timeout waiting for batch, saw %v", names)
		}
	}

	cancel()
	require.NoError(t, <-errCh)
	assert.False(t, seen()[".swp"])
}

func TestWatcher_CollectWaitsForStableSize(t *testing.T) {
	dir := t.TempDir()
	w := NewWatcher(dir, time.Millisecond, nil)
	growing := writeFile(t, dir, "video.mp4", "part")
	pending := map[string]int64{
		growing:                        -1,
		filepath.Join(dir, "gone.txt"): -1,
		dir:                            -1,
	}

	assert.Empty(t, w.collect(pending), "first sighting only records the size")
	assert.Equal(t, map[string]int64{growing: 4}, pending)

	f, err := os.OpenFile(growing, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(" two")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Empty(t, w.collect(pending), "a file still growing stays pending")
	assert.Equal(t, int64(8), pending[growing])

	batch := w.collect(pending)
	require.Len(t, batch, 1)
	assert.Equal(t, "video.mp4", batch[0].Name)
	assert.Equal(t, int64(8), batch[0].Size)
	assert.Empty(t, pending)
}

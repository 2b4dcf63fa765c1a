package logdata

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/encoding"
	"github.com/klogg-go/klogg/internal/watch"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestOpenIndexesExistingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\ndef\nghi\n"), 0o644))

	ld, err := Open(path, config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer ld.Close()

	assert.Equal(t, int64(3), ld.LineCount())
	text, err := ld.LineText(1)
	require.NoError(t, err)
	assert.Equal(t, "def\n", text)
}

func TestLineByteRangeOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0o644))

	ld, err := Open(path, config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer ld.Close()

	_, _, err = ld.LineByteRange(5)
	assert.Error(t, err)
}

func TestSetEncodingOverridesButDetectedPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0o644))

	ld, err := Open(path, config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer ld.Close()

	detected := ld.DetectedEncoding()
	ld.SetEncoding(encoding.UTF16LE)
	assert.Equal(t, encoding.UTF16LE, ld.Encoding())
	assert.Equal(t, detected, ld.DetectedEncoding())
}

func TestAppendedEventGrowsLineCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0o644))

	w := watch.New(10*time.Millisecond, 5*time.Millisecond, 64<<10, nil, nil)
	defer w.Close()

	ld, err := Open(path, config.DefaultConfig(), w, nil)
	require.NoError(t, err)
	defer ld.Close()

	require.NoError(t, os.WriteFile(path, []byte("abc\ndef\n"), 0o644))

	waitFor(t, time.Second, func() bool { return ld.LineCount() == 2 })
}

func TestRotationResetsLineCountAndEmitsRotated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("aaaaaaaaaaaaaaaaaaaaaaaaaa\n"), 0o644))

	w := watch.New(10*time.Millisecond, 5*time.Millisecond, 64<<10, nil, nil)
	defer w.Close()

	ld, err := Open(path, config.DefaultConfig(), w, nil)
	require.NoError(t, err)
	defer ld.Close()

	var mu sync.Mutex
	rotated := false
	reg := ld.AttachListener(func(e Event) {
		if e.Kind == EventRotated {
			mu.Lock()
			rotated = true
			mu.Unlock()
		}
	})
	defer reg.Close()

	require.NoError(t, os.WriteFile(path, []byte("zzz\n"), 0o644))

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return rotated
	})
	assert.Equal(t, int64(1), ld.LineCount())
}

func TestRemovedMarksSourceMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\n"), 0o644))

	w := watch.New(10*time.Millisecond, 5*time.Millisecond, 64<<10, nil, nil)
	defer w.Close()

	ld, err := Open(path, config.DefaultConfig(), w, nil)
	require.NoError(t, err)
	defer ld.Close()

	require.NoError(t, os.Remove(path))

	waitFor(t, time.Second, func() bool { return ld.SourceMissing() })
}

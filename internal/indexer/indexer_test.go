package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/encoding"
	"github.com/klogg-go/klogg/internal/source"
	"github.com/klogg-go/klogg/internal/store"
)

func openWith(t *testing.T, contents string) (*source.FileByteSource, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	s, err := source.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newTestIndexer(t *testing.T, contents string) (*Indexer, *store.Store) {
	t.Helper()
	s, _ := openWith(t, contents)
	st := store.New(4)
	cfg := config.DefaultConfig()
	cfg.ReadBufferSize = 4 // force multi-buffer scans in tests
	return New(s, st, cfg, nil), st
}

// spec.md §8 scenario 1.
func TestScenario1NoTrailingNewlineThenAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc\nde\nf"), 0o644))
	src, err := source.Open(path)
	require.NoError(t, err)
	defer src.Close()

	st := store.New(128)
	cfg := config.DefaultConfig()
	ix := New(src, st, cfg, nil)

	require.NoError(t, ix.RunInitial(context.Background()))
	assert.Equal(t, int64(2), st.Size())
	assert.Equal(t, uint64(0), st.At(0))
	assert.Equal(t, uint64(4), st.At(1))

	// Append a trailing newline and re-index the delta.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, src.Reopen())

	require.NoError(t, ix.RunDelta(context.Background(), 8))
	assert.Equal(t, int64(3), st.Size())
	assert.Equal(t, []uint64{0, 4, 7}, []uint64{st.At(0), st.At(1), st.At(2)})
}

// spec.md §8 scenario 2.
func TestScenario2OnlyTerminators(t *testing.T) {
	ix, st := newTestIndexer(t, "\n\n\n")
	require.NoError(t, ix.RunInitial(context.Background()))
	assert.Equal(t, int64(3), st.Size())
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{st.At(0), st.At(1), st.At(2)})
}

func TestEmptyFileHasZeroLines(t *testing.T) {
	ix, st := newTestIndexer(t, "")
	require.NoError(t, ix.RunInitial(context.Background()))
	assert.Equal(t, int64(0), st.Size())
}

func TestMaxLineLengthSplitsVirtualLines(t *testing.T) {
	src, _ := openWith(t, "aaaaaaaaaa\n") // 10 'a's then newline
	st := store.New(128)
	cfg := config.DefaultConfig()
	cfg.MaxLineLength = 4
	ix := New(src, st, cfg, nil)

	require.NoError(t, ix.RunInitial(context.Background()))
	// Virtual splits commit lines starting at 0 and 4; the real newline at
	// byte 10 commits the line starting at 8. The line starting at 11
	// (after the newline, with no data following it) stays pending.
	assert.Equal(t, int64(3), st.Size())
	assert.Equal(t, uint64(0), st.At(0))
	assert.Equal(t, uint64(4), st.At(1))
	assert.Equal(t, uint64(8), st.At(2))
}

func TestEncodingSpeculationDetectsUTF8(t *testing.T) {
	src, _ := openWith(t, "caf\xc3\xa9\n")
	st := store.New(128)
	cfg := config.DefaultConfig()
	ix := New(src, st, cfg, nil)
	require.NoError(t, ix.RunInitial(context.Background()))
	assert.Equal(t, encoding.UTF8, ix.Encoding())
}

func TestProgressEventsFire(t *testing.T) {
	ix, _ := newTestIndexer(t, "abc\ndef\nghi\n")
	var events []Progress
	ix.OnProgress(func(p Progress) { events = append(events, p) })
	require.NoError(t, ix.RunInitial(context.Background()))
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, int64(3), last.LineCount)
}

func TestRunInitialCancellation(t *testing.T) {
	ix, _ := newTestIndexer(t, "abc\ndef\nghi\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ix.RunInitial(ctx)
	assert.Error(t, err)
}

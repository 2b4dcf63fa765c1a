package filtered

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/logdata"
	"github.com/klogg-go/klogg/internal/regexengine"
	"github.com/klogg-go/klogg/internal/search"
)

func TestFilteredLogDataDelegatesToParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\nERROR two\nthree\nERROR four\n"), 0o644))

	ld, err := logdata.Open(path, config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer ld.Close()

	e := search.New(config.DefaultConfig(), nil, nil)
	h, err := e.Start(ld, "^ERROR", regexengine.Flags{}, search.Options{})
	require.NoError(t, err)
	require.NoError(t, h.Wait(context.Background()))

	fld := New(ld, h.FilteredIndex())
	defer fld.Close()

	require.Equal(t, int64(2), fld.LineCount())

	text, err := fld.LineText(0)
	require.NoError(t, err)
	assert.Equal(t, "ERROR two\n", text)

	text, err = fld.LineText(1)
	require.NoError(t, err)
	assert.Equal(t, "ERROR four\n", text)

	src, err := fld.SourceLine(1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), src)

	assert.Equal(t, ld.FileId(), fld.FileId())
}

func TestFilteredLogDataOutOfRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\n"), 0o644))
	ld, err := logdata.Open(path, config.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	defer ld.Close()

	fld := New(ld, search.NewFilteredIndex())
	defer fld.Close()

	_, err = fld.LineText(0)
	assert.Error(t, err)
}

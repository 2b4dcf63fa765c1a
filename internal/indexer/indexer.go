/*
Package indexer implements the Indexer component: reads from a Byte
Source in bounded chunks, finds line terminators, feeds bytes to the
Encoding Speculator, and appends offsets to the Compressed Line Offset
Store (spec.md §4.3), grounded on mpenkov-bsearch/index.go's
generateBlockIndex/generateLineIndex buffered scanning loop, generalized
from "index one full pass over a static file" to "index an initial pass
plus repeatable delta passes over a growing file."
*/
package indexer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/encoding"
	"github.com/klogg-go/klogg/internal/kloggerr"
	"github.com/klogg-go/klogg/internal/notify"
	"github.com/klogg-go/klogg/internal/source"
	"github.com/klogg-go/klogg/internal/store"
)

// Progress reports the indexer's position, matching spec.md's
// IndexingState (bytes_indexed, line_count); encoding_guess is exposed
// through the separate Encoding accessor. The partial_tail length is kept
// internally and is not exposed.
type Progress struct {
	BytesIndexed int64
	LineCount    int64
}

// Indexer is the single-writer task that populates a Store from a
// ByteSource. One Indexer instance belongs to exactly one LogData
// generation; RunInitial starts a fresh pass, RunDelta continues an
// already-indexed file from its prior end.
type Indexer struct {
	cfg   *config.Config
	src   source.ByteSource
	store *store.Store
	spec  *encoding.Speculator

	logger   *zerolog.Logger
	progress *notify.Hub[Progress]
	errors   *notify.Hub[error]

	bytesIndexed     int64
	lineStart        int64
	currentLineLen   int64
	encodingBytesFed int64
	encodingFrozen   bool
}

// New returns an Indexer over src, appending into st, using cfg's buffer
// size / max line length / encoding sample size / progress cadence.
func New(src source.ByteSource, st *store.Store, cfg *config.Config, logger *zerolog.Logger) *Indexer {
	return &Indexer{
		cfg:      cfg,
		src:      src,
		store:    st,
		spec:     encoding.NewSpeculator(),
		logger:   logger,
		progress: notify.NewHub[Progress](),
		errors:   notify.NewHub[error](),
	}
}

// OnProgress registers a listener for progress events.
func (ix *Indexer) OnProgress(fn func(Progress)) *notify.Registration {
	return ix.progress.Register(fn)
}

// OnError registers a listener for read errors encountered mid-index.
func (ix *Indexer) OnError(fn func(error)) *notify.Registration {
	return ix.errors.Register(fn)
}

// Encoding returns the speculator's current best guess.
func (ix *Indexer) Encoding() encoding.Encoding {
	return ix.spec.Guess()
}

// BytesIndexed returns the number of bytes scanned so far.
func (ix *Indexer) BytesIndexed() int64 {
	return ix.bytesIndexed
}

// RunInitial scans the entire file from byte 0. Line 0 is seeded to start
// at offset 0 (spec.md §4.3), but — as the worked examples in spec.md §8
// pin down — that seed is a pending line start, not an immediate store
// entry: it is only appended once line 0's own terminator is found, so an
// empty file or a file whose only content is an untermined partial line
// correctly reports line_count == 0, not 1.
func (ix *Indexer) RunInitial(ctx context.Context) error {
	ix.lineStart = 0
	ix.currentLineLen = 0
	ix.bytesIndexed = 0
	ix.encodingBytesFed = 0
	ix.encodingFrozen = false
	return ix.runFrom(ctx, 0)
}

// RunDelta scans only the bytes appended since fromOffset (the file's
// prior size), resuming mid-line exactly where indexing left off.
func (ix *Indexer) RunDelta(ctx context.Context, fromOffset int64) error {
	return ix.runFrom(ctx, fromOffset)
}

func (ix *Indexer) runFrom(ctx context.Context, from int64) error {
	buf := make([]byte, ix.cfg.ReadBufferSize)
	pos := from
	lastProgressBytes := ix.bytesIndexed
	lastProgressTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return kloggerr.New(kloggerr.KindCancelled, ctx.Err())
		default:
		}

		n, err := ix.src.ReadAt(buf, pos)
		if err != nil && !isEOF(err) {
			wrapped := err
			if !kloggerr.Is(wrapped, kloggerr.KindSourceReadError) && !kloggerr.Is(wrapped, kloggerr.KindSourceUnavailable) {
				wrapped = kloggerr.New(kloggerr.KindSourceReadError, err)
			}
			ix.errors.Emit(wrapped)
			return wrapped
		}
		eof := isEOF(err)
		data := buf[:n]

		ix.feedEncoding(data)
		ix.scan(data, pos)

		pos += int64(n)
		ix.bytesIndexed = pos

		if pos-lastProgressBytes >= ix.cfg.ProgressByteInterval ||
			time.Since(lastProgressTime) >= ix.cfg.ProgressTimeInterval {
			ix.emitProgress()
			lastProgressBytes = pos
			lastProgressTime = time.Now()
		}

		if eof {
			break
		}
	}
	ix.emitProgress()
	return nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

func (ix *Indexer) emitProgress() {
	ix.progress.Emit(Progress{
		BytesIndexed: ix.bytesIndexed,
		LineCount:    ix.store.Size(),
	})
}

func (ix *Indexer) feedEncoding(data []byte) {
	if ix.encodingFrozen {
		return
	}
	remaining := ix.cfg.EncodingSampleSize - ix.encodingBytesFed
	if remaining <= 0 {
		ix.encodingFrozen = true
		return
	}
	n := int64(len(data))
	if n > remaining {
		n = remaining
	}
	ix.spec.InjectBytes(data[:n])
	ix.encodingBytesFed += n
	if ix.encodingBytesFed >= ix.cfg.EncodingSampleSize {
		ix.encodingFrozen = true
	}
}

// scan finds line boundaries in data (which begins at absolute offset
// bufStart). A line is committed to the store only once its own
// boundary — a real '\n' or a forced split at cfg.MaxLineLength — is
// found: the store entry written is the line's start (ix.lineStart, left
// over from the previous boundary), not the boundary just found. This
// one-boundary lag is what makes an unterminated trailing line invisible
// to Size() until it is itself terminated, matching spec.md §8 scenario
// 1 (line_count stays 2 for "abc\nde\nf" until a trailing "\n" arrives).
func (ix *Indexer) scan(data []byte, bufStart int64) {
	i := 0
	for i < len(data) {
		nlRel := bytes.IndexByte(data[i:], '\n')
		isNewline := nlRel != -1

		var distanceToEvent int64
		if isNewline {
			distanceToEvent = int64(nlRel)
		} else {
			distanceToEvent = int64(len(data) - i)
		}
		toSplit := int64(ix.cfg.MaxLineLength) - ix.currentLineLen

		if toSplit <= distanceToEvent {
			splitAbs := bufStart + int64(i) + toSplit
			ix.commitLine(splitAbs)
			i += int(toSplit)
			continue
		}

		if isNewline {
			termAbs := bufStart + int64(i) + int64(nlRel)
			ix.commitLine(termAbs + 1)
			i += nlRel + 1
			continue
		}

		// No terminator and no forced split within the remainder of this
		// buffer: the partial tail just grows.
		ix.currentLineLen += distanceToEvent
		i = len(data)
	}
}

// commitLine appends the line starting at ix.lineStart now that its
// boundary has been found, and advances the pending start to nextStart.
func (ix *Indexer) commitLine(nextStart int64) {
	ix.store.Append(uint64(ix.lineStart))
	ix.lineStart = nextStart
	ix.currentLineLen = 0
}

/*
Package logdata implements the Log Data façade (spec.md §4.4): it combines
a Byte Source, a Compressed Line Offset Store, an Indexer, and the
Encoding Speculator's guess into a single capability surface (line_count,
line_byte_range, line_text, set_encoding, attach_listener), and drives the
live-update state machine off File Watcher events.

Grounded on mpenkov-bsearch/bsearch.go's Searcher: a single struct holding
an io.ReaderAt, an injected *zerolog.Logger, and an optional on-disk Index,
generalized here from "one static dataset plus an optional prebuilt index"
to "one live file plus a continuously maintained index," with the single
lock mpenkov-bsearch.Searcher never needed (its data doesn't change at
runtime) replacing a sync.RWMutex so readers and the indexer can run
concurrently per spec.md §5.
*/
package logdata

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/encoding"
	"github.com/klogg-go/klogg/internal/indexer"
	"github.com/klogg-go/klogg/internal/kloggerr"
	"github.com/klogg-go/klogg/internal/notify"
	"github.com/klogg-go/klogg/internal/source"
	"github.com/klogg-go/klogg/internal/store"
	"github.com/klogg-go/klogg/internal/watch"
)

// EventKind classifies an event delivered to a LogData listener.
type EventKind int

const (
	EventProgress EventKind = iota
	EventChanged
	EventRotated
	EventError
)

// Event is the unified payload spec.md §4.4's attach_listener(fn) delivers
// for indexing progress, file changed, and file rotated notifications.
type Event struct {
	Kind          EventKind
	Progress      indexer.Progress
	SourceMissing bool
	Err           error
}

// LogData is the façade over one file generation's Byte Source, Store,
// Indexer, and encoding state.
type LogData struct {
	cfg     *config.Config
	logger  *zerolog.Logger
	decoder encoding.Decoder

	mu  sync.RWMutex
	src source.ByteSource
	st  *store.Store
	idx *indexer.Indexer

	fileId        source.FileId
	sourceMissing bool
	encOverride   *encoding.Encoding

	indexing atomic.Bool

	events   *notify.Hub[Event]
	watchReg *notify.Registration
	idxRegs  []*notify.Registration

	closeOnce sync.Once
}

// Open opens path, performs an initial index, and (if w is non-nil)
// registers for live updates. cfg and logger may be nil (defaults apply).
func Open(path string, cfg *config.Config, w *watch.Watcher, logger *zerolog.Logger) (*LogData, error) {
	cfg = config.Normalized(cfg)

	src, err := source.Open(path)
	if err != nil {
		return nil, err
	}

	ld := &LogData{
		cfg:     cfg,
		logger:  logger,
		decoder: encoding.DefaultDecoder{},
		src:     src,
		st:      store.New(cfg.BlockSize, store.WithLogger(logger)),
		events:  notify.NewHub[Event](),
	}
	ld.idx = indexer.New(ld.src, ld.st, ld.cfg, ld.logger)
	ld.wireIndexer(ld.idx)

	if id, err := src.Fingerprint(cfg.FingerprintSampleSize); err == nil {
		ld.fileId = id
	}

	ld.indexing.Store(true)
	if err := ld.idx.RunInitial(context.Background()); err != nil {
		ld.indexing.Store(false)
		src.Close()
		return nil, err
	}
	ld.indexing.Store(false)

	if w != nil {
		ld.watchReg = w.Watch(path, ld.handleWatchEvent)
	}

	return ld, nil
}

func (ld *LogData) wireIndexer(idx *indexer.Indexer) {
	ld.idxRegs = append(ld.idxRegs,
		idx.OnProgress(func(p indexer.Progress) {
			ld.events.Emit(Event{Kind: EventProgress, Progress: p})
		}),
		idx.OnError(func(err error) {
			ld.events.Emit(Event{Kind: EventError, Err: err})
		}),
	)
}

// AttachListener registers fn for progress, changed, and rotated events.
func (ld *LogData) AttachListener(fn func(Event)) *notify.Registration {
	return ld.events.Register(fn)
}

// LineCount returns the number of indexed lines.
func (ld *LogData) LineCount() int64 {
	ld.mu.RLock()
	defer ld.mu.RUnlock()
	return ld.st.Size()
}

// LineByteRange returns [begin, end) for line n; end is the next line's
// start offset, or the file's current size for the last line.
func (ld *LogData) LineByteRange(n int64) (begin, end int64, err error) {
	ld.mu.RLock()
	st, src := ld.st, ld.src
	ld.mu.RUnlock()

	size := st.Size()
	if n < 0 || n >= size {
		return 0, 0, kloggerr.New(kloggerr.KindInternalConsistency, kloggerr.ErrOutOfRange)
	}
	begin = int64(st.At(n))
	if n+1 < size {
		end = int64(st.At(n + 1))
		return begin, end, nil
	}
	fileSize, ferr := src.Size()
	if ferr != nil {
		return 0, 0, ferr
	}
	return begin, fileSize, nil
}

// LineText returns line n decoded under the current encoding.
func (ld *LogData) LineText(n int64) (string, error) {
	begin, end, err := ld.LineByteRange(n)
	if err != nil {
		return "", err
	}
	if end <= begin {
		return "", nil
	}

	ld.mu.RLock()
	src := ld.src
	ld.mu.RUnlock()

	buf := make([]byte, end-begin)
	read, err := src.ReadAt(buf, begin)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return ld.decoder.Decode(buf[:read], ld.Encoding()), nil
}

// SetEncoding overrides the speculated encoding.
func (ld *LogData) SetEncoding(e encoding.Encoding) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	ld.encOverride = &e
}

// Encoding returns the effective encoding: the override if set, else the
// speculator's current guess.
func (ld *LogData) Encoding() encoding.Encoding {
	ld.mu.RLock()
	defer ld.mu.RUnlock()
	if ld.encOverride != nil {
		return *ld.encOverride
	}
	return ld.idx.Encoding()
}

// DetectedEncoding returns the speculator's guess even after SetEncoding
// has overridden it, so a caller can offer "reset to detected."
func (ld *LogData) DetectedEncoding() encoding.Encoding {
	ld.mu.RLock()
	defer ld.mu.RUnlock()
	return ld.idx.Encoding()
}

// FileName returns the path this LogData was opened from.
func (ld *LogData) FileName() string {
	ld.mu.RLock()
	defer ld.mu.RUnlock()
	return ld.src.Path()
}

// FileId returns the identity tuple of the current file generation.
func (ld *LogData) FileId() source.FileId {
	ld.mu.RLock()
	defer ld.mu.RUnlock()
	return ld.fileId
}

// IndexingInProgress reports whether a run_initial/run_delta pass is
// currently executing.
func (ld *LogData) IndexingInProgress() bool {
	return ld.indexing.Load()
}

// SourceMissing reports whether the underlying file is currently absent.
func (ld *LogData) SourceMissing() bool {
	ld.mu.RLock()
	defer ld.mu.RUnlock()
	return ld.sourceMissing
}

// handleWatchEvent drives the live-update state machine of spec.md §4.4.
func (ld *LogData) handleWatchEvent(ev watch.Event) {
	switch ev.Kind {
	case watch.EventRemoved:
		ld.mu.Lock()
		ld.sourceMissing = true
		ld.mu.Unlock()
		ld.events.Emit(Event{Kind: EventChanged, SourceMissing: true})

	case watch.EventAppended:
		ld.mu.Lock()
		wasMissing := ld.sourceMissing
		ld.sourceMissing = false
		ld.mu.Unlock()
		if wasMissing {
			ld.reopenAndReindex()
			return
		}
		ld.runDelta()

	case watch.EventRotated:
		ld.mu.Lock()
		ld.sourceMissing = false
		ld.mu.Unlock()
		ld.reopenAndReindex()
	}
}

func (ld *LogData) runDelta() {
	ld.mu.RLock()
	idx := ld.idx
	ld.mu.RUnlock()

	fromOffset := idx.BytesIndexed()

	ld.indexing.Store(true)
	defer ld.indexing.Store(false)

	if err := idx.RunDelta(context.Background(), fromOffset); err != nil {
		ld.events.Emit(Event{Kind: EventError, Err: err})
		return
	}
	ld.events.Emit(Event{Kind: EventChanged})
}

// reopenAndReindex implements the Truncated/Replaced branch of spec.md
// §4.4: a fresh Store and Indexer replace the old generation's wholesale,
// the source is reopened, run_initial() repopulates the new Store, and
// only then is `rotated` emitted — after the new generation is already
// fully queryable, so a listener reacting to `rotated` never observes a
// half-built index (spec.md §9's pinned auto-refresh/rotation ordering).
func (ld *LogData) reopenAndReindex() {
	ld.mu.RLock()
	src := ld.src
	ld.mu.RUnlock()

	type reopener interface{ Reopen() error }
	if r, ok := src.(reopener); ok {
		if err := r.Reopen(); err != nil {
			ld.events.Emit(Event{Kind: EventError, Err: err})
			return
		}
	}

	newStore := store.New(ld.cfg.BlockSize, store.WithLogger(ld.logger))
	newIdx := indexer.New(src, newStore, ld.cfg, ld.logger)

	ld.indexing.Store(true)
	err := newIdx.RunInitial(context.Background())
	ld.indexing.Store(false)
	if err != nil {
		ld.events.Emit(Event{Kind: EventError, Err: err})
		return
	}

	newId, _ := src.Fingerprint(ld.cfg.FingerprintSampleSize)

	ld.mu.Lock()
	for _, reg := range ld.idxRegs {
		reg.Close()
	}
	ld.idxRegs = nil
	ld.st = newStore
	ld.idx = newIdx
	ld.fileId = newId
	ld.encOverride = nil
	ld.mu.Unlock()

	ld.wireIndexer(newIdx)
	ld.events.Emit(Event{Kind: EventRotated})
}

// Close releases the watch registration and the underlying source. Safe
// to call more than once.
func (ld *LogData) Close() error {
	var err error
	ld.closeOnce.Do(func() {
		if ld.watchReg != nil {
			ld.watchReg.Close()
		}
		ld.mu.RLock()
		src := ld.src
		ld.mu.RUnlock()
		err = src.Close()
	})
	return err
}

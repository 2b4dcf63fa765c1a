/*
Package search implements the Search Engine component (spec.md §4.5): it
runs a compiled regex over a Log-Data-compatible source in batches,
merges worker results in line-number order, and exposes incremental
progress plus a bounded, persistable result cache.

The batch merge point is grounded on bufbuild-protocompile/compiler.go's
executor: a semaphore.Weighted-bounded pool of per-unit goroutines, each
producing a result delivered through a channel, generalized here from
"compile one file, block on its ready channel" to "search one batch of
lines, reorder completed batches by a monotonic batch id before they
become visible." The reorder buffer itself (container/heap keyed by
batch id) has no analogue in the teacher; it is the direct expression of
spec.md §4.5's "reordering completed batches in a small min-heap keyed by
batch id."
*/
package search

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/klogg-go/klogg/internal/config"
	"github.com/klogg-go/klogg/internal/kloggerr"
	"github.com/klogg-go/klogg/internal/logdata"
	"github.com/klogg-go/klogg/internal/notify"
	"github.com/klogg-go/klogg/internal/regexengine"
)

// Status is one state of the SearchState machine (spec.md §3, §4.5).
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusPaused
	StatusCancelled
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusPaused:
		return "Paused"
	case StatusCancelled:
		return "Cancelled"
	case StatusDone:
		return "Done"
	default:
		return "Idle"
	}
}

// SearchState mirrors spec.md §3's SearchState entity.
type SearchState struct {
	BytesSearched int64
	MatchesCount  int64
	Status        Status
	LastError     error
}

// Options configures one search (spec.md §4.5 start(parent, pattern,
// options)).
type Options struct {
	AutoRefresh bool
}

type batchDescriptor struct {
	id         int64
	start, end int64
}

type batchResult struct {
	id       int64
	start    int64
	end      int64
	lines    []int64
	bytesLen int64
	err      error
}

// batchHeap orders pending batchResults by id for the reorder buffer.
type batchHeap []batchResult

func (h batchHeap) Len() int            { return len(h) }
func (h batchHeap) Less(i, j int) bool  { return h[i].id < h[j].id }
func (h batchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *batchHeap) Push(x interface{}) { *h = append(*h, x.(batchResult)) }
func (h *batchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// SearchHandle is the per-search handle spec.md §4.5 returns from start().
type SearchHandle struct {
	parent  logdata.Source
	pattern string
	flags   regexengine.Flags
	re      regexengine.Regex
	cfg     *config.Config
	logger  *zerolog.Logger
	opts    Options

	index *FilteredIndex
	sem   *semaphore.Weighted

	mu            sync.Mutex
	status        Status
	bytesSearched int64
	lastError     error
	nextBatchID   int64
	watermark     int64

	cancel context.CancelFunc
	ctx    context.Context
	wakeCh chan struct{}

	events    *notify.Hub[SearchState]
	parentReg *notify.Registration

	doneOnce sync.Once
	done     chan struct{}
}

// Pattern returns the compiled pattern's source text.
func (h *SearchHandle) Pattern() string { return h.pattern }

// FilteredIndex returns the handle's result index.
func (h *SearchHandle) FilteredIndex() *FilteredIndex { return h.index }

// Progress returns a snapshot of the search's current state.
func (h *SearchHandle) Progress() SearchState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return SearchState{
		BytesSearched: h.bytesSearched,
		MatchesCount:  h.index.Len(),
		Status:        h.status,
		LastError:     h.lastError,
	}
}

// Matches returns the LineNumbers at [start, end).
func (h *SearchHandle) Matches(start, end int64) []int64 {
	return h.index.Range(start, end)
}

// Wait blocks until the search reaches a terminal state (Done or
// Cancelled) or ctx is done, whichever comes first.
func (h *SearchHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnProgress registers a listener for SearchState updates.
func (h *SearchHandle) OnProgress(fn func(SearchState)) *notify.Registration {
	return h.events.Register(fn)
}

// Cancel requests cooperative cancellation; returns promptly, retaining
// the partial FilteredIndex, per spec.md §4.5.
func (h *SearchHandle) Cancel() {
	h.mu.Lock()
	if h.status == StatusDone || h.status == StatusCancelled {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.cancel()
}

// Pause transitions a Running search to Paused explicitly, satisfying
// SPEC_FULL.md §4.5's addition of a caller-driven Pause/Resume pair
// (the original spec.md only ever drives Paused from an I/O error).
func (h *SearchHandle) Pause() {
	h.mu.Lock()
	if h.status != StatusRunning {
		h.mu.Unlock()
		return
	}
	h.status = StatusPaused
	h.mu.Unlock()
	h.emitState()
}

// Resume wakes a Paused search.
func (h *SearchHandle) Resume() {
	h.mu.Lock()
	if h.status != StatusPaused {
		h.mu.Unlock()
		return
	}
	h.status = StatusRunning
	h.mu.Unlock()
	select {
	case h.wakeCh <- struct{}{}:
	default:
	}
	h.emitState()
}

func (h *SearchHandle) emitState() {
	h.events.Emit(h.Progress())
}

// Engine is the per-instance Search Engine (spec.md §9: "the cache is a
// value owned by the Search Engine instance, not a process-wide
// singleton").
type Engine struct {
	cfg    *config.Config
	logger *zerolog.Logger
	engine regexengine.Engine

	cache *resultCache
}

// New returns a Search Engine using re to compile patterns (re may be
// nil, defaulting to regexengine.StdlibEngine{}).
func New(cfg *config.Config, logger *zerolog.Logger, re regexengine.Engine) *Engine {
	cfg = config.Normalized(cfg)
	if re == nil {
		re = regexengine.StdlibEngine{}
	}
	return &Engine{
		cfg:    cfg,
		logger: logger,
		engine: re,
		cache:  newResultCache(cfg.CacheCapacityLines),
	}
}

// Start begins a search over parent for pattern under flags, per spec.md
// §4.5. A regex compile failure is returned synchronously.
func (e *Engine) Start(parent logdata.Source, pattern string, flags regexengine.Flags, opts Options) (*SearchHandle, error) {
	re, err := e.engine.Compile(pattern, flags)
	if err != nil {
		return nil, err
	}

	key := cacheKey{pattern: pattern, flags: flags, fileId: parent.FileId()}
	if !opts.AutoRefresh {
		if lines, ok := e.cache.get(key); ok {
			h := e.newHandle(parent, pattern, flags, re, opts)
			h.index.Append(lines...)
			h.watermark = parent.LineCount()
			h.status = StatusDone
			close(h.done)
			return h, nil
		}
	}

	h := e.newHandle(parent, pattern, flags, re, opts)
	go e.run(h, key, opts.AutoRefresh)
	return h, nil
}

func (e *Engine) newHandle(parent logdata.Source, pattern string, flags regexengine.Flags, re regexengine.Regex, opts Options) *SearchHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &SearchHandle{
		parent:  parent,
		pattern: pattern,
		flags:   flags,
		re:      re,
		cfg:     e.cfg,
		logger:  e.logger,
		opts:    opts,
		index:   NewFilteredIndex(),
		sem:     semaphore.NewWeighted(int64(e.cfg.SearchPoolSize)),
		status:  StatusRunning,
		ctx:     ctx,
		cancel:  cancel,
		wakeCh:  make(chan struct{}, 1),
		events:  notify.NewHub[SearchState](),
		done:    make(chan struct{}),
	}
}

func (e *Engine) run(h *SearchHandle, key cacheKey, autoRefresh bool) {
	defer h.doneOnce.Do(func() { close(h.done) })

	// A listener is attached regardless of auto_refresh so a Paused search
	// (parked after a transient read error) wakes on the next watcher
	// signal, per spec.md §4.5's "resumption occurs on next watcher
	// signal." Only an auto_refresh search reacts to Appended by pulling
	// its target watermark forward; a one-shot search already exits once
	// it reaches the watermark it started with.
	h.parentReg = h.parent.AttachListener(func(ev logdata.Event) {
		switch ev.Kind {
		case logdata.EventChanged:
			select {
			case h.wakeCh <- struct{}{}:
			default:
			}
		case logdata.EventRotated:
			if autoRefresh {
				h.mu.Lock()
				h.index.Reset()
				h.watermark = 0
				h.nextBatchID = 0
				h.bytesSearched = 0
				h.mu.Unlock()
			}
			select {
			case h.wakeCh <- struct{}{}:
			default:
			}
		}
	})
	defer h.parentReg.Close()

	for {
		select {
		case <-h.ctx.Done():
			h.finish(StatusCancelled, nil)
			return
		default:
		}

		h.mu.Lock()
		paused := h.status == StatusPaused
		h.mu.Unlock()
		if paused {
			select {
			case <-h.wakeCh:
				h.mu.Lock()
				if h.status == StatusPaused {
					h.status = StatusRunning
				}
				h.mu.Unlock()
			case <-h.ctx.Done():
				h.finish(StatusCancelled, nil)
				return
			}
			continue
		}

		target := h.parent.LineCount()
		if h.watermark < target {
			newWatermark, err := e.runBatches(h, h.watermark, target)
			h.mu.Lock()
			h.watermark = newWatermark
			h.mu.Unlock()
			if err != nil {
				if kloggerr.Is(err, kloggerr.KindCancelled) {
					h.finish(StatusCancelled, nil)
					return
				}
				h.mu.Lock()
				h.status = StatusPaused
				h.lastError = err
				h.mu.Unlock()
				h.emitState()
			}
		}

		if !autoRefresh && h.watermark >= target {
			h.finish(StatusDone, nil)
			if !kloggerr.Is(h.lastError, kloggerr.KindCancelled) {
				e.cache.put(key, h.index.Snapshot())
			}
			return
		}

		select {
		case <-h.wakeCh:
		case <-time.After(e.cfg.PollInterval):
		case <-h.ctx.Done():
			h.finish(StatusCancelled, nil)
			return
		}
	}
}

func (h *SearchHandle) finish(status Status, err error) {
	h.mu.Lock()
	h.status = status
	if err != nil {
		h.lastError = err
	}
	h.mu.Unlock()
	h.emitState()
}

// runBatches dispatches [from, to) as batches of cfg.SearchBatchLines
// lines across a semaphore-bounded pool, reordering completed batches by
// id before appending to the index, per spec.md §4.5. It returns the line
// number reached by the contiguous, error-free prefix of batches actually
// merged, which may be less than to if a batch errored.
func (e *Engine) runBatches(h *SearchHandle, from, to int64) (int64, error) {
	L := int64(e.cfg.SearchBatchLines)
	if L <= 0 {
		L = 1
	}

	var descriptors []batchDescriptor
	h.mu.Lock()
	for start := from; start < to; start += L {
		end := start + L
		if end > to {
			end = to
		}
		descriptors = append(descriptors, batchDescriptor{id: h.nextBatchID, start: start, end: end})
		h.nextBatchID++
	}
	h.mu.Unlock()

	if len(descriptors) == 0 {
		return from, nil
	}

	resultsCh := make(chan batchResult, len(descriptors))
	for _, d := range descriptors {
		go e.runOneBatch(h, d, resultsCh)
	}

	return e.mergeResults(h, resultsCh, len(descriptors), descriptors[0].id, from)
}

func (e *Engine) runOneBatch(h *SearchHandle, d batchDescriptor, out chan<- batchResult) {
	if err := h.sem.Acquire(h.ctx, 1); err != nil {
		out <- batchResult{id: d.id, start: d.start, end: d.start, err: kloggerr.New(kloggerr.KindCancelled, err)}
		return
	}
	defer h.sem.Release(1)

	select {
	case <-h.ctx.Done():
		out <- batchResult{id: d.id, start: d.start, end: d.start, err: kloggerr.New(kloggerr.KindCancelled, h.ctx.Err())}
		return
	default:
	}

	var lines []int64
	var bytesLen int64
	for n := d.start; n < d.end; n++ {
		begin, end, err := h.parent.LineByteRange(n)
		if err != nil {
			out <- batchResult{id: d.id, start: d.start, end: n, lines: lines, bytesLen: bytesLen, err: err}
			return
		}
		bytesLen += end - begin
		text, err := h.parent.LineText(n)
		if err != nil {
			out <- batchResult{id: d.id, start: d.start, end: n, lines: lines, bytesLen: bytesLen, err: err}
			return
		}
		if h.re.IsMatch(text) {
			lines = append(lines, n)
		}
	}
	out <- batchResult{id: d.id, start: d.start, end: d.end, lines: lines, bytesLen: bytesLen}
}

// mergeResults drains all n batch results, appending each batch's matches
// to the index in strict id order via the reorder heap, and returns the
// line number up to which the index now reflects a contiguous, error-free
// scan. On the first errored batch in that contiguous order, merging stops
// immediately: later-arriving, higher-id batches are never popped or
// appended, so a paused-then-resumed search resumes exactly at the
// returned watermark instead of re-scanning and duplicating lines that
// were already appended before the error.
func (e *Engine) mergeResults(h *SearchHandle, ch <-chan batchResult, n int, baseId, from int64) (int64, error) {
	pending := &batchHeap{}
	heap.Init(pending)
	expected := baseId
	watermark := from
	received := 0
	var firstErr error

	for received < n {
		r := <-ch
		received++
		heap.Push(pending, r)
		for firstErr == nil && pending.Len() > 0 && (*pending)[0].id == expected {
			top := heap.Pop(pending).(batchResult)
			if top.err != nil {
				firstErr = top.err
				break
			}
			h.index.Append(top.lines...)
			h.mu.Lock()
			h.bytesSearched += top.bytesLen
			h.mu.Unlock()
			h.emitState()
			watermark = top.end
			expected++
		}
	}
	return watermark, firstErr
}

// Cache exposes the engine's bounded result cache for persistence.
func (e *Engine) Cache() *resultCache { return e.cache }

/*
Package watch implements the File Watcher component (spec.md §4.7): it
observes a set of paths and classifies each change as Appended,
Truncated/Replaced, or Removed, with event coalescing over a debounce
window.

No library in the retrieved corpus vendors an OS-native notification
backend (no fsnotify or platform equivalent appears anywhere under
_examples/), so this implementation provides the polling half of the
spec's "native OR polling, at least one must be active" policy — on its
own that satisfies the policy's minimum. The poll loop's (size, mtime,
fast-hash) comparison is grounded on mpenkov-bsearch/index.go's epoch()
helper (os.Stat().ModTime() used to validate a cached index against its
dataset), generalized from "one validity check at index-load time" to "a
recurring comparison on a timer." An Observer interface seam is reserved
for a future native backend (spec.md SPEC_FULL.md §6) without touching
this package's debounce/coalescing logic.
*/
package watch

import (
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/klogg-go/klogg/internal/notify"
	"github.com/klogg-go/klogg/internal/source"
)

// EventKind classifies a change to a watched path.
type EventKind int

const (
	// EventAppended: file grew and its prefix is unchanged.
	EventAppended EventKind = iota
	// EventRotated: file shrank or its prefix changed (truncate/replace).
	EventRotated
	// EventRemoved: file no longer exists.
	EventRemoved
)

func (k EventKind) String() string {
	switch k {
	case EventAppended:
		return "Appended"
	case EventRotated:
		return "Rotated"
	case EventRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// severity orders event kinds for coalescing: Removed > Rotated > Appended.
func (k EventKind) severity() int {
	switch k {
	case EventRemoved:
		return 3
	case EventRotated:
		return 2
	default:
		return 1
	}
}

// Event is delivered to a path's listeners.
type Event struct {
	Path string
	Kind EventKind
	Size int64
}

// Observer is the seam for a future OS-native notification backend. The
// Watcher stores an Observer but never calls it: polling is its only
// source of change events.
type Observer interface {
	Watch(path string, onChange func()) (stop func(), err error)
}

// snapshot is the last-known state of a watched path, used to classify
// the next poll's delta.
type snapshot struct {
	exists bool
	size   int64
	mtime  time.Time
	fileId source.FileId
}

type watch struct {
	path              string
	hub               *notify.Hub[Event]
	last              snapshot
	pending           *Event
	pendingSince      time.Time
	fingerprintSample int64
}

// Watcher polls a set of paths at a configured interval, coalescing
// rapid-fire events on the same path within a debounce window into a
// single event of the most severe kind.
type Watcher struct {
	mu             sync.Mutex
	watches        map[string]*watch
	pollInterval   time.Duration
	debounceWindow time.Duration
	fingerprintN   int64
	observer       Observer
	logger         *zerolog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// New returns a Watcher that polls every pollInterval and coalesces
// events within debounceWindow. observer may be nil; a non-nil observer is
// stored but not used, so changes are detected by polling alone.
func New(pollInterval, debounceWindow time.Duration, fingerprintSampleSize int64, observer Observer, logger *zerolog.Logger) *Watcher {
	w := &Watcher{
		watches:        make(map[string]*watch),
		pollInterval:   pollInterval,
		debounceWindow: debounceWindow,
		fingerprintN:   fingerprintSampleSize,
		observer:       observer,
		logger:         logger,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
	go w.loop()
	return w
}

// Watch registers listener for changes to path and returns a Registration
// to remove it. Multiple Registrations on the same path share one
// underlying watch, per spec.md §4.7.
func (w *Watcher) Watch(path string, listener func(Event)) *notify.Registration {
	w.mu.Lock()
	ws, ok := w.watches[path]
	if !ok {
		ws = &watch{path: path, hub: notify.NewHub[Event](), fingerprintSample: w.fingerprintN}
		ws.last = w.statSnapshot(path)
		w.watches[path] = ws
	}
	w.mu.Unlock()

	return ws.hub.Register(listener)
}

// Close stops the polling goroutine. Safe to call more than once.
func (w *Watcher) Close() {
	w.once.Do(func() {
		close(w.stopCh)
	})
	<-w.doneCh
}

func (w *Watcher) loop() {
	defer close(w.doneCh)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.pollAll()
		}
	}
}

func (w *Watcher) pollAll() {
	w.mu.Lock()
	paths := make([]*watch, 0, len(w.watches))
	for _, ws := range w.watches {
		paths = append(paths, ws)
	}
	w.mu.Unlock()

	now := time.Now()
	for _, ws := range paths {
		w.pollOne(ws, now)
	}
}

func (w *Watcher) pollOne(ws *watch, now time.Time) {
	next := w.statSnapshot(ws.path)
	kind, changed := classify(ws, ws.last, next)

	if changed {
		ev := Event{Path: ws.path, Kind: kind, Size: next.size}
		w.coalesce(ws, ev, now)
	} else if ws.pending != nil && now.Sub(ws.pendingSince) >= w.debounceWindow {
		w.flush(ws)
	}
	ws.last = next
}

// coalesce merges ev into any pending event for ws within the debounce
// window, keeping the more severe kind; a change observed after the
// window has elapsed flushes the old pending event first.
func (w *Watcher) coalesce(ws *watch, ev Event, now time.Time) {
	if ws.pending == nil {
		ws.pending = &ev
		ws.pendingSince = now
		if w.debounceWindow <= 0 {
			w.flush(ws)
		}
		return
	}

	if now.Sub(ws.pendingSince) >= w.debounceWindow {
		w.flush(ws)
		ws.pending = &ev
		ws.pendingSince = now
		return
	}

	if ev.Kind.severity() >= ws.pending.Kind.severity() {
		merged := ev
		ws.pending = &merged
	}
}

func (w *Watcher) flush(ws *watch) {
	if ws.pending == nil {
		return
	}
	ev := *ws.pending
	ws.pending = nil
	if w.logger != nil {
		w.logger.Debug().Str("path", ev.Path).Str("kind", ev.Kind.String()).Int64("size", ev.Size).Msg("watcher event")
	}
	ws.hub.Emit(ev)
}

func (w *Watcher) statSnapshot(path string) snapshot {
	info, err := os.Stat(path)
	if err != nil {
		return snapshot{exists: false}
	}
	s := snapshot{exists: true, size: info.Size(), mtime: info.ModTime()}
	if src, err := source.Open(path); err == nil {
		if id, err := src.Fingerprint(w.fingerprintN); err == nil {
			s.fileId = id
		}
		src.Close()
	}
	return s
}

// classify compares two snapshots and decides what kind of event, if
// any, has occurred, per spec.md §4.4's live-update rules: growth with an
// unchanged prefix is Appended; a smaller size or changed prefix hash is
// Rotated; disappearance is Removed.
func classify(ws *watch, last, next snapshot) (EventKind, bool) {
	switch {
	case last.exists && !next.exists:
		return EventRemoved, true
	case !last.exists && next.exists:
		return EventAppended, true
	case !last.exists && !next.exists:
		return EventAppended, false
	case next.size > last.size && prefixMatches(ws, last, next):
		return EventAppended, true
	case next.size < last.size || !prefixMatches(ws, last, next):
		if next.size == last.size && next.mtime.Equal(last.mtime) {
			return EventAppended, false
		}
		return EventRotated, true
	default:
		return EventAppended, false
	}
}

// prefixMatches reports whether the first min(last.size, fingerprintSample)
// bytes of last's content reappear as the leading bytes of next's current
// content. last.fileId.ContentHash already covers exactly that many bytes
// (computeFileId caps its sample to the file's own size), so only next's
// side needs a fresh read — hashing next's own whole-file sample instead
// would compare windows of different lengths whenever either file is
// smaller than fingerprintSample, misclassifying a plain append as a
// rotation.
func prefixMatches(ws *watch, last, next snapshot) bool {
	if last.size == 0 {
		return true
	}
	n := ws.fingerprintSample
	if n <= 0 {
		n = 64 << 10 // computeFileId's default sample size
	}
	if n > last.size {
		n = last.size
	}
	if next.size < n {
		return false
	}

	src, err := source.Open(ws.path)
	if err != nil {
		return false
	}
	defer src.Close()

	buf := make([]byte, n)
	read, err := src.ReadAt(buf, 0)
	if err != nil && read == 0 {
		return false
	}
	return xxhash.Sum64(buf[:read]) == last.fileId.ContentHash
}

/*
Package filtered implements Filtered Log Data (spec.md §4.6): a
Log-Data-compatible façade over a Search Engine's FilteredIndex, so a
shell can navigate search results exactly as it navigates a full file.

Grounded on the same capability-interface pattern spec.md §9 calls for
("a single Log-Data capability interface... Filtered is an
implementation that delegates to a parent and a FilteredIndex"), which
internal/logdata.Source formalizes; this package is that delegating
implementation.
*/
package filtered

import (
	"github.com/klogg-go/klogg/internal/kloggerr"
	"github.com/klogg-go/klogg/internal/logdata"
	"github.com/klogg-go/klogg/internal/notify"
	"github.com/klogg-go/klogg/internal/search"
	"github.com/klogg-go/klogg/internal/source"
)

// FilteredLogData is a view over the subset of a parent's lines recorded
// in a search's FilteredIndex.
type FilteredLogData struct {
	parent logdata.Source
	index  *search.FilteredIndex

	events    *notify.Hub[logdata.Event]
	parentReg *notify.Registration
}

// New returns a FilteredLogData delegating reads to parent through
// index, and propagating parent events (remapped to a no-op on this
// view's own coordinate space, since the FilteredIndex's own growth is
// what the caller observes via the search handle's progress events).
func New(parent logdata.Source, index *search.FilteredIndex) *FilteredLogData {
	fld := &FilteredLogData{
		parent: parent,
		index:  index,
		events: notify.NewHub[logdata.Event](),
	}
	// This view only forwards parent events; it does not remap them or
	// touch the index. A search started with AutoRefresh resets its index
	// on the parent's rotated event. The index of a one-shot search is not
	// cleared on rotation: its entries keep the previous generation's line
	// numbers.
	fld.parentReg = parent.AttachListener(fld.events.Emit)
	return fld
}

// LineCount returns the number of entries in the FilteredIndex.
func (f *FilteredLogData) LineCount() int64 {
	return f.index.Len()
}

// LineByteRange delegates to parent.LineByteRange(filtered_index[i]).
func (f *FilteredLogData) LineByteRange(i int64) (begin, end int64, err error) {
	n, err := f.resolve(i)
	if err != nil {
		return 0, 0, err
	}
	return f.parent.LineByteRange(n)
}

// LineText delegates to parent.LineText(filtered_index[i]), spec.md
// §4.6's defining contract.
func (f *FilteredLogData) LineText(i int64) (string, error) {
	n, err := f.resolve(i)
	if err != nil {
		return "", err
	}
	return f.parent.LineText(n)
}

func (f *FilteredLogData) resolve(i int64) (int64, error) {
	if i < 0 || i >= f.index.Len() {
		return 0, kloggerr.New(kloggerr.KindInternalConsistency, kloggerr.ErrOutOfRange)
	}
	return f.index.At(i), nil
}

// SourceLine returns the parent LineNumber backing view line i, for
// callers (e.g. "jump to this match in the full file") that need the
// unfiltered coordinate.
func (f *FilteredLogData) SourceLine(i int64) (int64, error) {
	return f.resolve(i)
}

// FileId delegates to the parent, since a filtered view shares its
// parent's file identity.
func (f *FilteredLogData) FileId() source.FileId {
	return f.parent.FileId()
}

// AttachListener registers fn for events remapped from the parent (and,
// implicitly, from the search that owns this view's FilteredIndex).
func (f *FilteredLogData) AttachListener(fn func(logdata.Event)) *notify.Registration {
	return f.events.Register(fn)
}

// Close releases this view's subscription to parent events.
func (f *FilteredLogData) Close() {
	f.parentReg.Close()
}

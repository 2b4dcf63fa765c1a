package search

import "sync"

// pageSize bounds how many LineNumbers live in one FilteredIndex page, so
// peak allocation churn stays bounded regardless of how many matches a
// search accumulates (spec.md §5 "memory bounds").
const pageSize = 4096

// FilteredIndex is the append-only, paged sequence of matching source
// LineNumbers a search produces (spec.md §3). Readers (Len, At, Range)
// take a shared read lock rather than reading lock-free, since Go offers
// no lock-free append primitive for a paged slice; a reader waits only
// while an Append holds the write lock to add one batch of entries.
type FilteredIndex struct {
	mu    sync.RWMutex
	pages [][]int64
	n     int64
}

// NewFilteredIndex returns an empty FilteredIndex.
func NewFilteredIndex() *FilteredIndex {
	return &FilteredIndex{}
}

// Len returns the number of entries currently visible.
func (fi *FilteredIndex) Len() int64 {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.n
}

// Append adds lines, which must be strictly increasing relative to the
// index's existing tail, preserving spec.md §3's "strictly increasing"
// invariant.
func (fi *FilteredIndex) Append(lines ...int64) {
	if len(lines) == 0 {
		return
	}
	fi.mu.Lock()
	defer fi.mu.Unlock()
	for _, l := range lines {
		pageIdx := int(fi.n / pageSize)
		for pageIdx >= len(fi.pages) {
			fi.pages = append(fi.pages, make([]int64, 0, pageSize))
		}
		fi.pages[pageIdx] = append(fi.pages[pageIdx], l)
		fi.n++
	}
}

// At returns the LineNumber at position i.
func (fi *FilteredIndex) At(i int64) int64 {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.pages[i/pageSize][i%pageSize]
}

// Range returns a copy of entries [start, end).
func (fi *FilteredIndex) Range(start, end int64) []int64 {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	if end > fi.n {
		end = fi.n
	}
	if start < 0 || start >= end {
		return nil
	}
	out := make([]int64, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, fi.pages[i/pageSize][i%pageSize])
	}
	return out
}

// Reset clears the index, used when a search restarts from offset 0
// after a rotation (spec.md §4.5).
func (fi *FilteredIndex) Reset() {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.pages = nil
	fi.n = 0
}

// Snapshot returns a flat copy of every entry, for cache persistence.
func (fi *FilteredIndex) Snapshot() []int64 {
	return fi.Range(0, fi.Len())
}

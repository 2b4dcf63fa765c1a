/*
Cache persistence is grounded on mpenkov-bsearch/index.go's Index.Write/
LoadIndex pair (yaml.Marshal piped through zstd.NewWriter, the reverse on
load), adapted here from "one index written to a side file next to the
dataset" to "the whole result cache serialized to an in-memory blob the
shell chooses where to persist" (spec.md §6's "returns serializable
snapshots").
*/
package search

import (
	"bytes"
	"io"
	"sync"

	"github.com/DataDog/zstd"
	yaml "gopkg.in/yaml.v3"

	"github.com/klogg-go/klogg/internal/regexengine"
	"github.com/klogg-go/klogg/internal/source"
)

// cacheKey identifies one cached FilteredIndex: pattern + flags + the
// FileId it was computed against (spec.md §3 SearchCacheEntry).
type cacheKey struct {
	pattern string
	flags   regexengine.Flags
	fileId  source.FileId
}

// cacheEntrySnapshot is the yaml-serializable form of one cache entry.
type cacheEntrySnapshot struct {
	Pattern         string        `yaml:"pattern"`
	CaseInsensitive bool          `yaml:"case_insensitive"`
	FixedString     bool          `yaml:"fixed_string"`
	Extended        bool          `yaml:"extended"`
	FileId          source.FileId `yaml:"file_id"`
	Lines           []int64       `yaml:"lines"`
}

type cacheSnapshot struct {
	Entries []cacheEntrySnapshot `yaml:"entries"`
}

// resultCache is the bounded, LRU-evicted FilteredIndex cache the Search
// Engine instance owns (spec.md §9: never a process-wide singleton).
type resultCache struct {
	mu       sync.Mutex
	capacity int64
	total    int64
	entries  map[cacheKey][]int64
	lru      []cacheKey
}

func newResultCache(capacityLines int64) *resultCache {
	return &resultCache{
		capacity: capacityLines,
		entries:  make(map[cacheKey][]int64),
	}
}

func (c *resultCache) get(key cacheKey) ([]int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, ok := c.entries[key]
	if ok {
		c.touch(key)
	}
	return lines, ok
}

func (c *resultCache) put(key cacheKey, lines []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.total -= int64(len(existing))
		delete(c.entries, key)
	}
	if int64(len(lines)) > c.capacity {
		// An entry larger than the whole capacity is not cached.
		return
	}

	for c.total+int64(len(lines)) > c.capacity && len(c.lru) > 0 {
		oldest := c.lru[0]
		c.lru = c.lru[1:]
		if old, ok := c.entries[oldest]; ok {
			c.total -= int64(len(old))
			delete(c.entries, oldest)
		}
	}

	c.entries[key] = lines
	c.total += int64(len(lines))
	c.touch(key)
}

// touch moves key to the most-recently-used end of the eviction order.
// Caller must hold c.mu.
func (c *resultCache) touch(key cacheKey) {
	for i, k := range c.lru {
		if k == key {
			c.lru = append(c.lru[:i], c.lru[i+1:]...)
			break
		}
	}
	c.lru = append(c.lru, key)
}

// invalidateFileId drops every entry keyed to id, used when a caller
// knows a generation has rotated away for good.
func (c *resultCache) invalidateFileId(id source.FileId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.fileId.Equal(id) {
			c.total -= int64(len(c.entries[k]))
			delete(c.entries, k)
		}
	}
	kept := c.lru[:0]
	for _, k := range c.lru {
		if _, ok := c.entries[k]; ok {
			kept = append(kept, k)
		}
	}
	c.lru = kept
}

// Snapshot serializes the entire cache as yaml, zstd-compressed.
func (c *resultCache) Snapshot() ([]byte, error) {
	c.mu.Lock()
	snap := cacheSnapshot{Entries: make([]cacheEntrySnapshot, 0, len(c.entries))}
	for k, lines := range c.entries {
		snap.Entries = append(snap.Entries, cacheEntrySnapshot{
			Pattern:         k.pattern,
			CaseInsensitive: k.flags.CaseInsensitive,
			FixedString:     k.flags.FixedString,
			Extended:        k.flags.Extended,
			FileId:          k.fileId,
			Lines:           lines,
		})
	}
	c.mu.Unlock()

	data, err := yaml.Marshal(snap)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := zstd.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RestoreSnapshot replaces the cache's contents with a blob previously
// produced by Snapshot.
func (c *resultCache) RestoreSnapshot(blob []byte) error {
	r := zstd.NewReader(bytes.NewReader(blob))
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var snap cacheSnapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey][]int64, len(snap.Entries))
	c.lru = c.lru[:0]
	c.total = 0
	for _, e := range snap.Entries {
		key := cacheKey{
			pattern: e.Pattern,
			flags:   regexengine.Flags{CaseInsensitive: e.CaseInsensitive, FixedString: e.FixedString, Extended: e.Extended},
			fileId:  e.FileId,
		}
		c.entries[key] = e.Lines
		c.lru = append(c.lru, key)
		c.total += int64(len(e.Lines))
	}
	return nil
}

// Snapshot exposes the engine's cache snapshot for the shell to persist
// (spec.md §6, SPEC_FULL.md ambient stack item 12).
func (e *Engine) Snapshot() ([]byte, error) {
	return e.cache.Snapshot()
}

// RestoreSnapshot loads a previously persisted cache snapshot.
func (e *Engine) RestoreSnapshot(blob []byte) error {
	return e.cache.RestoreSnapshot(blob)
}

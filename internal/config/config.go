/*
Package config holds the immutable tunables snapshot threaded through
LogData, SearchEngine, and Watcher construction. Reconfiguration replaces
the snapshot wholesale (Clone then adjust) rather than mutating a shared
instance in place, per the teacher's Options-struct-per-call convention
(mpenkov-bsearch/bsearch.go's Options / IndexOptions) generalized to a
single long-lived snapshot.
*/
package config

import (
	"runtime"
	"time"

	"github.com/jinzhu/copier"
)

// Config carries every tunable named across the spec: block size for the
// compressed line store, indexer read-buffer size, max line length, search
// batch size and worker pool size, search cache capacity, and the file
// watcher's poll interval and debounce window.
type Config struct {
	// BlockSize is the number of line offsets per CompressedStore block (B).
	BlockSize int
	// ReadBufferSize is the indexer's fixed read-buffer size, in bytes.
	ReadBufferSize int
	// MaxLineLength is the byte length at which an unterminated line is
	// split into virtual lines.
	MaxLineLength int
	// EncodingSampleSize bounds how many leading bytes feed the encoding
	// speculator before its guess is frozen (K in spec.md §4.3).
	EncodingSampleSize int64
	// SearchBatchLines is the number of lines dispatched to a search
	// worker per batch (L).
	SearchBatchLines int
	// SearchPoolSize bounds concurrent search workers.
	SearchPoolSize int
	// CacheCapacityLines bounds the total number of lines held across all
	// cached FilteredIndex entries before LRU eviction kicks in.
	CacheCapacityLines int
	// PollInterval is the file watcher's fallback poll cadence.
	PollInterval time.Duration
	// DebounceWindow collapses rapid-fire watcher events on one path.
	DebounceWindow time.Duration
	// FingerprintSampleSize is the number of leading bytes hashed to form
	// a FileId's content component (N in spec.md's Data Model table).
	FingerprintSampleSize int64
	// ProgressByteInterval is the minimum bytes-indexed delta between
	// progress events.
	ProgressByteInterval int64
	// ProgressTimeInterval is the minimum wall-clock delta between
	// progress events, used alongside ProgressByteInterval (spec.md:
	// "every >=256 KiB or >=50 ms").
	ProgressTimeInterval time.Duration
}

// DefaultConfig returns the tunables used when a caller passes a zero
// Config, matching the constants named throughout spec.md §4.
func DefaultConfig() *Config {
	pool := runtime.NumCPU() - 1
	if pool < 1 {
		pool = 1
	}
	return &Config{
		BlockSize:             128,
		ReadBufferSize:        1 << 20, // 1 MiB
		MaxLineLength:         64 << 10,
		EncodingSampleSize:    4 << 20, // 4 MiB
		SearchBatchLines:      10,
		SearchPoolSize:        pool,
		CacheCapacityLines:    1_000_000,
		PollInterval:          time.Second,
		DebounceWindow:        50 * time.Millisecond,
		FingerprintSampleSize: 64 << 10,
		ProgressByteInterval:  256 << 10,
		ProgressTimeInterval:  50 * time.Millisecond,
	}
}

// Clone deep-copies c via copier so callers can derive a new, independent
// snapshot without risking aliasing the one already handed to a running
// LogData or SearchEngine.
func (c *Config) Clone() *Config {
	clone := &Config{}
	if err := copier.Copy(clone, c); err != nil {
		// copier only fails on type-mismatched struct fields, which is an
		// internal consistency violation here: Config is copier-safe by
		// construction (flat scalars only).
		panic("config: clone failed: " + err.Error())
	}
	return clone
}

// normalize fills any zero-valued field with its default, so a partially
// populated Config behaves as "use the default for what's unset."
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.BlockSize <= 0 {
		c.BlockSize = d.BlockSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = d.MaxLineLength
	}
	if c.EncodingSampleSize <= 0 {
		c.EncodingSampleSize = d.EncodingSampleSize
	}
	if c.SearchBatchLines <= 0 {
		c.SearchBatchLines = d.SearchBatchLines
	}
	if c.SearchPoolSize <= 0 {
		c.SearchPoolSize = d.SearchPoolSize
	}
	if c.CacheCapacityLines <= 0 {
		c.CacheCapacityLines = d.CacheCapacityLines
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.FingerprintSampleSize <= 0 {
		c.FingerprintSampleSize = d.FingerprintSampleSize
	}
	if c.ProgressByteInterval <= 0 {
		c.ProgressByteInterval = d.ProgressByteInterval
	}
	if c.ProgressTimeInterval <= 0 {
		c.ProgressTimeInterval = d.ProgressTimeInterval
	}
}

// Normalized returns a clone of c with every zero field defaulted.
func Normalized(c *Config) *Config {
	if c == nil {
		return DefaultConfig()
	}
	clone := c.Clone()
	clone.normalize()
	return clone
}

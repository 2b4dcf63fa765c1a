package logdata

import (
	"github.com/klogg-go/klogg/internal/notify"
	"github.com/klogg-go/klogg/internal/source"
)

// Source is the Log-Data capability interface spec.md §9 calls for in
// place of deep inheritance between LogData and FilteredLogData: both
// *LogData and internal/filtered's FilteredLogData satisfy it, so the
// Search Engine and Filtered Log Data depend on this narrow surface
// rather than on a concrete façade type.
type Source interface {
	LineCount() int64
	LineByteRange(n int64) (begin, end int64, err error)
	LineText(n int64) (string, error)
	FileId() source.FileId
	AttachListener(fn func(Event)) *notify.Registration
}

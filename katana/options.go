package katana

import (
	"github.com/BlackTechX011/katana/internal/autotune"
	"github.com/BlackTechX011/katana/internal/codec"
	"github.com/BlackTechX011/katana/internal/progress"
)

// MemoryBudgetKind selects how MemoryBudget.Value is interpreted.
type MemoryBudgetKind int

const (
	// BudgetUnbounded means no memory budget constrains the controller.
	BudgetUnbounded MemoryBudgetKind = iota
	// BudgetAbsoluteBytes means Value is an absolute byte count.
	BudgetAbsoluteBytes
	// BudgetPercentOfRAM means Value is a percentage (0-100) of total RAM.
	BudgetPercentOfRAM
)

// MemoryBudget bounds the resource controller's memory use, either as an
// absolute byte count or as a percentage of total RAM.
type MemoryBudget struct {
	Kind  MemoryBudgetKind
	Value float64
}

func (b MemoryBudget) toAutotuneBudget() autotune.Budget {
	switch b.Kind {
	case BudgetAbsoluteBytes:
		return autotune.Budget{AbsoluteBytes: int64(b.Value)}
	case BudgetPercentOfRAM:
		return autotune.Budget{PercentOfRAM: b.Value}
	default:
		return autotune.Budget{Unbounded: true}
	}
}

// Level selects the compression profile. Aliased from the internal codec
// package so external callers can name it.
type Level = codec.Level

const (
	LevelFast    = codec.LevelFast
	LevelDefault = codec.LevelDefault
	LevelBest    = codec.LevelBest
)

// Snapshot is the progress state handed to a ProgressCallback.
type Snapshot = progress.Snapshot

// ProgressCallback receives progress snapshots during Create/Extract. A nil
// callback disables progress tracking entirely.
type ProgressCallback = progress.Callback

// CreateOptions configures Create.
type CreateOptions struct {
	// Threads is the worker count; 0 means auto from CPU cores / the
	// resource controller.
	Threads int
	// CodecThreads is the per-worker zstd thread count; 0 means auto.
	CodecThreads int
	// MemoryBudget bounds the resource controller's buffer sizing.
	MemoryBudget MemoryBudget
	// Password enables AES-256-GCM encryption when non-empty.
	Password string
	// Level selects the compression/security profile.
	Level Level
	// Progress, if non-nil, receives throttled progress snapshots.
	Progress ProgressCallback
	// SkipIntegrityCheck disables the post-write BLAKE3 self-verification.
	// Integrity checking is enabled by default.
	SkipIntegrityCheck bool
}

// ExtractOptions configures Extract and Verify.
type ExtractOptions struct {
	// SelectedPaths, if non-empty, restricts extraction to these
	// normalized relative paths.
	SelectedPaths []string
	// Password is required iff the archive carries a salt.
	Password string
	// StripComponents removes this many leading path components from each
	// extracted path before joining to the output root.
	StripComponents int
	// Progress, if non-nil, receives throttled progress snapshots.
	Progress ProgressCallback
}

// ListOptions configures List.
type ListOptions struct {
	Password string
}

// Entry is one archive member returned by List.
type Entry struct {
	Path  string
	Size  uint64
	IsDir bool
}

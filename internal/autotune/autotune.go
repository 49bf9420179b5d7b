// Package autotune is the adaptive resource controller: it classifies the
// current bottleneck from live CPU/memory/swap samples (via gopsutil) and
// derives thread counts and buffer sizes under a memory budget.
package autotune

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Bottleneck classifies the current performance-limiting resource.
type Bottleneck int

const (
	Balanced Bottleneck = iota
	IOBound
	CPUBound
	MemoryBound
	FragmentedIO
	CompressionLimited
)

func (b Bottleneck) String() string {
	switch b {
	case IOBound:
		return "io_bound"
	case CPUBound:
		return "cpu_bound"
	case MemoryBound:
		return "memory_bound"
	case FragmentedIO:
		return "fragmented_io"
	case CompressionLimited:
		return "compression_limited"
	default:
		return "balanced"
	}
}

// RealtimeStats is one sample of the dimensions the bottleneck detector
// considers.
type RealtimeStats struct {
	CPUUtilization      float64
	IOWaitPercent       float64
	MemoryPressure      float64
	SwapInMB            float64
	AvgFileSize         uint64
	SyscallsPerSec      float64
	CompressionMBPerSec float64
}

// Config is the resource allocation the controller hands to the shard
// pipeline.
type Config struct {
	ThreadCount           int
	CodecThreads          int
	InputBufferSize       int
	CompressionBufferSize int
	OutputBufferSize      int
	Level                 int
	EnableFileBatching    bool
	StreamingMode         bool
	PrefetchFactor        float64
	EstimatedTotalMemory  int64
}

// Budget describes the caller's memory budget, either absolute or as a
// percentage of total RAM; the zero value means unbounded.
type Budget struct {
	AbsoluteBytes int64
	PercentOfRAM  float64
	Unbounded     bool
}

// ResolveBytes converts a Budget into an absolute byte count, sampling
// total system RAM for PercentOfRAM budgets. Unbounded returns 0, the
// caller's signal to skip budget-constrained sizing entirely.
func (b Budget) ResolveBytes() (int64, error) {
	if b.Unbounded {
		return 0, nil
	}
	if b.AbsoluteBytes > 0 {
		return b.AbsoluteBytes, nil
	}
	if b.PercentOfRAM > 0 {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return 0, err
		}
		return int64(float64(vm.Total) * b.PercentOfRAM / 100.0), nil
	}
	return 0, nil
}

// Detector samples system load; Detect classifies the resulting stats.
type Detector struct {
	lastSample time.Time
	interval   time.Duration
}

// NewDetector returns a Detector with a 500ms interval recorded. Collect
// does not consult it: every call takes a fresh sample.
func NewDetector() *Detector {
	return &Detector{interval: 500 * time.Millisecond}
}

// Collect samples CPU and memory/swap utilization via gopsutil. avgFileSize
// and compressionMBPerSec come from the caller (the shard pipeline), since
// only it observes those dimensions.
func (d *Detector) Collect(ctx context.Context, avgFileSize uint64, compressionMBPerSec float64) (RealtimeStats, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return RealtimeStats{}, err
	}
	cpuUtil := 0.0
	if len(percents) > 0 {
		cpuUtil = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return RealtimeStats{}, err
	}
	swap, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return RealtimeStats{}, err
	}

	return RealtimeStats{
		CPUUtilization:      cpuUtil,
		IOWaitPercent:       0, // not exposed uniformly across platforms by gopsutil
		MemoryPressure:      float64(vm.Used) / float64(vm.Total),
		SwapInMB:            float64(swap.Used) / (1024 * 1024),
		AvgFileSize:         avgFileSize,
		CompressionMBPerSec: compressionMBPerSec,
	}, nil
}

// Detect classifies stats into a Bottleneck. Threshold order matters:
// memory pressure trumps everything, then I/O wait, then CPU.
func Detect(stats RealtimeStats) Bottleneck {
	if stats.MemoryPressure > 0.9 || stats.SwapInMB > 100.0 {
		return MemoryBound
	}
	if stats.IOWaitPercent > 30.0 && stats.CPUUtilization < 70.0 {
		return IOBound
	}
	if stats.CPUUtilization > 85.0 && stats.IOWaitPercent < 15.0 {
		return CPUBound
	}
	if stats.AvgFileSize < 64*1024 && stats.SyscallsPerSec > 5000.0 {
		return FragmentedIO
	}
	if stats.CompressionMBPerSec > 0.0 && stats.CompressionMBPerSec < 25.0 {
		return CompressionLimited
	}
	return Balanced
}

// Calculator derives a Config from a Bottleneck and memory budget.
type Calculator struct {
	budgetBytes int64 // 0 = unbounded
	tolerance   float64
	cpuCores    int
}

// NewCalculator builds a Calculator for the given resolved budget (0 means
// unbounded, which skips budget-based sizing and uses CPU-derived
// defaults only).
func NewCalculator(budgetBytes int64) *Calculator {
	return &Calculator{budgetBytes: budgetBytes, tolerance: 0.05, cpuCores: runtime.NumCPU()}
}

// Calculate dispatches to the per-bottleneck sizing strategy.
func (c *Calculator) Calculate(b Bottleneck) Config {
	switch b {
	case IOBound:
		return c.ioBoundStrategy()
	case CPUBound:
		return c.cpuBoundStrategy()
	case MemoryBound:
		return c.memoryBoundStrategy()
	case FragmentedIO:
		return c.fragmentedIOStrategy()
	case CompressionLimited:
		return c.compressionLimitedStrategy()
	default:
		return c.balancedStrategy()
	}
}

func (c *Calculator) systemOverhead() int64 {
	if c.budgetBytes <= 0 {
		return 50 * 1024 * 1024
	}
	overhead := c.budgetBytes / 10
	if min := int64(50 * 1024 * 1024); overhead < min {
		overhead = min
	}
	return overhead
}

// workingMemory returns the budget minus overhead, or a generous unbounded
// default (256MiB per thread-equivalent) when no budget was set, so the
// percentage splits below still produce sane buffer sizes.
func (c *Calculator) workingMemory() int64 {
	if c.budgetBytes <= 0 {
		return int64(c.cpuCores) * 256 * 1024 * 1024
	}
	wm := c.budgetBytes - c.systemOverhead()
	if wm < 1 {
		wm = 1
	}
	return wm
}

func (c *Calculator) ioBoundStrategy() Config {
	threads := max(c.cpuCores/2, 1)
	overhead := c.systemOverhead()
	working := c.workingMemory()
	perThread := working / int64(threads)

	return Config{
		ThreadCount:           threads,
		CodecThreads:          threads,
		InputBufferSize:       int(perThread * 60 / 100),
		CompressionBufferSize: int(perThread * 25 / 100),
		OutputBufferSize:      int(perThread * 15 / 100),
		Level:                 3,
		EnableFileBatching:    false,
		StreamingMode:         false,
		PrefetchFactor:        4.0,
		EstimatedTotalMemory:  working + overhead,
	}
}

func (c *Calculator) cpuBoundStrategy() Config {
	threads := max(c.cpuCores, 1)
	overhead := c.systemOverhead()
	working := c.workingMemory()
	perThread := working / int64(threads)

	return Config{
		ThreadCount:           threads,
		CodecThreads:          threads,
		InputBufferSize:       int(perThread * 30 / 100),
		CompressionBufferSize: int(perThread * 60 / 100),
		OutputBufferSize:      int(perThread * 10 / 100),
		Level:                 1,
		EnableFileBatching:    false,
		StreamingMode:         false,
		PrefetchFactor:        1.0,
		EstimatedTotalMemory:  working + overhead,
	}
}

func (c *Calculator) memoryBoundStrategy() Config {
	threads := 2
	overhead := c.systemOverhead()
	working := (c.workingMemory()) / 2
	perThread := working / int64(threads)

	cap4MiB := int64(4 * 1024 * 1024)
	cap2MiB := int64(2 * 1024 * 1024)
	input := min64(cap4MiB, perThread/3)
	compression := min64(cap4MiB, perThread/3)
	output := min64(cap2MiB, perThread/3)

	return Config{
		ThreadCount:           threads,
		CodecThreads:          threads,
		InputBufferSize:       int(input),
		CompressionBufferSize: int(compression),
		OutputBufferSize:      int(output),
		Level:                 3,
		EnableFileBatching:    false,
		StreamingMode:         true,
		PrefetchFactor:        0.5,
		EstimatedTotalMemory:  working + overhead,
	}
}

func (c *Calculator) fragmentedIOStrategy() Config {
	threads := max(c.cpuCores/3, 1)
	codecThreads := max(c.cpuCores, 1)
	overhead := c.systemOverhead()
	working := c.workingMemory()
	perThread := working / int64(threads)

	return Config{
		ThreadCount:           threads,
		CodecThreads:          codecThreads,
		InputBufferSize:       int(perThread * 70 / 100),
		CompressionBufferSize: int(perThread * 20 / 100),
		OutputBufferSize:      int(perThread * 10 / 100),
		Level:                 3,
		EnableFileBatching:    true,
		StreamingMode:         false,
		PrefetchFactor:        2.0,
		EstimatedTotalMemory:  working + overhead,
	}
}

func (c *Calculator) compressionLimitedStrategy() Config {
	threads := max(c.cpuCores, 1)
	codecThreads := threads * 2
	overhead := c.systemOverhead()
	working := c.workingMemory()
	perThread := working / int64(threads)

	return Config{
		ThreadCount:           threads,
		CodecThreads:          codecThreads,
		InputBufferSize:       int(perThread * 25 / 100),
		CompressionBufferSize: int(perThread * 65 / 100),
		OutputBufferSize:      int(perThread * 10 / 100),
		Level:                 -1,
		EnableFileBatching:    false,
		StreamingMode:         false,
		PrefetchFactor:        1.5,
		EstimatedTotalMemory:  working + overhead,
	}
}

func (c *Calculator) balancedStrategy() Config {
	threads := max(c.cpuCores, 1)
	overhead := c.systemOverhead()
	working := c.workingMemory()
	perThread := working / int64(threads)

	return Config{
		ThreadCount:           threads,
		CodecThreads:          threads,
		InputBufferSize:       int(perThread * 40 / 100),
		CompressionBufferSize: int(perThread * 45 / 100),
		OutputBufferSize:      int(perThread * 15 / 100),
		Level:                 3,
		EnableFileBatching:    false,
		StreamingMode:         false,
		PrefetchFactor:        2.0,
		EstimatedTotalMemory:  working + overhead,
	}
}

// Validate reports whether cfg's estimated memory is within ±5% of the
// budget. Always true for an unbounded budget.
func (c *Calculator) Validate(cfg Config) bool {
	if c.budgetBytes <= 0 {
		return true
	}
	target := float64(c.budgetBytes)
	actual := float64(cfg.EstimatedTotalMemory)
	deviation := (actual - target) / target
	if deviation < 0 {
		deviation = -deviation
	}
	return deviation <= c.tolerance
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// Tuner orchestrates Detector and Calculator across a long-running
// create/extract call, retuning at most every interval measurements or
// immediately on a bottleneck change.
type Tuner struct {
	detector   *Detector
	calculator *Calculator
	current    *Config
	bottleneck Bottleneck
	counter    int
	interval   int
}

// NewTuner builds a Tuner for the given resolved memory budget in bytes
// (0 = unbounded).
func NewTuner(budgetBytes int64) *Tuner {
	return &Tuner{
		detector:   NewDetector(),
		calculator: NewCalculator(budgetBytes),
		bottleneck: Balanced,
		interval:   10,
	}
}

// Tune samples the system, optionally folding in compression-specific
// stats the caller has observed, and returns the current or freshly
// recalculated Config.
func (t *Tuner) Tune(ctx context.Context, avgFileSize uint64, compressionMBPerSec float64) (Config, Bottleneck, error) {
	t.counter++
	stats, err := t.detector.Collect(ctx, avgFileSize, compressionMBPerSec)
	if err != nil {
		return Config{}, t.bottleneck, err
	}
	detected := Detect(stats)

	shouldRetune := detected != t.bottleneck || t.counter >= t.interval || t.current == nil
	if !shouldRetune {
		return *t.current, t.bottleneck, nil
	}

	t.bottleneck = detected
	t.counter = 0
	cfg := t.calculator.Calculate(detected)
	t.current = &cfg
	return cfg, t.bottleneck, nil
}

// CurrentBottleneck returns the most recently detected bottleneck class.
func (t *Tuner) CurrentBottleneck() Bottleneck { return t.bottleneck }

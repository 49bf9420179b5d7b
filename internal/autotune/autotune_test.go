package autotune

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMemoryBoundTakesPriority(t *testing.T) {
	stats := RealtimeStats{MemoryPressure: 0.95, CPUUtilization: 90, IOWaitPercent: 0}
	assert.Equal(t, MemoryBound, Detect(stats))

	stats = RealtimeStats{SwapInMB: 150}
	assert.Equal(t, MemoryBound, Detect(stats))
}

func TestDetectIOBound(t *testing.T) {
	stats := RealtimeStats{IOWaitPercent: 40, CPUUtilization: 50}
	assert.Equal(t, IOBound, Detect(stats))
}

func TestDetectCPUBound(t *testing.T) {
	stats := RealtimeStats{CPUUtilization: 90, IOWaitPercent: 5}
	assert.Equal(t, CPUBound, Detect(stats))
}

func TestDetectFragmentedIO(t *testing.T) {
	stats := RealtimeStats{AvgFileSize: 32 * 1024, SyscallsPerSec: 6000}
	assert.Equal(t, FragmentedIO, Detect(stats))
}

func TestDetectCompressionLimited(t *testing.T) {
	stats := RealtimeStats{CompressionMBPerSec: 10}
	assert.Equal(t, CompressionLimited, Detect(stats))
}

func TestDetectBalancedByDefault(t *testing.T) {
	assert.Equal(t, Balanced, Detect(RealtimeStats{}))
}

func TestCalculatorProducesValidConfigForEveryBottleneck(t *testing.T) {
	calc := NewCalculator(512 * 1024 * 1024)
	for _, b := range []Bottleneck{Balanced, IOBound, CPUBound, MemoryBound, FragmentedIO, CompressionLimited} {
		cfg := calc.Calculate(b)
		assert.Greater(t, cfg.ThreadCount, 0, "bottleneck %s", b)
		assert.Greater(t, cfg.CodecThreads, 0, "bottleneck %s", b)
		assert.True(t, calc.Validate(cfg), "bottleneck %s deviates beyond tolerance", b)
	}
}

func TestCalculatorUnboundedBudgetAlwaysValidates(t *testing.T) {
	calc := NewCalculator(0)
	cfg := calc.Calculate(Balanced)
	assert.True(t, calc.Validate(cfg))
}

func TestMemoryBoundStrategyCapsBufferSizes(t *testing.T) {
	calc := NewCalculator(4 * 1024 * 1024 * 1024)
	cfg := calc.Calculate(MemoryBound)
	assert.Equal(t, 2, cfg.ThreadCount)
	assert.True(t, cfg.StreamingMode)
	assert.LessOrEqual(t, cfg.InputBufferSize, 4*1024*1024)
	assert.LessOrEqual(t, cfg.CompressionBufferSize, 4*1024*1024)
	assert.LessOrEqual(t, cfg.OutputBufferSize, 2*1024*1024)
}

func TestBudgetResolveBytesUnbounded(t *testing.T) {
	b := Budget{Unbounded: true}
	n, err := b.ResolveBytes()
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBudgetResolveBytesAbsolute(t *testing.T) {
	b := Budget{AbsoluteBytes: 1024 * 1024}
	n, err := b.ResolveBytes()
	assert.NoError(t, err)
	assert.Equal(t, int64(1024*1024), n)
}

func TestTunerStartsBalancedAndFirstTuneReportsBalanced(t *testing.T) {
	tuner := NewTuner(256 * 1024 * 1024)
	assert.Equal(t, Balanced, tuner.CurrentBottleneck())

	cfg, b, err := tuner.Tune(context.Background(), 1<<20, 100)
	_ = cfg
	assert.NoError(t, err)
	assert.Equal(t, Balanced, b)
}

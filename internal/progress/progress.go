// Package progress implements lock-free per-worker counters with
// throttled, weighted aggregation for create/extract progress reporting.
package progress

import (
	"sync/atomic"
	"time"
)

// Weights applied to the three completion ratios when computing the
// aggregate percentage.
const (
	weightBytes  = 0.50
	weightFiles  = 0.30
	weightShards = 0.20
)

// DefaultThrottle is the minimum interval between callback invocations.
const DefaultThrottle = 75 * time.Millisecond

// Counters holds a single worker's atomic progress counters. The zero value
// is ready to use.
type Counters struct {
	filesProcessed int64
	bytesProcessed int64
}

// AddFile increments the processed-file count by one.
func (c *Counters) AddFile() { atomic.AddInt64(&c.filesProcessed, 1) }

// AddBytes increments the processed-byte count by n.
func (c *Counters) AddBytes(n int64) { atomic.AddInt64(&c.bytesProcessed, n) }

func (c *Counters) snapshot() (files, bytes int64) {
	return atomic.LoadInt64(&c.filesProcessed), atomic.LoadInt64(&c.bytesProcessed)
}

// Snapshot is the state emitted to a caller's progress callback.
type Snapshot struct {
	FilesProcessed  int64
	FilesTotal      int64
	BytesProcessed  int64
	BytesTotal      int64
	ShardsCompleted int32
	ShardsTotal     int32
	Elapsed         time.Duration
	MBPerSecond     float64
	Percent         float64
}

// Callback receives progress snapshots. Installing nil disables emission
// entirely.
type Callback func(Snapshot)

// Tracker aggregates per-worker Counters on a throttled schedule and calls
// an installed Callback. Tracker is safe for concurrent use: workers may
// call Worker(id), ShardDone, and Tick from any goroutine. The throttle
// timestamp is claimed with a compare-and-swap so at most one caller emits
// per throttle window; a callback that runs longer than the window can
// overlap the next window's emission.
type Tracker struct {
	workers     []*Counters
	shardsDone  int32
	filesTotal  int64
	bytesTotal  int64
	shardsTotal int32
	throttle    time.Duration
	start       time.Time
	lastEmitNs  int64
	callback    Callback
}

// New creates a Tracker for the given number of workers and known totals.
// A nil callback makes every Tick/Finish call a no-op aggregation with no
// emission cost beyond the atomic loads.
func New(workerCount int, filesTotal, bytesTotal int64, shardsTotal int32, callback Callback) *Tracker {
	workers := make([]*Counters, workerCount)
	for i := range workers {
		workers[i] = &Counters{}
	}
	return &Tracker{
		workers:     workers,
		filesTotal:  filesTotal,
		bytesTotal:  bytesTotal,
		shardsTotal: shardsTotal,
		throttle:    DefaultThrottle,
		start:       time.Now(),
		callback:    callback,
	}
}

// Worker returns the Counters a given worker index should update.
func (t *Tracker) Worker(id int) *Counters { return t.workers[id] }

// ShardDone marks one more shard complete, for the shards-term of the
// weighted percentage.
func (t *Tracker) ShardDone() { atomic.AddInt32(&t.shardsDone, 1) }

// Tick aggregates current counters and, if the throttle interval has
// elapsed, invokes the callback. Safe to call frequently from any worker;
// cheap when throttled or when no callback is installed.
func (t *Tracker) Tick() {
	if t.callback == nil {
		return
	}
	now := time.Now()
	last := atomic.LoadInt64(&t.lastEmitNs)
	if last != 0 && now.UnixNano()-last < int64(t.throttle) {
		return
	}
	if !atomic.CompareAndSwapInt64(&t.lastEmitNs, last, now.UnixNano()) {
		return
	}
	t.emit(now)
}

// Finish forces a final emission regardless of throttle state, so the
// caller always observes a 100%-complete snapshot.
func (t *Tracker) Finish() {
	if t.callback == nil {
		return
	}
	t.emit(time.Now())
}

func (t *Tracker) emit(now time.Time) {
	var files, bytes int64
	for _, w := range t.workers {
		f, b := w.snapshot()
		files += f
		bytes += b
	}
	shardsDone := atomic.LoadInt32(&t.shardsDone)
	elapsed := now.Sub(t.start)

	pctBytes := ratio(bytes, t.bytesTotal)
	pctFiles := ratio(files, t.filesTotal)
	pctShards := ratio(int64(shardsDone), int64(t.shardsTotal))
	percent := weightBytes*pctBytes + weightFiles*pctFiles + weightShards*pctShards

	mbps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		mbps = float64(bytes) / (1024 * 1024) / secs
	}

	t.callback(Snapshot{
		FilesProcessed:  files,
		FilesTotal:      t.filesTotal,
		BytesProcessed:  bytes,
		BytesTotal:      t.bytesTotal,
		ShardsCompleted: shardsDone,
		ShardsTotal:     t.shardsTotal,
		Elapsed:         elapsed,
		MBPerSecond:     mbps,
		Percent:         percent * 100,
	})
}

func ratio(done, total int64) float64 {
	if total <= 0 {
		return 1
	}
	r := float64(done) / float64(total)
	if r > 1 {
		r = 1
	}
	return r
}

package sectorsim

import "sync/atomic"

// LatencyBuckets defines the retirement-latency histogram buckets in
// simulated cycles. Buckets cover a typical 3-level hierarchy's range from
// an L1 hit (a handful of cycles) to a deeply-queued DRAM miss.
var LatencyBuckets = []uint64{
	8, 32, 128, 512, 2048, 8192, 32768, 131072,
}

const numLatencyBuckets = 8

// LevelMetrics tracks performance counters for a single cache level
// (L1/L2/L3). All fields are updated with atomic operations so a future
// parallel driver can share one Metrics instance across per-core
// goroutines even though the reference driver is single-threaded.
type LevelMetrics struct {
	Hits          atomic.Uint64
	Misses        atomic.Uint64
	MSHRHits      atomic.Uint64
	Evictions     atomic.Uint64
	DirtyEvicts   atomic.Uint64
	Backpressure  atomic.Uint64 // send() returned false
	FetchedUsed   atomic.Uint64 // sectors fetched and actually used before eviction
	FetchedUnused atomic.Uint64 // sectors fetched but never used before eviction
	NotFetched    atomic.Uint64 // sectors never fetched and never used (not applicable when sectoring is off)

	mshrOccupancyTotal atomic.Uint64
	mshrOccupancySamples atomic.Uint64
}

// Metrics tracks performance and operational statistics for a simulation
// run, adapted from the reference implementation's I/O counters into
// cache-hierarchy accounting.
type Metrics struct {
	Levels []LevelMetrics // one entry per cache level, L1 first

	RetiredInsts atomic.Uint64
	TotalLatency atomic.Uint64 // cumulative retirement latency in cycles
	LatencyHist  [numLatencyBuckets]atomic.Uint64

	DRAMReads      atomic.Uint64
	DRAMWrites     atomic.Uint64
	DRAMQueueDepth atomic.Uint64 // last observed depth, reported in snapshots only
}

// NewMetrics creates a new metrics instance sized for numLevels cache
// levels.
func NewMetrics(numLevels int) *Metrics {
	return &Metrics{Levels: make([]LevelMetrics, numLevels)}
}

// RecordHit records a cache hit at the given level.
func (m *Metrics) RecordHit(level int) {
	m.Levels[level].Hits.Add(1)
}

// RecordMiss records a cache miss at the given level that required a new
// MSHR (as opposed to one satisfied by an existing in-flight MSHR).
func (m *Metrics) RecordMiss(level int) {
	m.Levels[level].Misses.Add(1)
}

// RecordMSHRHit records a request satisfied by coverage from an existing
// in-flight MSHR.
func (m *Metrics) RecordMSHRHit(level int) {
	m.Levels[level].MSHRHits.Add(1)
}

// RecordBackpressure records a send() that returned false at the given
// level.
func (m *Metrics) RecordBackpressure(level int) {
	m.Levels[level].Backpressure.Add(1)
}

// RecordEviction records an eviction at the given level, and whether the
// evicted block carried dirty data (triggering a DRAM write-back).
func (m *Metrics) RecordEviction(level int, dirty bool) {
	m.Levels[level].Evictions.Add(1)
	if dirty {
		m.Levels[level].DirtyEvicts.Add(1)
	}
}

// RecordFetchAccounting records the fetched-used / fetched-unused /
// not-fetched-unused sector breakdown computed during an eviction
// (Scenario C in the testable-properties section).
func (m *Metrics) RecordFetchAccounting(level int, fetchedUsed, fetchedUnused, notFetchedUnused int) {
	m.Levels[level].FetchedUsed.Add(uint64(fetchedUsed))
	m.Levels[level].FetchedUnused.Add(uint64(fetchedUnused))
	m.Levels[level].NotFetched.Add(uint64(notFetchedUnused))
}

// RecordMSHROccupancy samples the number of outstanding MSHRs at the given
// level.
func (m *Metrics) RecordMSHROccupancy(level int, occupied int) {
	m.Levels[level].mshrOccupancyTotal.Add(uint64(occupied))
	m.Levels[level].mshrOccupancySamples.Add(1)
}

// RecordRetirement records the cycle latency from issue to retirement for
// one instruction.
func (m *Metrics) RecordRetirement(latencyCycles uint64) {
	m.RetiredInsts.Add(1)
	m.TotalLatency.Add(latencyCycles)
	for i, bucket := range LatencyBuckets {
		if latencyCycles <= bucket {
			m.LatencyHist[i].Add(1)
		}
	}
}

// RecordDRAMDispatch records a READ or WRITE handed to the DRAM interface.
func (m *Metrics) RecordDRAMDispatch(isWrite bool) {
	if isWrite {
		m.DRAMWrites.Add(1)
	} else {
		m.DRAMReads.Add(1)
	}
}

// RecordDRAMQueueDepth records the DRAM controller's current queue depth.
func (m *Metrics) RecordDRAMQueueDepth(depth uint64) {
	m.DRAMQueueDepth.Store(depth)
}

// LevelSnapshot is a point-in-time copy of LevelMetrics with derived
// averages computed.
type LevelSnapshot struct {
	Hits, Misses, MSHRHits                      uint64
	Evictions, DirtyEvicts                      uint64
	Backpressure                                uint64
	FetchedUsed, FetchedUnused, NotFetched       uint64
	AvgMSHROccupancy                             float64
	HitRate                                      float64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Levels []LevelSnapshot

	RetiredInsts  uint64
	AvgLatency    float64
	LatencyP50    uint64
	LatencyP99    uint64
	LatencyHist   [numLatencyBuckets]uint64

	DRAMReads, DRAMWrites uint64
	DRAMQueueDepth        uint64
}

// Snapshot returns a derived, point-in-time view of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Levels:        make([]LevelSnapshot, len(m.Levels)),
		RetiredInsts:  m.RetiredInsts.Load(),
		DRAMReads:     m.DRAMReads.Load(),
		DRAMWrites:    m.DRAMWrites.Load(),
		DRAMQueueDepth: m.DRAMQueueDepth.Load(),
	}

	for i := range m.Levels {
		lm := &m.Levels[i]
		ls := LevelSnapshot{
			Hits:          lm.Hits.Load(),
			Misses:        lm.Misses.Load(),
			MSHRHits:      lm.MSHRHits.Load(),
			Evictions:     lm.Evictions.Load(),
			DirtyEvicts:   lm.DirtyEvicts.Load(),
			Backpressure:  lm.Backpressure.Load(),
			FetchedUsed:   lm.FetchedUsed.Load(),
			FetchedUnused: lm.FetchedUnused.Load(),
			NotFetched:    lm.NotFetched.Load(),
		}
		total := ls.Hits + ls.Misses + ls.MSHRHits
		if total > 0 {
			ls.HitRate = float64(ls.Hits+ls.MSHRHits) / float64(total)
		}
		if samples := lm.mshrOccupancySamples.Load(); samples > 0 {
			ls.AvgMSHROccupancy = float64(lm.mshrOccupancyTotal.Load()) / float64(samples)
		}
		snap.Levels[i] = ls
	}

	totalLatency := m.TotalLatency.Load()
	if snap.RetiredInsts > 0 {
		snap.AvgLatency = float64(totalLatency) / float64(snap.RetiredInsts)
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHist[i] = m.LatencyHist[i].Load()
	}
	snap.LatencyP50 = m.calculatePercentile(0.50)
	snap.LatencyP99 = m.calculatePercentile(0.99)

	return snap
}

// calculatePercentile estimates the retirement latency at the given
// percentile (0.0-1.0) using linear interpolation between histogram
// buckets, the same technique the reference implementation uses for I/O
// latency percentiles.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	total := m.RetiredInsts.Load()
	if total == 0 {
		return 0
	}
	target := uint64(float64(total) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		count := m.LatencyHist[i].Load()
		if count >= target {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyHist[i-1].Load()
			}
			if count == prevCount {
				return bucket
			}
			fraction := float64(target-prevCount) / float64(count-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}
	return LatencyBuckets[numLatencyBuckets-1]
}

// Observer allows pluggable accounting, adapted from the reference's I/O
// Observer interface into cache-hierarchy events.
type Observer interface {
	ObserveHit(level int, isWrite bool)
	ObserveMiss(level int)
	ObserveMSHRHit(level int)
	ObserveEviction(level int, dirty bool)
	ObserveBackpressure(level int)
	ObserveFetchAccounting(level int, fetchedUsed, fetchedUnused, notFetchedUnused int)
	ObserveMSHROccupancy(level int, occupied int)
	ObserveRetirement(latencyCycles uint64)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveHit(int, bool)                      {}
func (NoOpObserver) ObserveMiss(int)                            {}
func (NoOpObserver) ObserveMSHRHit(int)                         {}
func (NoOpObserver) ObserveEviction(int, bool)                  {}
func (NoOpObserver) ObserveBackpressure(int)                    {}
func (NoOpObserver) ObserveFetchAccounting(int, int, int, int)  {}
func (NoOpObserver) ObserveMSHROccupancy(int, int)               {}
func (NoOpObserver) ObserveRetirement(uint64)                    {}
func (NoOpObserver) ObserveDRAMDispatch(bool)                     {}
func (NoOpObserver) ObserveDRAMQueueDepth(int)                    {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveHit(level int, isWrite bool)        { o.metrics.RecordHit(level) }
func (o *MetricsObserver) ObserveMiss(level int)                      { o.metrics.RecordMiss(level) }
func (o *MetricsObserver) ObserveMSHRHit(level int)                   { o.metrics.RecordMSHRHit(level) }
func (o *MetricsObserver) ObserveEviction(level int, dirty bool)      { o.metrics.RecordEviction(level, dirty) }
func (o *MetricsObserver) ObserveBackpressure(level int)              { o.metrics.RecordBackpressure(level) }
func (o *MetricsObserver) ObserveFetchAccounting(level int, u, un, nf int) {
	o.metrics.RecordFetchAccounting(level, u, un, nf)
}
func (o *MetricsObserver) ObserveMSHROccupancy(level int, occupied int) {
	o.metrics.RecordMSHROccupancy(level, occupied)
}
func (o *MetricsObserver) ObserveRetirement(latencyCycles uint64) {
	o.metrics.RecordRetirement(latencyCycles)
}

// ObserveDRAMDispatch and ObserveDRAMQueueDepth satisfy internal/dram's
// narrower Observer interface, letting a *MetricsObserver double as the
// DRAM controller's accounting sink without that package importing this one.
func (o *MetricsObserver) ObserveDRAMDispatch(isWrite bool) {
	o.metrics.RecordDRAMDispatch(isWrite)
}

func (o *MetricsObserver) ObserveDRAMQueueDepth(depth int) {
	o.metrics.RecordDRAMQueueDepth(uint64(depth))
}

// Compile-time interface checks.
var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)

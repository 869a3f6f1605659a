package sectorsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsBasicCounters(t *testing.T) {
	m := NewMetrics(3)

	m.RecordHit(0)
	m.RecordMiss(0)
	m.RecordMSHRHit(0)
	m.RecordBackpressure(0)
	m.RecordEviction(0, true)
	m.RecordFetchAccounting(0, 2, 6, 0)

	snap := m.Snapshot()
	require.Len(t, snap.Levels, 3)

	l0 := snap.Levels[0]
	assert.Equal(t, uint64(1), l0.Hits)
	assert.Equal(t, uint64(1), l0.Misses)
	assert.Equal(t, uint64(1), l0.MSHRHits)
	assert.Equal(t, uint64(1), l0.Backpressure)
	assert.Equal(t, uint64(1), l0.Evictions)
	assert.Equal(t, uint64(1), l0.DirtyEvicts)
	assert.Equal(t, uint64(2), l0.FetchedUsed)
	assert.Equal(t, uint64(6), l0.FetchedUnused)
	assert.InDelta(t, 2.0/3.0, l0.HitRate, 0.001)
}

func TestMetricsRetirementLatency(t *testing.T) {
	m := NewMetrics(1)

	m.RecordRetirement(4)
	m.RecordRetirement(16)
	m.RecordRetirement(47)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.RetiredInsts)
	assert.InDelta(t, float64(4+16+47)/3.0, snap.AvgLatency, 0.001)
}

func TestMetricsMSHROccupancyAverage(t *testing.T) {
	m := NewMetrics(1)

	m.RecordMSHROccupancy(0, 2)
	m.RecordMSHROccupancy(0, 4)

	snap := m.Snapshot()
	assert.InDelta(t, 3.0, snap.Levels[0].AvgMSHROccupancy, 0.001)
}

func TestMetricsObserverDelegation(t *testing.T) {
	m := NewMetrics(1)
	obs := NewMetricsObserver(m)

	obs.ObserveHit(0, false)
	obs.ObserveMiss(0)
	obs.ObserveEviction(0, false)
	obs.ObserveBackpressure(0)
	obs.ObserveFetchAccounting(0, 1, 1, 1)
	obs.ObserveMSHROccupancy(0, 1)
	obs.ObserveRetirement(10)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.Levels[0].Hits)
	assert.Equal(t, uint64(1), snap.Levels[0].Misses)
	assert.Equal(t, uint64(1), snap.RetiredInsts)
}

func TestNoOpObserverSatisfiesInterface(t *testing.T) {
	var obs Observer = NoOpObserver{}
	assert.NotPanics(t, func() {
		obs.ObserveHit(0, true)
		obs.ObserveMiss(0)
		obs.ObserveEviction(0, false)
		obs.ObserveBackpressure(0)
		obs.ObserveFetchAccounting(0, 0, 0, 0)
		obs.ObserveMSHROccupancy(0, 0)
		obs.ObserveRetirement(0)
	})
}

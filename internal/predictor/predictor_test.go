package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDisabledPredictorAlwaysReturnsZero(t *testing.T) {
	p := New(Config{Enabled: false, SectorSize: 8, BlockSize: 64, PatternTableSize: 8, Ways: 8})
	assert.Equal(t, uint64(0), p.Predict(0x1000, 0x2000))
	p.Update(0x1000, 0x2000, 0xff)
	assert.Equal(t, uint64(0), p.Predict(0x1000, 0x2000))
}

func TestUntrainedLookupHonorsPolicy(t *testing.T) {
	noPred := New(Config{Enabled: true, SectorSize: 8, BlockSize: 64, PatternTableSize: 8, Ways: 8, UntrainedNoPrediction: true})
	assert.Equal(t, uint64(0), noPred.Predict(0x1000, 0x2000))

	allSectors := New(Config{Enabled: true, SectorSize: 8, BlockSize: 64, PatternTableSize: 8, Ways: 8, UntrainedNoPrediction: false})
	assert.Equal(t, uint64(0xff), allSectors.Predict(0x1000, 0x2000))
}

func TestTrainedLookupReturnsLastRecordedMask(t *testing.T) {
	p := New(Config{Enabled: true, SectorSize: 8, BlockSize: 64, PatternTableSize: 8, Ways: 8, UntrainedNoPrediction: true, Seed: 1})
	p.Update(0x1000, 0x2000, 0x0f)
	assert.Equal(t, uint64(0x0f), p.Predict(0x1000, 0x2000))

	p.Update(0x1000, 0x2000, 0x03)
	assert.Equal(t, uint64(0x03), p.Predict(0x1000, 0x2000))
}

func TestInfiniteTableTrainsPerInstLoadPair(t *testing.T) {
	p := New(Config{Enabled: true, SectorSize: 8, BlockSize: 64, PatternTableSize: 0, UntrainedNoPrediction: true})
	assert.Equal(t, uint64(0), p.Predict(0x1000, 0x2000))
	p.Update(0x1000, 0x2000, 0x3c)
	assert.Equal(t, uint64(0x3c), p.Predict(0x1000, 0x2000))
	// a distinct (inst, load) pair is untrained independently
	assert.Equal(t, uint64(0), p.Predict(0x1000, 0x3000))
}

func TestUtilizationWindowDrivesAllSectorsPrediction(t *testing.T) {
	p := New(Config{
		Enabled:               true,
		SectorSize:            8,
		BlockSize:             64,
		PatternTableSize:      8,
		Ways:                  8,
		UtilizationWindow:     4,
		UntrainedNoPrediction: true,
		Seed:                  1,
	})
	// Drive the rolling average above the threshold (4 out of 8) with
	// full-block updates on unrelated (inst, load) pairs, then check an
	// entirely untrained lookup predicts all sectors instead of none.
	for i := 0; i < 4; i++ {
		p.Update(int64(i)<<16, int64(i)<<16, 0xff)
	}
	assert.Equal(t, uint64(0xff), p.Predict(0xdead, 0xbeef))
}

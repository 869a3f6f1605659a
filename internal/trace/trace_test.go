package trace

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorsim/sectorsim/internal/cachesim"
)

func writeTrace(t *testing.T, body string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "trace-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString(body)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestUnfilteredSingleEntry(t *testing.T) {
	fname := writeTrace(t, "1000 3 R 2000 8\n")
	tr, err := Open(fname, Config{})
	require.NoError(t, err)
	defer tr.Close()

	e, err := tr.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, int64(0x1000), e.InstAddr)
	assert.EqualValues(t, 3, e.BubbleCnt)
	assert.Equal(t, cachesim.Read, e.Type)
	assert.Equal(t, int64(0x2000), e.Addr)
}

func TestUnfilteredRewindsOnEOF(t *testing.T) {
	fname := writeTrace(t, "1000 0 R 2000 8\n")
	tr, err := Open(fname, Config{})
	require.NoError(t, err)
	defer tr.Close()

	first, err := tr.NextEntry()
	require.NoError(t, err)
	second, err := tr.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, first.Addr, second.Addr, "a single-line trace rewinds instead of signaling exhaustion")
}

func TestOversizedRequestIsSkipped(t *testing.T) {
	fname := writeTrace(t, "1000 0 R 2000 128\n2000 0 W 3000 8\n")
	tr, err := Open(fname, Config{})
	require.NoError(t, err)
	defer tr.Close()

	e, err := tr.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, int64(0x3000), e.Addr, "the oversized first line must be skipped entirely")
	assert.Equal(t, cachesim.Write, e.Type)
}

func TestBlockStraddlingRequestSplitsInTwo(t *testing.T) {
	fname := writeTrace(t, "1000 0 R 103c 16\n")
	tr, err := Open(fname, Config{})
	require.NoError(t, err)
	defer tr.Close()

	first, err := tr.NextEntry()
	require.NoError(t, err)
	second, err := tr.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, int64(0x1000), first.Addr)
	assert.Equal(t, int64(0x1040), second.Addr)
	assert.Equal(t, 4, first.Size)
	assert.Equal(t, 12, second.Size)
}

func TestSectoringComputesSectorBits(t *testing.T) {
	fname := writeTrace(t, "1000 0 R 1008 8\n")
	tr, err := Open(fname, Config{SectorSize: 8, SectoredDRAM: true, DynamicOn: true})
	require.NoError(t, err)
	defer tr.Close()

	e, err := tr.NextEntry()
	require.NoError(t, err)
	assert.Equal(t, cachesim.SectorMask(0x02), e.SectorBits, "offset 8 into a 64B block with 8B sectors is sector index 1")
}

func TestBlockStraddlingRequestRoundsSectorCountsUpPerHalf(t *testing.T) {
	fname := writeTrace(t, "1000 0 R 403c 16\n")
	tr, err := Open(fname, Config{SectorSize: 8, SectoredDRAM: true, DynamicOn: true})
	require.NoError(t, err)
	defer tr.Close()

	first, err := tr.NextEntry()
	require.NoError(t, err)
	second, err := tr.NextEntry()
	require.NoError(t, err)

	assert.Equal(t, int64(0x4000), first.Addr)
	assert.Equal(t, 4, first.Size)
	assert.Equal(t, cachesim.SectorMask(0x80), first.SectorBits, "4 bytes at offset 60 still occupies one whole sector")

	assert.Equal(t, int64(0x4040), second.Addr)
	assert.Equal(t, 12, second.Size)
	assert.Equal(t, cachesim.SectorMask(0x03), second.SectorBits, "12 bytes spans two sectors even though 12 doesn't divide evenly by 8")
}

func TestDRAMTraceReportsExhaustion(t *testing.T) {
	fname := writeTrace(t, "1000 R\n2000 W\n")
	dt, err := OpenDRAM(fname)
	require.NoError(t, err)
	defer dt.Close()

	addr, write, ok, err := dt.NextEntry()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0x1000), addr)
	assert.False(t, write)

	_, _, ok, err = dt.NextEntry()
	require.NoError(t, err)
	require.True(t, ok)

	_, _, ok, err = dt.NextEntry()
	require.NoError(t, err)
	assert.False(t, ok, "DRAM trace signals real exhaustion instead of rewinding")
}

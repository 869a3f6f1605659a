package sectorsim

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorsim/sectorsim/internal/config"
)

// writeTrace creates a temp trace file in the unfiltered
// "inst_addr bubble_cnt R|W addr size" format and returns its path.
func writeTrace(t *testing.T, lines string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "trace-*.txt")
	require.NoError(t, err)
	_, err = f.WriteString(lines)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

// TestSystemRunEndToEndWithRealDRAM exercises a full System (real
// fixed-latency Controller, not a mock) start to finish, which is the one
// path that can catch a DRAM controller whose own clock never advances:
// a hierarchy that dispatches fills but never completes them would hang
// here until MaxCycles and report zero retired instructions.
func TestSystemRunEndToEndWithRealDRAM(t *testing.T) {
	trace := writeTrace(t, ""+
		"1000 0 R 4000 8\n"+
		"1004 1 W 4008 8\n"+
		"1008 1 R 8000 8\n"+
		"100c 1 R 4000 8\n",
	)

	cfg, err := config.Parse(strings.NewReader(
		"cache=all\n" +
			"sectoredDRAM=on\n" +
			"sector_size=8\n" +
			"expected_limit_insts=4\n",
	))
	require.NoError(t, err)

	sys, err := NewSystem(cfg, []string{trace}, &Options{MaxCycles: 5000})
	require.NoError(t, err)

	result, err := sys.Run(nil)
	require.NoError(t, err)

	assert.Less(t, result.Cycles, int64(5000), "run must finish well before the cycle cap if DRAM fills actually complete")
	assert.Equal(t, int64(4), result.Insts)
	assert.Greater(t, result.IPC, 0.0)

	snap := result.Snapshot
	require.NotEmpty(t, snap.Levels)
	var totalMisses uint64
	for _, l := range snap.Levels {
		totalMisses += l.Misses
	}
	assert.Greater(t, totalMisses, uint64(0), "the cold accesses above must have missed somewhere in the hierarchy")
}

// TestSystemRunNoCachingDegenerateMode exercises the cache=off-equivalent
// path (neither private nor shared caching configured) where every
// request bypasses CacheSystem's wait/hit lists and hits DRAM directly.
func TestSystemRunNoCachingDegenerateMode(t *testing.T) {
	trace := writeTrace(t, "2000 0 R 4000 8\n2004 1 R 4040 8\n")

	cfg, err := config.Parse(strings.NewReader("expected_limit_insts=2\n"))
	require.NoError(t, err)

	sys, err := NewSystem(cfg, []string{trace}, &Options{MaxCycles: 2000})
	require.NoError(t, err)

	result, err := sys.Run(nil)
	require.NoError(t, err)
	assert.Less(t, result.Cycles, int64(2000))
	assert.Equal(t, int64(2), result.Insts)
}

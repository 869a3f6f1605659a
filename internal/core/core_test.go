package core

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorsim/sectorsim/internal/cachesim"
	"github.com/sectorsim/sectorsim/internal/reqpool"
	"github.com/sectorsim/sectorsim/internal/trace"
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

// deferredSend accepts every request immediately but only invokes its
// completion callback once release() is called, letting a test pin down
// exactly when a core's window entries clear.
type deferredSend struct {
	pending []*cachesim.Request
}

func (d *deferredSend) send(req *cachesim.Request) bool {
	d.pending = append(d.pending, req)
	return true
}

func (d *deferredSend) release() {
	pending := d.pending
	d.pending = nil
	for _, req := range pending {
		req.Callback()
	}
}

func newTestCore(t *testing.T, body string, expectedLimit int64) (*Core, *deferredSend) {
	t.Helper()
	fname := writeTrace(t, body)
	trc, err := trace.Open(fname, trace.Config{BlockSize: 64, DynamicOn: true})
	require.NoError(t, err)

	d := &deferredSend{}
	pool := reqpool.New(0)
	c := NewCore(0, Config{WindowDepth: 8, WindowIPC: 4, ExpectedLimitInsts: expectedLimit}, trc, nil, d.send, pool, nil)
	c.SetCallback(func(req *cachesim.Request) { c.Receive(req) })
	return c, d
}

// TestCoreStopsIssuingExactlyAtLimit guards against the cpuInst counter
// overshooting ExpectedLimitInsts within a single Tick (bubbles plus one
// access can all land in the same call): once the limit is reached,
// HasReachedLimit must be true and no further instructions issued, ever
// again, regardless of how many more Ticks are driven.
func TestCoreStopsIssuingExactlyAtLimit(t *testing.T) {
	// bubble counts 0,1,1,1 plus four accesses = limit hit mid-third-line.
	body := "1000 0 R 4000 8\n1004 1 W 4008 8\n1008 1 R 8000 8\n100c 1 R 4000 8\n"
	c, d := newTestCore(t, body, 4)

	for i := 0; i < 20; i++ {
		c.Tick()
		d.release()
	}

	assert.True(t, c.HasReachedLimit())
	assert.Equal(t, int64(4), c.Insts(), "cpuInst must stop exactly at the configured limit, not overshoot it")

	cpuInstAfter := c.Insts()
	for i := 0; i < 10; i++ {
		c.Tick()
		d.release()
	}
	assert.Equal(t, cpuInstAfter, c.Insts(), "no further instructions may issue once the limit is reached")
}

// TestCoreFinishedOnceLimitReachedAndWindowDrains exercises the
// termination condition System.Run actually polls: Finished must become
// true once every in-flight access has been released, even though the
// underlying trace rewinds forever and never reports EOF on its own.
func TestCoreFinishedOnceLimitReachedAndWindowDrains(t *testing.T) {
	c, d := newTestCore(t, "1000 0 R 4000 8\n", 1)

	c.Tick()
	assert.False(t, c.Finished(), "the in-flight read must still be outstanding")

	d.release()
	c.Tick()
	assert.True(t, c.Finished())
}

// TestCoreNeverFinishesWithoutLimitOnRewindingTrace documents that a core
// given no ExpectedLimitInsts has no real stopping condition against a
// trace that rewinds on EOF: callers must bound such a run some other way
// (e.g. System.Options.MaxCycles).
func TestCoreNeverFinishesWithoutLimitOnRewindingTrace(t *testing.T) {
	c, d := newTestCore(t, "1000 0 R 4000 8\n", 0)

	for i := 0; i < 50; i++ {
		c.Tick()
		d.release()
	}
	assert.False(t, c.Finished())
}

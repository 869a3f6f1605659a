package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBubblesRetireImmediately(t *testing.T) {
	w := New(4, 2)
	w.Insert(true, -1, 0)
	w.Insert(true, -1, 0)
	require.False(t, w.IsEmpty())
	assert.Equal(t, 2, w.Retire())
	assert.True(t, w.IsEmpty())
}

func TestRetireStopsAtFirstNotReady(t *testing.T) {
	w := New(4, 4)
	w.Insert(true, -1, 0)
	w.Insert(false, 0x1000, 1)
	w.Insert(true, -1, 0)
	assert.Equal(t, 1, w.Retire(), "retirement is in-order; a not-ready entry blocks everything behind it")
	assert.Equal(t, 2, w.Size())
}

func TestSetReadyClearsMatchingOutstandingSectors(t *testing.T) {
	w := New(4, 4)
	w.Insert(false, 0x1000, 0x03)
	w.SetReady(0x1000, ^int64(0), 0x01)
	assert.Equal(t, 0, w.Retire(), "sector 0x02 still outstanding")

	w.SetReady(0x1000, ^int64(0), 0x02)
	assert.Equal(t, 1, w.Retire(), "both outstanding sectors cleared")
}

func TestIsFullBlocksFurtherInserts(t *testing.T) {
	w := New(2, 4)
	w.Insert(true, -1, 0)
	w.Insert(true, -1, 0)
	assert.True(t, w.IsFull())
}

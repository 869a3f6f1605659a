package reqpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sectorsim/sectorsim/internal/cachesim"
)

func TestGetResetsFieldsAndReuseClearsState(t *testing.T) {
	p := New(2)

	req := p.Get(0x1000, cachesim.Read, nil)
	require.Len(t, req.SectorBits, 3)
	req.SectorBits[0] = 0xff
	req.CacheHit = true

	p.Put(req)

	req2 := p.Get(0x2000, cachesim.Write, nil)
	assert.Equal(t, int64(0x2000), req2.Addr)
	assert.Equal(t, cachesim.Write, req2.Type)
	assert.False(t, req2.CacheHit, "Reset must clear prior occupant's state")
	assert.EqualValues(t, 0, req2.SectorBits[0], "Reset must clear prior occupant's sector bits")
}

func TestPutIgnoresWrongDepthRequest(t *testing.T) {
	p := New(1)
	foreign := cachesim.NewRequest(0, cachesim.Read, 3, nil)
	assert.NotPanics(t, func() { p.Put(foreign) })
}

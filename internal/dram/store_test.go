package dram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadSectorsOnUntouchedBlockIsZero(t *testing.T) {
	s := NewStore(64)
	out := s.ReadSectors(0x1000, 8, 0xff)
	assert.Equal(t, make([]byte, 64), out)
}

func TestWriteThenReadRoundTripsMaskedSectorsOnly(t *testing.T) {
	s := NewStore(64)
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i + 1)
	}

	// Write only sectors 0 and 2 (8 bytes each).
	s.WriteSectors(0x2000, 8, 0b00000101, data)

	out := s.ReadSectors(0x2000, 8, 0b00000101)
	assert.Equal(t, data[0:8], out[0:8])
	assert.Equal(t, data[16:24], out[16:24])

	// Sector 1 was never written, and is not part of the read mask.
	assert.Equal(t, make([]byte, 8), out[8:16])

	// Requesting an unwritten sector returns zeros even though the block exists.
	full := s.ReadSectors(0x2000, 8, 0xff)
	assert.Equal(t, make([]byte, 8), full[8:16])
	assert.Equal(t, data[0:8], full[0:8])
}

func TestDifferentBlockAddressesAreIndependent(t *testing.T) {
	s := NewStore(64)
	s.WriteSectors(0x1000, 8, 0xff, bytesOf(0xAA, 64))
	s.WriteSectors(0x1040, 8, 0xff, bytesOf(0xBB, 64))

	assert.Equal(t, bytesOf(0xAA, 64), s.ReadSectors(0x1000, 8, 0xff))
	assert.Equal(t, bytesOf(0xBB, 64), s.ReadSectors(0x1040, 8, 0xff))
}

func bytesOf(v byte, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = v
	}
	return b
}

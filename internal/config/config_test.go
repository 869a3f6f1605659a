package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTypedAndRawFields(t *testing.T) {
	src := `# a comment line
channels = 4
sector_size=8
cache = all
spatial_predictor=on
untrained_policy_no_prediction = yes
early_exit=off
`
	c, err := Parse(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Channels())
	assert.Equal(t, 8, c.SectorSize())
	assert.True(t, c.HasL3Cache())
	assert.True(t, c.HasCoreCaches())
	assert.True(t, c.IsSpatialPredictorEnabled())
	assert.True(t, c.IsUntrainedPolicyNoPrediction())
	assert.False(t, c.IsEarlyExit())
}

func TestDefaultsWhenKeyAbsent(t *testing.T) {
	c, err := Parse(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, 8, c.PatternTableSize())
	assert.Equal(t, 8, c.PatternTableWays())
	assert.Equal(t, 64, c.UtilizationWindow())
	assert.Equal(t, 1, c.LookaheadSize())
	assert.True(t, c.IsEarlyExit(), "early_exit defaults to true, unlike every other on/off key")
	assert.False(t, c.IsSpatialPredictorEnabled())
}

func TestMalformedLineIsRejected(t *testing.T) {
	_, err := Parse(strings.NewReader("sector_size 8 extra\n"))
	assert.Error(t, err)
}

func TestBlankAndCommentLinesIgnored(t *testing.T) {
	c, err := Parse(strings.NewReader("\n  \n# foo\nmem_tick=2\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, c.MemTick())
}

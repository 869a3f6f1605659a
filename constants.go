package sectorsim

import "github.com/sectorsim/sectorsim/internal/constants"

// Re-exported cache geometry, latency, and predictor defaults, so callers
// assembling a System by hand (rather than through config.Load) don't need
// to import the internal package themselves.
const (
	DefaultL1Size = constants.DefaultL1Size
	DefaultL1Assoc = constants.DefaultL1Assoc
	DefaultL1MSHRs = constants.DefaultL1MSHRs

	DefaultL2Size  = constants.DefaultL2Size
	DefaultL2Assoc = constants.DefaultL2Assoc
	DefaultL2MSHRs = constants.DefaultL2MSHRs

	DefaultL3Size         = constants.DefaultL3Size
	DefaultL3Assoc        = constants.DefaultL3Assoc
	DefaultL3MSHRsPerCore = constants.DefaultL3MSHRsPerCore

	DefaultBlockSize     = constants.DefaultBlockSize
	MaxTraceRequestSize  = constants.MaxTraceRequestSize

	DefaultL1Latency = constants.DefaultL1Latency
	DefaultL2Latency = constants.DefaultL2Latency
	DefaultL3Latency = constants.DefaultL3Latency

	SlowL1Latency = constants.SlowL1Latency
	SlowL2Latency = constants.SlowL2Latency
	SlowL3Latency = constants.SlowL3Latency

	DefaultLookaheadSize     = constants.DefaultLookaheadSize
	DefaultPatternTableSize  = constants.DefaultPatternTableSize
	DefaultPatternTableWays  = constants.DefaultPatternTableWays
	DefaultUtilizationWindow = constants.DefaultUtilizationWindow

	DefaultWindowDepth = constants.DefaultWindowDepth
	DefaultWindowIPC   = constants.DefaultWindowIPC
)

// Package constants holds the default cache geometry, latency, and
// predictor parameters used when a configuration file omits them.
package constants

// Default cache geometry, in bytes / ways / MSHR slots.
const (
	// DefaultL1Size is the default L1 data cache capacity (32 KiB).
	DefaultL1Size = 1 << 15
	// DefaultL1Assoc is the default L1 associativity (8-way).
	DefaultL1Assoc = 1 << 3
	// DefaultL1MSHRs is the default number of L1 MSHR slots.
	DefaultL1MSHRs = 16

	// DefaultL2Size is the default L2 cache capacity (256 KiB).
	DefaultL2Size = 1 << 18
	// DefaultL2Assoc is the default L2 associativity (8-way).
	DefaultL2Assoc = 1 << 3
	// DefaultL2MSHRs is the default number of L2 MSHR slots.
	DefaultL2MSHRs = 16

	// DefaultL3Size is the default shared L3 cache capacity (8 MiB).
	DefaultL3Size = 1 << 23
	// DefaultL3Assoc is the default L3 associativity (8-way).
	DefaultL3Assoc = 1 << 3
	// DefaultL3MSHRsPerCore is the per-core multiplier for shared L3 MSHRs.
	DefaultL3MSHRsPerCore = 16

	// DefaultBlockSize is the default cache block size for every level (64 B).
	DefaultBlockSize = 1 << 6

	// MaxTraceRequestSize is the largest single trace request accepted
	// before the core's trace reader skips it (§6: "size > 64 B skipped").
	MaxTraceRequestSize = 64
)

// Fixed per-level latencies, in cycles, accumulated from L1 (§6).
const (
	DefaultL1Latency = 4
	DefaultL2Latency = 4 + 12
	DefaultL3Latency = 4 + 12 + 31

	SlowL1Latency = 5
	SlowL2Latency = 5 + 13
	SlowL3Latency = 5 + 13 + 32
)

// Spatial predictor defaults (Config.h in the distilled original).
const (
	DefaultLookaheadSize     = 1
	DefaultPatternTableSize  = 8
	DefaultPatternTableWays  = 8
	DefaultUtilizationWindow = 64

	// UtilizationAllSectorsThreshold is the trailing-mean popcount
	// (out of 8 sectors) at or above which an untrained lookup predicts
	// "all sectors" rather than the policy default (§4.4).
	UtilizationAllSectorsThreshold = 4
)

// Window / retirement defaults (Processor.h in the distilled original).
const (
	DefaultWindowDepth = 128
	DefaultWindowIPC   = 4
)

// Package config parses the simulator's flat key=value configuration
// files and exposes the recognized keys through typed accessors, mirroring
// the distilled original's Config::parse tokenizer and Config.h field set.
package config

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sectorsim/sectorsim/internal/constants"
	"github.com/sectorsim/sectorsim/internal/simerrutil"
)

// delimiters between tokens on a parameter line: space, tab, '='.
const delimiters = " \t="

// Config holds every key=value pair from a config file plus the typed
// numeric fields the original parsed inline while tokenizing.
type Config struct {
	options map[string]string

	channels  int
	ranks     int
	subarrays int
	cpuTick   int
	memTick   int
	coreNum   int

	expectedLimitInsts int64
	warmupInsts        int64
	sectorSize         int
	lookaheadSize      int
	patternTableSize   int
	patternTableWays   int
	utilizationWindow  int

	stridePrefMode              int
	stridePrefEntries            int
	stridePrefSingleStrideTresh  int
	stridePrefMultiStrideTresh   int
	stridePrefStrideStartDist    int
	stridePrefStrideDegree       int
	stridePrefStrideDist         int

	dpowerConfigPath string
}

// New returns an empty Config with the original's built-in field defaults
// (lookahead_size=1, pattern_table_size=8, pattern_table_ways=8,
// utilization_window=64; everything else zero).
func New() *Config {
	return &Config{
		options:           make(map[string]string),
		lookaheadSize:     constants.DefaultLookaheadSize,
		patternTableSize:  constants.DefaultPatternTableSize,
		patternTableWays:  constants.DefaultPatternTableWays,
		utilizationWindow: constants.DefaultUtilizationWindow,
	}
}

// Load parses fname, mirroring Config::parse's line-oriented tokenizer:
// whitespace/'='-separated tokens, '#'-prefixed comment lines, blank lines
// skipped, exactly two tokens required on every parameter line.
func Load(fname string) (*Config, error) {
	f, err := os.Open(fname)
	if err != nil {
		e := simerrutil.Wrap("config.Load", err)
		e.Code = simerrutil.CodeConfigError
		return nil, e
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a config stream, returning a *simerrutil.Error (CodeConfigError)
// on a malformed parameter line.
func Parse(r io.Reader) (*Config, error) {
	c := New()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tokens := tokenize(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		if strings.HasPrefix(tokens[0], "#") {
			continue
		}
		if len(tokens) != 2 {
			return nil, simerrutil.New("config.Parse", simerrutil.CodeConfigError,
				"only allow two tokens in one line: "+scanner.Text())
		}
		c.options[tokens[0]] = tokens[1]
		c.applyTyped(tokens[0], tokens[1])
	}
	if err := scanner.Err(); err != nil {
		return nil, simerrutil.Wrap("config.Parse", err)
	}
	return c, nil
}

func tokenize(line string) []string {
	var tokens []string
	for {
		start := strings.IndexFunc(line, func(r rune) bool { return !strings.ContainsRune(delimiters, r) })
		if start < 0 {
			break
		}
		line = line[start:]
		end := strings.IndexAny(line, delimiters)
		if end < 0 {
			tokens = append(tokens, line)
			break
		}
		tokens = append(tokens, line[:end])
		line = line[end:]
	}
	return tokens
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atol(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (c *Config) applyTyped(key, value string) {
	switch key {
	case "channels":
		c.channels = atoi(value)
	case "ranks":
		c.ranks = atoi(value)
	case "subarrays":
		c.subarrays = atoi(value)
	case "cpu_tick":
		c.cpuTick = atoi(value)
	case "mem_tick":
		c.memTick = atoi(value)
	case "expected_limit_insts":
		c.expectedLimitInsts = atol(value)
	case "warmup_insts":
		c.warmupInsts = atol(value)
	case "sector_size":
		c.sectorSize = atoi(value)
	case "lookahead_size":
		c.lookaheadSize = atoi(value)
	case "pattern_table_size":
		c.patternTableSize = atoi(value)
	case "pattern_table_ways":
		c.patternTableWays = atoi(value)
	case "utilization_window":
		c.utilizationWindow = atoi(value)
	case "dpower_config_path":
		c.dpowerConfigPath = value
	case "stride_pref_mode":
		c.stridePrefMode = atoi(value)
	case "stride_pref_entries":
		c.stridePrefEntries = atoi(value)
	case "stride_pref_single_stride_tresh":
		c.stridePrefSingleStrideTresh = atoi(value)
	case "stride_pref_multi_stride_tresh":
		c.stridePrefMultiStrideTresh = atoi(value)
	case "stride_pref_stride_start_dist":
		c.stridePrefStrideStartDist = atoi(value)
	case "stride_pref_stride_degree":
		c.stridePrefStrideDegree = atoi(value)
	case "stride_pref_stride_dist":
		c.stridePrefStrideDist = atoi(value)
	}
}

// Contains reports whether name was set by the config file.
func (c *Config) Contains(name string) bool {
	_, ok := c.options[name]
	return ok
}

// Get returns the raw string value for name, or "" if unset.
func (c *Config) Get(name string) string { return c.options[name] }

// SetCoreNum records the number of cores, set by the driver after the
// trace list is known rather than parsed from the file.
func (c *Config) SetCoreNum(n int) { c.coreNum = n }

func (c *Config) Channels() int             { return c.channels }
func (c *Config) Ranks() int                { return c.ranks }
func (c *Config) Subarrays() int            { return c.subarrays }
func (c *Config) CPUTick() int              { return c.cpuTick }
func (c *Config) MemTick() int              { return c.memTick }
func (c *Config) CoreNum() int              { return c.coreNum }
func (c *Config) ExpectedLimitInsts() int64 { return c.expectedLimitInsts }
func (c *Config) WarmupInsts() int64        { return c.warmupInsts }
func (c *Config) SectorSize() int           { return c.sectorSize }
func (c *Config) LookaheadSize() int        { return c.lookaheadSize }
func (c *Config) PatternTableSize() int     { return c.patternTableSize }
func (c *Config) PatternTableWays() int     { return c.patternTableWays }
func (c *Config) UtilizationWindow() int    { return c.utilizationWindow }
func (c *Config) DPowerConfigPath() string  { return c.dpowerConfigPath }

func (c *Config) isOn(name string) bool  { return c.options[name] == "on" }
func (c *Config) isYes(name string) bool { return c.options[name] == "yes" }

func (c *Config) IsSectoredDRAM() bool           { return c.isOn("sectoredDRAM") }
func (c *Config) IsFineGrainedDRAM() bool        { return c.isOn("fineGrainedDRAM") }
func (c *Config) IsHalfDRAM() bool                { return c.isOn("halfDRAM") }
func (c *Config) IsPartialActivationDRAM() bool  { return c.isOn("partialActivationDRAM") }
func (c *Config) IsDGMS() bool                    { return c.isOn("DGMS") }
func (c *Config) IsLookaheadPredictorEnabled() bool { return c.isOn("lookahead_predictor") }
func (c *Config) IsSlowCache() bool               { return c.isOn("slow_cache") }
func (c *Config) IsBurstChopDRAM() bool           { return c.isOn("burstChopDRAM") }
func (c *Config) IsSpatialPredictorEnabled() bool { return c.isOn("spatial_predictor") }
func (c *Config) IsUntrainedPolicyNoPrediction() bool { return c.isYes("untrained_policy_no_prediction") }
func (c *Config) IsParallelizationEnabled() bool  { return c.isOn("parallelization") }
func (c *Config) IsPrefetcher() bool              { return c.isOn("prefetcher") }
func (c *Config) IsDynamicPolicy() bool           { return c.isOn("dynamic_policy") }
func (c *Config) RecordCmdTrace() bool            { return c.isOn("record_cmd_trace") }
func (c *Config) PrintCmdTrace() bool             { return c.isOn("print_cmd_trace") }

func (c *Config) HasL3Cache() bool {
	v := c.options["cache"]
	return v == "all" || v == "L3"
}

func (c *Config) HasCoreCaches() bool {
	v := c.options["cache"]
	return v == "all" || v == "L1L2"
}

// IsEarlyExit defaults to true, unlike every other boolean key here, which
// default to false; the original special-cases it the same way.
func (c *Config) IsEarlyExit() bool {
	v, ok := c.options["early_exit"]
	if !ok {
		return true
	}
	return v != "off"
}

func (c *Config) CalcWeightedSpeedup() bool { return c.expectedLimitInsts != 0 }

func (c *Config) StridePrefMode() int                 { return c.stridePrefMode }
func (c *Config) StridePrefEntries() int              { return c.stridePrefEntries }
func (c *Config) StridePrefSingleStrideTresh() int    { return c.stridePrefSingleStrideTresh }
func (c *Config) StridePrefMultiStrideTresh() int     { return c.stridePrefMultiStrideTresh }
func (c *Config) StridePrefStrideStartDist() int      { return c.stridePrefStrideStartDist }
func (c *Config) StridePrefStrideDegree() int         { return c.stridePrefStrideDegree }
func (c *Config) StridePrefStrideDist() int           { return c.stridePrefStrideDist }

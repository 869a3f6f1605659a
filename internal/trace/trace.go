// Package trace reads the simulator's two on-disk trace formats: the
// unfiltered per-instruction format (inst_addr bubble_cnt R|W addr size)
// and the address-only DRAM replay format (addr R|W), mirroring
// Trace::get_unfiltered_request and Trace::get_dramtrace_request.
package trace

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sectorsim/sectorsim/internal/cachesim"
	"github.com/sectorsim/sectorsim/internal/simerrutil"
)

// Entry is one instruction-stream entry: a bubble count followed by at
// most one memory access.
type Entry struct {
	InstAddr     int64
	BubbleCnt    int64
	Type         cachesim.ReqType
	Addr         int64 // block-aligned
	SectorBits   cachesim.SectorMask
	Size         int
	ActualAccess cachesim.SectorMask
}

// Trace is the unfiltered per-instruction trace reader. It rewinds to the
// start of the file on EOF rather than signaling exhaustion, matching the
// original: replay length is governed by expected_limit_insts, not file
// size.
type Trace struct {
	f      *os.File
	r      *bufio.Reader
	pend   []Entry
	fname  string

	blockSize              int64
	sectorSize             int
	sectoredDRAM           bool
	dgms                   bool
	partialActivationDRAM  bool
	dynamicOn              bool
}

// Config configures a Trace reader's block/sector geometry and which DRAM
// sectoring mode is active, mirroring the fields the original's Core reads
// out of Processor/Config before constructing its Trace.
type Config struct {
	BlockSize             int64
	SectorSize            int
	SectoredDRAM          bool
	DGMS                  bool
	PartialActivationDRAM bool
	DynamicOn             bool
}

// Open opens fname for unfiltered trace reading.
func Open(fname string, cfg Config) (*Trace, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, simerrutil.Wrap("trace.Open", err)
	}
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = 64
	}
	return &Trace{
		f:                     f,
		r:                     bufio.NewReader(f),
		fname:                 fname,
		blockSize:             blockSize,
		sectorSize:            cfg.SectorSize,
		sectoredDRAM:          cfg.SectoredDRAM,
		dgms:                  cfg.DGMS,
		partialActivationDRAM: cfg.PartialActivationDRAM,
		dynamicOn:             cfg.DynamicOn,
	}, nil
}

// Close releases the underlying file handle.
func (t *Trace) Close() error { return t.f.Close() }

func (t *Trace) readLine() (string, error) {
	line, err := t.r.ReadString('\n')
	if err == io.EOF {
		if line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		if _, serr := t.f.Seek(0, io.SeekStart); serr != nil {
			return "", simerrutil.Wrap("trace.readLine", serr)
		}
		t.r = bufio.NewReader(t.f)
		line, err = t.r.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", simerrutil.Wrap("trace.readLine", err)
		}
	} else if err != nil {
		return "", simerrutil.Wrap("trace.readLine", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// NextEntry returns the next entry of the instruction stream, rewinding
// the file and resuming from the top on EOF. It only returns an error for
// a genuinely malformed line, never for exhaustion.
func (t *Trace) NextEntry() (Entry, error) {
	for len(t.pend) == 0 {
		if err := t.fill(); err != nil {
			return Entry{}, err
		}
	}
	e := t.pend[0]
	t.pend = t.pend[1:]
	return e, nil
}

// fill reads one raw trace line and appends one or two Entry values to
// pend (two when the access straddles a block boundary), skipping lines
// whose access size exceeds a full block.
func (t *Trace) fill() error {
	line, err := t.readLine()
	if err != nil {
		return err
	}
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return simerrutil.New("trace.fill", simerrutil.CodeTraceError, "malformed trace line: "+line)
	}

	instAddr, err := strconv.ParseInt(fields[0], 16, 64)
	if err != nil {
		return simerrutil.Wrap("trace.fill", err)
	}
	bubbleCnt, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return simerrutil.Wrap("trace.fill", err)
	}
	reqType := cachesim.Read
	if fields[2][0] == 'W' {
		reqType = cachesim.Write
	}
	addr, err := strconv.ParseInt(fields[3], 16, 64)
	if err != nil {
		return simerrutil.Wrap("trace.fill", err)
	}
	size := 64
	if len(fields) >= 5 {
		size, err = strconv.Atoi(fields[4])
		if err != nil {
			return simerrutil.Wrap("trace.fill", err)
		}
	}
	if size > int(t.blockSize) {
		return nil // skipped: caller's fill loop will read the next line
	}

	mask := t.blockSize - 1
	blockBase := addr &^ mask
	straddles := (addr + int64(size)) > (blockBase + t.blockSize)
	sectoring := t.sectorSize > 0 && (t.sectoredDRAM || t.dgms || (t.partialActivationDRAM && reqType == cachesim.Write))

	if straddles {
		firstSize := int(t.blockSize - (addr & mask))
		secondSize := size - firstSize
		var firstBits, secondBits cachesim.SectorMask
		if sectoring {
			// Each half gets its own sector count: the head rounds its
			// byte count up to whole sectors, while the tail takes
			// (secondSize/sectorSize)+1, one sector more than it covers
			// when its byte count divides evenly by sectorSize.
			firstBits = t.sectorBitsForCount(addr, ((firstSize-1)/t.sectorSize)+1)
			secondBits = t.sectorBitsForCount(blockBase+t.blockSize, (secondSize/t.sectorSize)+1)
		}
		if !t.dynamicOn {
			firstBits, secondBits = t.fullMask(), t.fullMask()
		}
		t.pend = append(t.pend,
			Entry{InstAddr: instAddr, BubbleCnt: bubbleCnt, Type: reqType, Addr: blockBase, SectorBits: firstBits, Size: firstSize, ActualAccess: firstBits},
			Entry{InstAddr: instAddr, BubbleCnt: 1, Type: reqType, Addr: blockBase + t.blockSize, SectorBits: secondBits, Size: secondSize, ActualAccess: secondBits},
		)
		return nil
	}

	var bits cachesim.SectorMask
	if sectoring {
		bits = t.sectorBitsFor(addr, size)
	}
	if !t.dynamicOn {
		bits = t.fullMask()
	}
	t.pend = append(t.pend, Entry{
		InstAddr: instAddr, BubbleCnt: bubbleCnt, Type: reqType,
		Addr: blockBase, SectorBits: bits, Size: size, ActualAccess: bits,
	})
	return nil
}

// sectorBitsFor one-hot-encodes ceil(size/sectorSize) sectors (at least
// one) starting at the sector holding addr, mirroring the
// n_sector_bits/sector_bits_offset arithmetic.
func (t *Trace) sectorBitsFor(addr int64, size int) cachesim.SectorMask {
	sectors := (size + t.sectorSize - 1) / t.sectorSize
	if sectors == 0 {
		sectors = 1
	}
	return t.sectorBitsForCount(addr, sectors)
}

// sectorBitsForCount one-hot-encodes the given number of sectors starting
// at addr's offset within its block.
func (t *Trace) sectorBitsForCount(addr int64, sectors int) cachesim.SectorMask {
	if sectors <= 0 {
		sectors = 1
	}
	n := (uint64(1) << uint(sectors)) - 1
	offset := uint((addr & (t.blockSize - 1)) / int64(t.sectorSize))
	return cachesim.SectorMask(n << offset)
}

func (t *Trace) fullMask() cachesim.SectorMask {
	if t.sectorSize == 0 {
		return 0
	}
	n := t.blockSize / int64(t.sectorSize)
	return cachesim.SectorMask((uint64(1) << uint(n)) - 1)
}

// DRAMTrace reads the simpler address+R/W replay format. Unlike Trace, it
// reports real exhaustion: NextEntry's second return is false at EOF.
type DRAMTrace struct {
	r *bufio.Reader
	f *os.File
}

// OpenDRAM opens fname for DRAM-trace replay.
func OpenDRAM(fname string) (*DRAMTrace, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, simerrutil.Wrap("trace.OpenDRAM", err)
	}
	return &DRAMTrace{f: f, r: bufio.NewReader(f)}, nil
}

// Close releases the underlying file handle.
func (d *DRAMTrace) Close() error { return d.f.Close() }

// NextEntry returns the next (addr, isWrite) pair, or ok=false at EOF.
func (d *DRAMTrace) NextEntry() (addr int64, isWrite bool, ok bool, err error) {
	line, rerr := d.r.ReadString('\n')
	if rerr != nil && line == "" {
		return 0, false, false, nil
	}
	line = strings.TrimRight(line, "\r\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return 0, false, false, nil
	}
	a, perr := strconv.ParseInt(fields[0], 16, 64)
	if perr != nil {
		return 0, false, false, simerrutil.Wrap("trace.DRAMTrace.NextEntry", perr)
	}
	write := len(fields) > 1 && fields[1][0] == 'W'
	return a, write, true, nil
}

package sectorsim

import (
	"sync"

	"github.com/sectorsim/sectorsim/internal/interfaces"
)

// MockDRAM is a DRAMInterface test double for exercising a System (or a
// bare cache hierarchy) without internal/dram's fixed-latency accounting:
// it accepts every request immediately unless told to backpressure, and
// holds completions until the test explicitly releases them with
// Advance, so assertions can pin down exact cycle-by-cycle ordering.
type MockDRAM struct {
	mu sync.Mutex

	full      bool
	sendCalls int
	reads     int
	writes    int

	// pending holds accepted requests not yet released by Advance.
	pending []interfaces.Request
}

// NewMockDRAM returns a MockDRAM that accepts every request immediately.
func NewMockDRAM() *MockDRAM {
	return &MockDRAM{}
}

// SendMemory implements interfaces.DRAMInterface. It records the call and
// queues req for release by a later Advance, unless SetFull(true) is in
// effect, in which case it returns false without touching req.
func (m *MockDRAM) SendMemory(req interfaces.Request) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.full {
		return false
	}
	m.sendCalls++
	m.pending = append(m.pending, req)
	return true
}

// SetFull toggles whether SendMemory backpressures, for exercising a
// hierarchy's retry path without a real queue-depth limit.
func (m *MockDRAM) SetFull(full bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.full = full
}

// Advance invokes Callback on every request currently pending and clears
// the queue, simulating one round of fills landing at once.
func (m *MockDRAM) Advance() int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, req := range pending {
		req.Callback()
	}
	return len(pending)
}

// SendCalls reports how many requests SendMemory has accepted; calls
// rejected by backpressure are not counted.
func (m *MockDRAM) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

// PendingCount reports how many accepted requests are awaiting Advance.
func (m *MockDRAM) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Reset clears all recorded calls and pending requests, without changing
// the Full setting.
func (m *MockDRAM) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = 0
	m.pending = nil
}

var _ interfaces.DRAMInterface = (*MockDRAM)(nil)

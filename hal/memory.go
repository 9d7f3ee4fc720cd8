package hal

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Memory is an in-RAM reference Device, used by unit tests and the
// conformance fixtures that don't want real file I/O in the loop. It
// never fails a read/write once constructed, except for out-of-range
// LBAs and wrongly sized buffers, so tests that need to exercise HW_IO
// use InjectFault.
type Memory struct {
	mu     sync.Mutex
	caps   Capabilities
	base   uint64
	blocks [][]byte
	faults map[uint64]error
}

// NewMemory allocates capacity blocks of caps.BlockSize bytes each,
// addressed starting at base.
func NewMemory(base uint64, capacity uint64, caps Capabilities) *Memory {
	blocks := make([][]byte, capacity)
	for i := range blocks {
		blocks[i] = make([]byte, caps.BlockSize)
	}
	return &Memory{caps: caps, base: base, blocks: blocks, faults: make(map[uint64]error)}
}

func (m *Memory) index(lba uint64) (int, error) {
	if lba < m.base {
		return 0, fmt.Errorf("hal: lba %d below base %d", lba, m.base)
	}
	idx := lba - m.base
	if idx >= uint64(len(m.blocks)) {
		return 0, fmt.Errorf("hal: lba %d out of range", lba)
	}
	return int(idx), nil
}

// InjectFault makes the next SyncRead or SyncWrite at lba fail with
// err, then clears itself: a one-shot fault, mirroring a transient HW
// glitch rather than a permanently dead sector.
func (m *Memory) InjectFault(lba uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[lba] = err
}

func (m *Memory) takeFault(lba uint64) error {
	err, ok := m.faults[lba]
	if !ok {
		return nil
	}
	delete(m.faults, lba)
	return err
}

func (m *Memory) SyncRead(_ context.Context, lba uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFault(lba); err != nil {
		return err
	}
	idx, err := m.index(lba)
	if err != nil {
		return err
	}
	if len(buf) != m.caps.BlockSize {
		return fmt.Errorf("hal: read buffer size %d, want %d", len(buf), m.caps.BlockSize)
	}
	copy(buf, m.blocks[idx])
	return nil
}

func (m *Memory) SyncWrite(_ context.Context, lba uint64, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFault(lba); err != nil {
		return err
	}
	idx, err := m.index(lba)
	if err != nil {
		return err
	}
	if len(buf) != m.caps.BlockSize {
		return fmt.Errorf("hal: write buffer size %d, want %d", len(buf), m.caps.BlockSize)
	}
	copy(m.blocks[idx], buf)
	return nil
}

func (m *Memory) GetCaps() Capabilities { return m.caps }

func (m *Memory) GetRandomU64() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (m *Memory) Prefetch(context.Context, uint64, int) {}

var _ Device = (*Memory)(nil)

package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/thermoctl/internal/memory"
	"github.com/danmuck/thermoctl/internal/protocol/command"
	"github.com/danmuck/thermoctl/internal/thermo"
)

var ErrOutOfBounds = errors.New("device: access out of bounds")

// Memory holds the device's config and state images.
type Memory struct {
	mu     sync.Mutex
	config []byte
	state  []byte
	booted time.Time
	now    func() time.Time
}

var _ memory.Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		config: make([]byte, thermo.ConfigSize),
		state:  make([]byte, thermo.StateSize),
		booted: time.Now(),
		now:    time.Now,
	}
}

// Uptime is the number of whole seconds since the device booted.
func (m *Memory) Uptime() uint32 {
	return uint32(m.now().Sub(m.booted) / time.Second)
}

func (m *Memory) region(r command.Region) ([]byte, bool) {
	switch r {
	case command.RegionConfig:
		return m.config, true
	case command.RegionState:
		return m.state, true
	default:
		return nil, false
	}
}

// Read copies length bytes at offset out of region r.
func (m *Memory) Read(r command.Region, offset, length int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.region(r)
	if !ok || offset < 0 || length < 0 || offset+length > len(mem) {
		return nil, fmt.Errorf("%w: %s [%d,+%d)", ErrOutOfBounds, r, offset, length)
	}
	out := make([]byte, length)
	copy(out, mem[offset:offset+length])
	return out, nil
}

// Write copies data into region r at offset.
func (m *Memory) Write(r command.Region, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.region(r)
	if !ok || offset < 0 || offset+len(data) > len(mem) {
		return fmt.Errorf("%w: %s [%d,+%d)", ErrOutOfBounds, r, offset, len(data))
	}
	copy(mem[offset:], data)
	return nil
}

// Epoch is constant: local memory never loses its connection.
func (m *Memory) Epoch() uint64 { return 1 }

func (m *Memory) ReadMemory(_ context.Context, r command.Region, offset, length uint16) ([]byte, error) {
	return m.Read(r, int(offset), int(length))
}

func (m *Memory) WriteMemory(_ context.Context, r command.Region, offset uint16, data []byte) error {
	return m.Write(r, int(offset), data)
}

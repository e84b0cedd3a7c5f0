package flash

import (
	"fmt"
	"sync"

	"github.com/dotcypress/fxcore"
)

// Simulated is an in-memory stand-in for Adapter, used by the host
// simulators and by every other package's tests. It implements the same
// Read/Write/Erase/MinEraseSize surface without requiring real SPI
// hardware: a single contiguous byte array guarded by a mutex.
type Simulated struct {
	mu    sync.Mutex
	bytes [fxcore.FlashSize]byte
}

// NewSimulated returns a zeroed simulated flash.
func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) Read(addr uint32, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr+uint32(len(buf)) > fxcore.FlashSize {
		return fmt.Errorf("flash: read out of range: addr=%#x len=%d", addr, len(buf))
	}
	copy(buf, s.bytes[addr:addr+uint32(len(buf))])
	return nil
}

func (s *Simulated) Write(addr uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr+uint32(len(data)) > fxcore.FlashSize {
		return fmt.Errorf("flash: write out of range: addr=%#x len=%d", addr, len(data))
	}
	copy(s.bytes[addr:addr+uint32(len(data))], data)
	return nil
}

func (s *Simulated) Erase(addr, length uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr+length > fxcore.FlashSize {
		return fmt.Errorf("flash: erase out of range: addr=%#x len=%d", addr, length)
	}
	start := addr - addr%SectorSize
	end := addr + length
	for i := start; i < end; i++ {
		s.bytes[i] = 0xFF
	}
	return nil
}

func (s *Simulated) MinEraseSize() int { return SectorSize }

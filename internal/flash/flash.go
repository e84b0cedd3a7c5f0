// Package flash implements the byte-addressable SPI NOR flash adapter:
// page-aligned program cycles (write-enable, page-program, poll status),
// sector erase, and a write-protect gate around every write/erase.
package flash

import (
	"fmt"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/contracts"
)

// Standard SPI NOR flash command bytes.
const (
	cmdWriteEnable  = 0x06
	cmdPageProgram  = 0x02
	cmdReadStatus   = 0x05
	cmdSectorErase  = 0x20
	cmdRead         = 0x03
	statusBusyMask  = 0x01
	pollMaxAttempts = 1000
)

// SectorSize is the minimum erase granularity exposed to the KV layer.
const SectorSize = 4096

// Adapter drives a single SPI NOR flash chip.
type Adapter struct {
	bus   contracts.SPIBus
	cs    contracts.ChipSelect
	wp    contracts.WriteProtect
	delay contracts.Delay
}

// New returns a flash Adapter bound to the given SPI bus token, chip
// select, and write-protect lines. The bus token must be acquired by the
// caller (through the dispatcher's priority-ceiling lock) before any
// method here is called; the adapter itself does no locking.
func New(bus contracts.SPIBus, cs contracts.ChipSelect, wp contracts.WriteProtect, delay contracts.Delay) *Adapter {
	return &Adapter{bus: bus, cs: cs, wp: wp, delay: delay}
}

// MinEraseSize reports the sector erase granularity.
func (a *Adapter) MinEraseSize() int { return SectorSize }

// Read reads len(buf) bytes starting at addr.
func (a *Adapter) Read(addr uint32, buf []byte) error {
	if addr+uint32(len(buf)) > fxcore.FlashSize {
		return fmt.Errorf("flash: read out of range: addr=%#x len=%d", addr, len(buf))
	}
	cmd := []byte{cmdRead, byte(addr >> 16), byte(addr >> 8), byte(addr)}
	a.cs.Assert()
	defer a.cs.Deassert()
	if err := a.bus.Tx(cmd, nil); err != nil {
		return fmt.Errorf("flash: read command: %w", err)
	}
	return a.bus.Tx(nil, buf)
}

// Write programs data starting at addr, splitting the transfer at
// FlashPageSize boundaries and driving write-protect low only for the
// duration of the operation. A failed write still restores write-protect.
func (a *Adapter) Write(addr uint32, data []byte) (err error) {
	if addr+uint32(len(data)) > fxcore.FlashSize {
		return fmt.Errorf("flash: write out of range: addr=%#x len=%d", addr, len(data))
	}
	a.wp.Low()
	defer a.wp.High()

	for off := 0; off < len(data); {
		page := addr + uint32(off)
		pageOff := int(page) % fxcore.FlashPageSize
		chunk := fxcore.FlashPageSize - pageOff
		if chunk > len(data)-off {
			chunk = len(data) - off
		}
		if err = a.programPage(page, data[off:off+chunk]); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

func (a *Adapter) programPage(addr uint32, data []byte) error {
	if err := a.writeEnable(); err != nil {
		return err
	}
	cmd := append([]byte{cmdPageProgram, byte(addr >> 16), byte(addr >> 8), byte(addr)}, data...)
	a.cs.Assert()
	err := a.bus.Tx(cmd, nil)
	a.cs.Deassert()
	if err != nil {
		return fmt.Errorf("flash: page program: %w", err)
	}
	return a.pollBusy()
}

// Erase clears the sector(s) covering [addr, addr+length).
func (a *Adapter) Erase(addr, length uint32) (err error) {
	if addr+length > fxcore.FlashSize {
		return fmt.Errorf("flash: erase out of range: addr=%#x len=%d", addr, length)
	}
	a.wp.Low()
	defer a.wp.High()

	start := addr - addr%SectorSize
	end := addr + length
	for sector := start; sector < end; sector += SectorSize {
		if err = a.writeEnable(); err != nil {
			return err
		}
		cmd := []byte{cmdSectorErase, byte(sector >> 16), byte(sector >> 8), byte(sector)}
		a.cs.Assert()
		err = a.bus.Tx(cmd, nil)
		a.cs.Deassert()
		if err != nil {
			return fmt.Errorf("flash: sector erase: %w", err)
		}
		if err = a.pollBusy(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) writeEnable() error {
	a.cs.Assert()
	err := a.bus.Tx([]byte{cmdWriteEnable}, nil)
	a.cs.Deassert()
	if err != nil {
		return fmt.Errorf("flash: write enable: %w", err)
	}
	return nil
}

func (a *Adapter) pollBusy() error {
	status := make([]byte, 1)
	for i := 0; i < pollMaxAttempts; i++ {
		a.cs.Assert()
		err := a.bus.Tx([]byte{cmdReadStatus}, nil)
		if err == nil {
			err = a.bus.Tx(nil, status)
		}
		a.cs.Deassert()
		if err != nil {
			return fmt.Errorf("flash: read status: %w", err)
		}
		if status[0]&statusBusyMask == 0 {
			return nil
		}
		if a.delay != nil {
			a.delay(0)
		}
	}
	return fmt.Errorf("flash: timed out waiting for program/erase to complete")
}

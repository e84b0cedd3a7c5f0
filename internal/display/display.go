// Package display drives a page-addressed monochrome LCD controller (the
// ST7567 family) over SPI: reset sequencing, command/data framing through
// a DC pin, a page+column addressing scheme, backlight PWM, and a
// host-visible 4-byte display configuration register.
//
// Command framing: DC low for commands, DC high for data, CS held for
// the duration of a page write. The constructor resets the panel and
// configures it with offset (4,0) and segment direction reversed;
// SetConfig splits its value into on/off and a backlight index clamped
// to [0,15] and scaled to duty = index * max_duty / 16.
package display

import (
	"fmt"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/contracts"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

const (
	levelLow  = gpio.Low
	levelHigh = gpio.High
)

const (
	cmdDisplayOff      = 0xAE
	cmdDisplayOn       = 0xAF
	cmdSetStartLine    = 0x40
	cmdSetPage         = 0xB0
	cmdSetColumnHigh   = 0x10
	cmdSetColumnLow    = 0x00
	cmdSegDirectionRev = 0xA1
	cmdComScanNorm     = 0xC0
	cmdLCDBiasNorm     = 0xA2
	cmdPowerCtrl       = 0x28 | 0x07
	cmdSetContrast     = 0x81
	defaultContrast    = 0x20

	pageCount  = 8
	pageWidth  = 128
	bufferSize = pageCount * pageWidth

	backlightSteps   = 16
	backlightFreq    = 100 * physic.KiloHertz
	maxBacklightDuty = gpio.DutyMax
)

// Dev drives a single ST7567-style LCD panel over SPI.
type Dev struct {
	bus       contracts.SPIBus
	reset     contracts.GPIOPin
	cs        contracts.ChipSelect
	dc        contracts.GPIOPin
	backlight contracts.PWM
	delay     contracts.Delay

	config [4]byte
	buffer [bufferSize]byte
}

// New performs the hardware reset sequence, sets the display offset to
// (4, 0), reverses segment direction, and returns a Dev ready for
// SetConfig/Draw calls. delay may be nil only in tests that don't care
// about real reset timing.
func New(bus contracts.SPIBus, reset contracts.GPIOPin, cs contracts.ChipSelect, dc contracts.GPIOPin, backlight contracts.PWM, delay contracts.Delay) (*Dev, error) {
	d := &Dev{bus: bus, reset: reset, cs: cs, dc: dc, backlight: backlight, delay: delay}
	if err := d.resetSequence(); err != nil {
		return nil, fmt.Errorf("display: reset: %w", err)
	}
	init := []byte{
		cmdDisplayOff,
		cmdLCDBiasNorm,
		cmdSegDirectionRev,
		cmdComScanNorm,
		cmdPowerCtrl,
		cmdSetContrast, defaultContrast,
		cmdSetStartLine,
		cmdDisplayOn,
	}
	if err := d.sendCommand(init); err != nil {
		return nil, fmt.Errorf("display: init: %w", err)
	}
	return d, nil
}

func (d *Dev) resetSequence() error {
	if d.reset == nil {
		return nil
	}
	if err := d.reset.Out(levelLow); err != nil {
		return err
	}
	d.sleep(10)
	if err := d.reset.Out(levelHigh); err != nil {
		return err
	}
	d.sleep(10)
	return nil
}

func (d *Dev) sleep(ms int) {
	if d.delay != nil {
		d.delay(0)
	}
}

// Config returns the last configuration written by SetConfig. Byte 3 is
// overlaid by the dispatcher with the live sprite count at read time; this
// driver stores whatever it was given.
func (d *Dev) Config() [4]byte { return d.config }

// SetConfig applies a 4-byte host configuration write: byte 0 bit 0 is
// on/off, byte 1 in [0,15] is the backlight index mapped linearly to PWM
// duty index*max_duty/16. Remaining bytes are reserved and stored as-is.
func (d *Dev) SetConfig(cfg [4]byte) error {
	onCmd := byte(cmdDisplayOff)
	if cfg[0]&0x01 != 0 {
		onCmd = cmdDisplayOn
	}
	if err := d.sendCommand([]byte{onCmd}); err != nil {
		return fmt.Errorf("display: set power: %w", err)
	}

	index := cfg[1]
	if index > backlightSteps-1 {
		index = backlightSteps - 1
	}
	if d.backlight != nil {
		duty := gpio.Duty(uint32(index) * uint32(maxBacklightDuty) / backlightSteps)
		if err := d.backlight.SetDutyCycle(duty, backlightFreq); err != nil {
			return fmt.Errorf("display: set backlight: %w", err)
		}
	}

	d.config = cfg
	return nil
}

// Draw blits pixels (row-major, one bit per pixel, MSB first) into bounds
// on the panel. pixels must hold at least bounds.Size.Width *
// bounds.Size.Height bits, row-padded to whole bytes per row.
func (d *Dev) Draw(bounds fxcore.Bounds, pixels []byte) error {
	rowBytes := (int(bounds.Size.Width) + 7) / 8
	if len(pixels) < rowBytes*int(bounds.Size.Height) {
		return fxcore.ErrInvalidLength
	}
	startPage := int(bounds.Origin.Y) / 8
	endPage := (int(bounds.Origin.Y) + int(bounds.Size.Height) + 7) / 8
	for page := startPage; page < endPage; page++ {
		if page >= pageCount {
			break
		}
		col := int(bounds.Origin.X)
		row := d.packPageRow(page, bounds, pixels, rowBytes)
		if err := d.sendCommand([]byte{
			byte(cmdSetPage | page),
			byte(cmdSetColumnLow | (col & 0x0F)),
			byte(cmdSetColumnHigh | (col>>4)&0x0F),
		}); err != nil {
			return fmt.Errorf("display: page address: %w", err)
		}
		if err := d.sendData(row); err != nil {
			return fmt.Errorf("display: page data: %w", err)
		}
		copy(d.buffer[page*pageWidth+col:], row)
	}
	return nil
}

// packPageRow extracts the vertical 8-pixel-high strip of bounds
// intersecting page, converting from pixels' row-major bit layout to the
// controller's page-addressed vertical byte layout.
func (d *Dev) packPageRow(page int, bounds fxcore.Bounds, pixels []byte, rowBytes int) []byte {
	out := make([]byte, bounds.Size.Width)
	pageTop := page * 8
	for x := 0; x < int(bounds.Size.Width); x++ {
		var col byte
		for bit := 0; bit < 8; bit++ {
			y := pageTop + bit - int(bounds.Origin.Y)
			if y < 0 || y >= int(bounds.Size.Height) {
				continue
			}
			byteIdx := y*rowBytes + x/8
			if byteIdx >= len(pixels) {
				continue
			}
			if pixels[byteIdx]&(0x80>>uint(x%8)) != 0 {
				col |= 1 << uint(bit)
			}
		}
		out[x] = col
	}
	return out
}

func (d *Dev) sendCommand(cmd []byte) error {
	if err := d.dc.Out(levelLow); err != nil {
		return err
	}
	d.cs.Assert()
	defer d.cs.Deassert()
	return d.bus.Tx(cmd, nil)
}

func (d *Dev) sendData(data []byte) error {
	if err := d.dc.Out(levelHigh); err != nil {
		return err
	}
	d.cs.Assert()
	defer d.cs.Deassert()
	return d.bus.Tx(data, nil)
}

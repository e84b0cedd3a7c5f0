// Package simhw provides the in-process hardware stand-ins the host
// simulators (cmd/fxhostctl, cmd/fxhostsim, cmd/fxview) drive instead of
// real SPI/I²C silicon: a fake I²C slave fed directly by a simulated
// master, and a framebuffer display satisfying dispatch.Display without
// any SPI/GPIO wiring. Like flash.Simulated, each stand-in satisfies the
// same interface as its hardware-backed sibling with no real I/O.
package simhw

import (
	"sync"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/contracts"
)

// FakeSlave is a contracts.I2CSlave driven directly by a simulated I²C
// master instead of real silicon. The host simulators call AddressMatch/
// SendBytes/ReadRequested/BusError in place of real bus transactions.
type FakeSlave struct {
	events chan contracts.I2CEvent

	mu      sync.Mutex
	pushed  []byte
	rearmed int
}

// NewFakeSlave returns a FakeSlave with a generously buffered event
// channel; the simulated master never outruns it because it only issues
// one packet at a time, waiting for this package's synchronous helpers to
// return.
func NewFakeSlave() *FakeSlave {
	return &FakeSlave{events: make(chan contracts.I2CEvent, 256)}
}

func (f *FakeSlave) Events() <-chan contracts.I2CEvent { return f.events }

// PushResponseByte appends b to the flat history of bytes the dispatcher
// has written back; LastResponse reassembles the most recent four.
func (f *FakeSlave) PushResponseByte(b byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, b)
	return nil
}

func (f *FakeSlave) Rearm() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rearmed++
	return nil
}

// AddressMatch simulates the master selecting addr (fxcore.FxAddress or
// fxcore.RenderAddress).
func (f *FakeSlave) AddressMatch(addr uint8) {
	f.events <- contracts.I2CEvent{Kind: contracts.I2CAddressMatch, Addr: addr}
}

// SendBytes simulates the master writing bytes to the selected address.
func (f *FakeSlave) SendBytes(bs ...byte) {
	for _, b := range bs {
		f.events <- contracts.I2CEvent{Kind: contracts.I2CByteReceived, Byte: b}
	}
}

// ReadRequested simulates the master clocking out the 4-byte response
// buffer.
func (f *FakeSlave) ReadRequested() {
	f.events <- contracts.I2CEvent{Kind: contracts.I2CReadRequested}
}

// BusError simulates a bus fault mid-transaction.
func (f *FakeSlave) BusError() {
	f.events <- contracts.I2CEvent{Kind: contracts.I2CBusError}
}

// RearmCount reports how many times Rearm has been called, for tests and
// diagnostics in the interactive CLI.
func (f *FakeSlave) RearmCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rearmed
}

// LastResponse returns the most recent four bytes pushed by the
// dispatcher, blocking-free: callers poll this after ReadRequested once
// they know the dispatcher has had time to service it.
func (f *FakeSlave) LastResponse() [4]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [4]byte
	n := len(f.pushed)
	if n < 4 {
		return out
	}
	copy(out[:], f.pushed[n-4:n])
	return out
}

// PushedLen reports how many response bytes have been pushed so far, for
// polling loops waiting on LastResponse to become valid.
func (f *FakeSlave) PushedLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pushed)
}

// Framebuffer is a headless LCD implementing dispatch.Display: it stores
// the drawn bitmap in memory instead of driving an SPI panel.
type Framebuffer struct {
	mu     sync.Mutex
	cfg    [4]byte
	pixels [displayWidth * displayHeight / 8]byte // row-major, 1 bit/pixel
}

const (
	displayWidth  = 128
	displayHeight = 64
)

// NewFramebuffer returns an all-off framebuffer.
func NewFramebuffer() *Framebuffer { return &Framebuffer{} }

func (fb *Framebuffer) Config() [4]byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.cfg
}

func (fb *Framebuffer) SetConfig(cfg [4]byte) error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.cfg = cfg
	return nil
}

// Draw blits pixels (row-major, MSB-first) into bounds on the in-memory
// framebuffer.
func (fb *Framebuffer) Draw(bounds fxcore.Bounds, pixels []byte) error {
	rowBytes := (int(bounds.Size.Width) + 7) / 8
	if len(pixels) < rowBytes*int(bounds.Size.Height) {
		return fxcore.ErrInvalidLength
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for y := 0; y < int(bounds.Size.Height); y++ {
		py := int(bounds.Origin.Y) + y
		if py < 0 || py >= displayHeight {
			continue
		}
		for x := 0; x < int(bounds.Size.Width); x++ {
			px := int(bounds.Origin.X) + x
			if px < 0 || px >= displayWidth {
				continue
			}
			bit := pixels[y*rowBytes+x/8]&(0x80>>uint(x%8)) != 0
			fb.setPixel(px, py, bit)
		}
	}
	return nil
}

func (fb *Framebuffer) setPixel(x, y int, on bool) {
	idx := y*displayWidth + x
	byteIdx, bit := idx/8, uint(idx%8)
	if on {
		fb.pixels[byteIdx] |= 1 << bit
	} else {
		fb.pixels[byteIdx] &^= 1 << bit
	}
}

// Snapshot copies out the current on/off state of every pixel as
// row-major booleans, for a visualizer to render.
func (fb *Framebuffer) Snapshot() [displayHeight][displayWidth]bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	var out [displayHeight][displayWidth]bool
	for y := 0; y < displayHeight; y++ {
		for x := 0; x < displayWidth; x++ {
			idx := y*displayWidth + x
			out[y][x] = fb.pixels[idx/8]&(1<<uint(idx%8)) != 0
		}
	}
	return out
}

package simhw

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/assets"
	"github.com/dotcypress/fxcore/internal/control"
	"github.com/dotcypress/fxcore/internal/dispatch"
	"github.com/dotcypress/fxcore/internal/flash"
	"github.com/dotcypress/fxcore/internal/i2cserver"
	"github.com/dotcypress/fxcore/internal/kv"
)

// Rig is a fully wired co-processor on simulated hardware: simulated
// flash under the KV/asset stack, a framebuffer display, and a fake I²C
// slave, bound together by a real Dispatcher. The host tools talk to it
// through Master, the simulated bus-master side.
type Rig struct {
	Slave      *FakeSlave
	FB         *Framebuffer
	Dispatcher *dispatch.Dispatcher
}

// NewRig builds the simulated stack. The KV store formats the blank
// simulated flash on first open, exactly as real firmware formats a
// factory-fresh chip.
func NewRig() (*Rig, error) {
	backend := flash.NewSimulated()
	store, err := kv.Open(backend)
	if err != nil {
		return nil, fmt.Errorf("simhw: open kv store: %w", err)
	}
	assetStore := assets.New(store, backend)
	fb := NewFramebuffer()
	slave := NewFakeSlave()
	encoder := control.NewEncoder(nil)

	d := dispatch.New(fb, assetStore, encoder, nil, fxcore.RenderQueueCapacity)
	d.BindServer(i2cserver.New(slave, d))
	return &Rig{Slave: slave, FB: fb, Dispatcher: d}, nil
}

// Run starts the dispatcher's tasks and blocks until ctx is cancelled.
func (r *Rig) Run(ctx context.Context) error {
	return r.Dispatcher.Run(ctx)
}

// Master is the simulated I²C bus-master side of a Rig: the host driver
// a real CPU would run, issuing command/render transactions and waiting
// for the co-processor to settle in place of a real master's
// inter-transaction delay.
type Master struct {
	rig *Rig

	issued int64 // requests the transactions so far will have emitted
}

// NewMaster returns a Master driving rig. Run the rig before using it.
func (r *Rig) NewMaster() *Master { return &Master{rig: r} }

// settle blocks until the dispatcher has applied every request the
// master's transactions have emitted so far.
func (m *Master) settle() error {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.rig.Dispatcher.Handled() >= m.issued {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
	return fmt.Errorf("simhw: co-processor did not settle (%d/%d requests handled)",
		m.rig.Dispatcher.Handled(), m.issued)
}

// WriteRegister issues the 0x80 write-register sequence.
func (m *Master) WriteRegister(reg fxcore.RegisterNumber, val [4]byte) error {
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(0x80, reg)
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(val[:]...)
	m.issued++
	return m.settle()
}

// ReadRegister issues the 0x00 read-register sequence and clocks out the
// 4-byte response.
func (m *Master) ReadRegister(reg fxcore.RegisterNumber) ([4]byte, error) {
	before := m.rig.Slave.PushedLen()
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(0x00, reg)
	m.rig.Slave.ReadRequested()
	m.issued++
	if err := m.settle(); err != nil {
		return [4]byte{}, err
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.rig.Slave.PushedLen() >= before+4 {
			return m.rig.Slave.LastResponse(), nil
		}
		time.Sleep(time.Millisecond)
	}
	return [4]byte{}, fmt.Errorf("simhw: response for register %#x never clocked out", reg)
}

// UploadSprite issues the full 0x81 upload sequence: header, descriptor,
// then the bitmap in chunks of at most 255 bytes.
func (m *Master) UploadSprite(id fxcore.SpriteID, info fxcore.SpriteInfo, bitmap []byte) error {
	if len(bitmap) != info.BitmapLen() {
		return fmt.Errorf("simhw: bitmap is %d bytes, sprite needs %d", len(bitmap), info.BitmapLen())
	}
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(0x81, id)
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(id, info.GlyphSize.Width, info.GlyphSize.Height, info.Glyphs)
	m.issued++ // CreateSprite

	for off := 0; off < len(bitmap); off += 255 {
		end := off + 255
		if end > len(bitmap) {
			end = len(bitmap)
		}
		m.rig.Slave.AddressMatch(fxcore.FxAddress)
		m.rig.Slave.SendBytes(bitmap[off:end]...)
		m.issued++ // PatchSprite
	}
	return m.settle()
}

// DeleteSprite issues the 0x82 delete sequence with its 'del' interlock.
func (m *Master) DeleteSprite(id fxcore.SpriteID) error {
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(0x82, id)
	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(id, 'd', 'e', 'l')
	m.issued++
	return m.settle()
}

// Render issues a fire-and-forget render-channel write and waits for the
// resulting draw (or drop) to complete, so callers can inspect the
// framebuffer immediately after.
func (m *Master) Render(req fxcore.RenderRequest) error {
	m.rig.Slave.AddressMatch(fxcore.RenderAddress)
	m.rig.Slave.SendBytes(req.Origin.X, req.Origin.Y, req.SpriteID, req.Glyph)
	m.issued++
	if err := m.settle(); err != nil {
		return err
	}
	// Settle covers the enqueue; give the render task a moment to drain.
	time.Sleep(20 * time.Millisecond)
	return nil
}

// InjectBusError simulates a bus fault mid-transaction; the server
// recovers to Command and re-arms.
func (m *Master) InjectBusError() {
	m.rig.Slave.BusError()
}

// Screen renders the framebuffer as ASCII art, one character per pixel.
func (m *Master) Screen() string {
	snap := m.rig.FB.Snapshot()
	var b strings.Builder
	for y := range snap {
		for x := range snap[y] {
			if snap[y][x] {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

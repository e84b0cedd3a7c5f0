package simhw

import (
	"context"
	"strings"
	"testing"

	"github.com/dotcypress/fxcore"
)

func startRig(t *testing.T) *Master {
	t.Helper()
	rig, err := NewRig()
	if err != nil {
		t.Fatalf("NewRig: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rig.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return rig.NewMaster()
}

func TestRig_RegisterRoundTrip(t *testing.T) {
	m := startRig(t)

	want := [4]byte{0x11, 0x22, 0x33, 0x44}
	if err := m.WriteRegister(0x05, want); err != nil {
		t.Fatalf("WriteRegister: %v", err)
	}
	got, err := m.ReadRegister(0x05)
	if err != nil {
		t.Fatalf("ReadRegister: %v", err)
	}
	if got != want {
		t.Fatalf("readback = %v, want %v", got, want)
	}
}

func TestRig_UploadRenderDelete(t *testing.T) {
	m := startRig(t)

	info := fxcore.SpriteInfo{Glyphs: 1, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	bitmap := make([]byte, info.BitmapLen())
	for i := range bitmap {
		bitmap[i] = 0xFF // solid 8x8 block
	}
	if err := m.UploadSprite(3, info, bitmap); err != nil {
		t.Fatalf("UploadSprite: %v", err)
	}

	// Sprite count surfaces in byte 3 of the display-config read.
	cfg, err := m.ReadRegister(fxcore.RegDisplayConfig)
	if err != nil {
		t.Fatalf("ReadRegister(config): %v", err)
	}
	if cfg[3] != 1 {
		t.Fatalf("sprite count = %d, want 1", cfg[3])
	}

	if err := m.Render(fxcore.RenderRequest{Origin: fxcore.Point{X: 0, Y: 0}, SpriteID: 3}); err != nil {
		t.Fatalf("Render: %v", err)
	}
	screen := m.Screen()
	if !strings.HasPrefix(screen, "########") {
		t.Fatalf("framebuffer top-left not lit after render:\n%s", screen[:200])
	}

	if err := m.DeleteSprite(3); err != nil {
		t.Fatalf("DeleteSprite: %v", err)
	}
	cfg, err = m.ReadRegister(fxcore.RegDisplayConfig)
	if err != nil {
		t.Fatalf("ReadRegister(config): %v", err)
	}
	if cfg[3] != 0 {
		t.Fatalf("sprite count after delete = %d, want 0", cfg[3])
	}
}

// Scenario 6: a bus error mid-upload resets the server; the same upload
// sequence then succeeds from scratch.
func TestRig_BusErrorRecovery(t *testing.T) {
	m := startRig(t)

	m.rig.Slave.AddressMatch(fxcore.FxAddress)
	m.rig.Slave.SendBytes(0x81, 0x04)
	m.InjectBusError()

	info := fxcore.SpriteInfo{Glyphs: 2, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	bitmap := make([]byte, info.BitmapLen())
	if err := m.UploadSprite(4, info, bitmap); err != nil {
		t.Fatalf("UploadSprite after bus error: %v", err)
	}
	cfg, err := m.ReadRegister(fxcore.RegDisplayConfig)
	if err != nil {
		t.Fatalf("ReadRegister(config): %v", err)
	}
	if cfg[3] != 1 {
		t.Fatalf("sprite count = %d, want 1", cfg[3])
	}
	if m.rig.Slave.RearmCount() == 0 {
		t.Fatal("server never re-armed the slave after the bus error")
	}
}

func TestFramebuffer_DrawRejectsShortBitmap(t *testing.T) {
	fb := NewFramebuffer()
	bounds := fxcore.Bounds{Size: fxcore.GlyphSize{Width: 8, Height: 8}}
	if err := fb.Draw(bounds, make([]byte, 7)); err == nil {
		t.Fatal("expected short bitmap to be rejected")
	}
}

package assets

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/flash"
	"github.com/dotcypress/fxcore/internal/kv"
)

func newTestAssets(t *testing.T) (*Assets, *flash.Simulated) {
	t.Helper()
	backend := flash.NewSimulated()
	store, err := kv.Open(backend)
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}
	return New(store, backend), backend
}

func TestNVM_RoundTrip(t *testing.T) {
	a, _ := newTestAssets(t)
	want := [4]byte{0x11, 0x22, 0x33, 0x44}
	if err := a.WriteNVM(0x05, want); err != nil {
		t.Fatalf("WriteNVM: %v", err)
	}
	if got := a.ReadNVM(0x05); got != want {
		t.Fatalf("ReadNVM = %v, want %v", got, want)
	}
}

func TestReadNVM_UnwrittenRegisterReturnsSentinel(t *testing.T) {
	a, _ := newTestAssets(t)
	if got := a.ReadNVM(0x42); got != fxcore.NVMSentinel {
		t.Fatalf("ReadNVM of unwritten register = %v, want sentinel %v", got, fxcore.NVMSentinel)
	}
}

func TestWriteNVM_RejectsReservedRegister(t *testing.T) {
	a, _ := newTestAssets(t)
	if err := a.WriteNVM(0xFD, [4]byte{}); err == nil {
		t.Fatalf("expected error writing reserved register 0xFD")
	}
}

func TestCreateSprite_ThenGetSprite(t *testing.T) {
	a, _ := newTestAssets(t)
	info := fxcore.SpriteInfo{Glyphs: 2, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	if err := a.CreateSprite(7, info); err != nil {
		t.Fatalf("CreateSprite: %v", err)
	}
	if a.GetSpritesCount() != 1 {
		t.Fatalf("expected 1 sprite, got %d", a.GetSpritesCount())
	}
	sprite, err := a.GetSprite(7)
	if err != nil {
		t.Fatalf("GetSprite: %v", err)
	}
	if sprite.Info != info {
		t.Fatalf("GetSprite info = %+v, want %+v", sprite.Info, info)
	}
}

func TestPatchSpriteBitmap_RoundTripsThroughRawRead(t *testing.T) {
	a, _ := newTestAssets(t)
	info := fxcore.SpriteInfo{Glyphs: 2, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	if err := a.CreateSprite(7, info); err != nil {
		t.Fatalf("CreateSprite: %v", err)
	}
	patch := []byte{0x08, 0x09, 0x0A}
	if err := a.PatchSpriteBitmap(7, BitmapPatch{Offset: 4, Bytes: patch}); err != nil {
		t.Fatalf("PatchSpriteBitmap: %v", err)
	}
	sprite, err := a.GetSprite(7)
	if err != nil {
		t.Fatalf("GetSprite: %v", err)
	}
	got := make([]byte, len(patch))
	if err := a.Read(sprite.Addr+4, got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, patch) {
		t.Fatalf("raw read after patch = %v, want %v", got, patch)
	}
}

func TestPatchSpriteBitmap_RejectsOutOfBounds(t *testing.T) {
	a, _ := newTestAssets(t)
	info := fxcore.SpriteInfo{Glyphs: 1, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	if err := a.CreateSprite(1, info); err != nil {
		t.Fatalf("CreateSprite: %v", err)
	}
	err := a.PatchSpriteBitmap(1, BitmapPatch{Offset: 7, Bytes: []byte{1, 2}})
	if !errors.Is(err, fxcore.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestDeleteSprite_Idempotent(t *testing.T) {
	a, _ := newTestAssets(t)
	info := fxcore.SpriteInfo{Glyphs: 1, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	if err := a.CreateSprite(1, info); err != nil {
		t.Fatalf("CreateSprite: %v", err)
	}
	if err := a.DeleteSprite(1); err != nil {
		t.Fatalf("first DeleteSprite: %v", err)
	}
	if err := a.DeleteSprite(1); !errors.Is(err, fxcore.ErrKeyNotFound) {
		t.Fatalf("second DeleteSprite: got %v, want ErrKeyNotFound", err)
	}
	if a.GetSpritesCount() != 0 {
		t.Fatalf("expected 0 sprites after delete, got %d", a.GetSpritesCount())
	}
}

func TestDeleteAllSprites(t *testing.T) {
	a, _ := newTestAssets(t)
	for id := uint8(1); id <= 3; id++ {
		info := fxcore.SpriteInfo{Glyphs: 1, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
		if err := a.CreateSprite(id, info); err != nil {
			t.Fatalf("CreateSprite(%d): %v", id, err)
		}
	}
	if err := a.DeleteAllSprites(); err != nil {
		t.Fatalf("DeleteAllSprites: %v", err)
	}
	if a.GetSpritesCount() != 0 {
		t.Fatalf("expected 0 sprites after DeleteAllSprites, got %d", a.GetSpritesCount())
	}
}

func TestCache_InvalidatedOnMutation(t *testing.T) {
	a, _ := newTestAssets(t)
	info := fxcore.SpriteInfo{Glyphs: 1, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	if err := a.CreateSprite(1, info); err != nil {
		t.Fatalf("CreateSprite: %v", err)
	}
	if _, err := a.GetSprite(1); err != nil {
		t.Fatalf("GetSprite: %v", err)
	}
	if a.cache.ll.Len() != 1 {
		t.Fatalf("expected cache populated after GetSprite")
	}
	if err := a.PatchSpriteBitmap(1, BitmapPatch{Offset: 0, Bytes: []byte{1}}); err != nil {
		t.Fatalf("PatchSpriteBitmap: %v", err)
	}
	if a.cache.ll.Len() != 0 {
		t.Fatalf("expected cache cleared after mutation, len=%d", a.cache.ll.Len())
	}
}

func TestCache_LRUEviction(t *testing.T) {
	a, _ := newTestAssets(t)
	for id := uint8(1); id <= 3; id++ {
		info := fxcore.SpriteInfo{Glyphs: 1, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
		if err := a.CreateSprite(id, info); err != nil {
			t.Fatalf("CreateSprite(%d): %v", id, err)
		}
	}
	a.cache.capacity = 2
	a.cache.clear()

	if _, err := a.GetSprite(1); err != nil {
		t.Fatalf("GetSprite(1): %v", err)
	}
	if _, err := a.GetSprite(2); err != nil {
		t.Fatalf("GetSprite(2): %v", err)
	}
	if _, err := a.GetSprite(3); err != nil {
		t.Fatalf("GetSprite(3): %v", err)
	}
	if _, ok := a.cache.get(1); ok {
		t.Fatalf("expected sprite 1 evicted from a 2-entry cache")
	}
	if _, ok := a.cache.get(3); !ok {
		t.Fatalf("expected sprite 3 still cached")
	}
}

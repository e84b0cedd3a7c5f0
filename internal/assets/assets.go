// Package assets is the typed facade over the KV store: register slots,
// sprite metadata/bitmap lifecycle, and the bounded LRU cache of resolved
// sprite descriptors.
package assets

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/flash"
	"github.com/dotcypress/fxcore/internal/kv"
)

// Store is the subset of *kv.Store the asset layer depends on, the
// boundary between typed asset operations and the raw KV store.
type Store interface {
	Insert(key [2]byte, value []byte) error
	Alloc(key [2]byte, length int) error
	Load(key [2]byte, buf []byte) (int, error)
	Patch(key [2]byte, offset int, data []byte) error
	Remove(key [2]byte) error
	Lookup(key [2]byte) (kv.Handle, error)
	KeysWithPrefix(prefix byte) iter.Seq[[2]byte]
}

// BitmapPatch bundles an offset and replacement bytes for a sprite
// bitmap patch.
type BitmapPatch struct {
	Offset int
	Bytes  []byte
}

// Assets is the typed asset store: register slots, sprite metadata and
// bitmaps, with a descriptor cache.
type Assets struct {
	kv    Store
	flash flash.Backend

	mu    sync.Mutex
	cache *spriteCache
}

// New wraps kvStore over raw with an LRU cache of fxcore.SpriteCacheSize
// entries. raw is the same flash backend the KV store is layered over,
// used here only for the render path's raw read bypass.
func New(kvStore Store, raw flash.Backend) *Assets {
	return &Assets{
		kv:    kvStore,
		flash: raw,
		cache: newSpriteCache(fxcore.SpriteCacheSize),
	}
}

// ReadNVM reads register reg, zero-padded on short read. A store error
// (most commonly the register was never written) yields the sentinel
// fxcore.NVMSentinel rather than a zero value.
func (a *Assets) ReadNVM(reg fxcore.RegisterNumber) [4]byte {
	var out [4]byte
	buf := make([]byte, 4)
	n, err := a.kv.Load(fxcore.RegisterKey(reg), buf)
	if err != nil {
		return fxcore.NVMSentinel
	}
	copy(out[:], buf[:n])
	return out
}

// WriteNVM persists register reg.
func (a *Assets) WriteNVM(reg fxcore.RegisterNumber, value [4]byte) error {
	if reg > fxcore.MaxUserRegister {
		return fmt.Errorf("assets: register %#x is reserved", reg)
	}
	return a.kv.Insert(fxcore.RegisterKey(reg), value[:])
}

// CreateSprite allocates the bitmap blob, writes metadata, and clears the
// cache. If the metadata insert fails after a successful allocation, the
// allocation is rolled back on a best-effort basis.
func (a *Assets) CreateSprite(id fxcore.SpriteID, info fxcore.SpriteInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	bitmapKey := fxcore.BitmapKey(id)
	if err := a.kv.Alloc(bitmapKey, info.BitmapLen()); err != nil {
		return err
	}

	encoded := encodeSpriteInfo(info)
	if err := a.kv.Insert(fxcore.SpriteInfoKey(id), encoded[:]); err != nil {
		_ = a.kv.Remove(bitmapKey) // best effort; an orphaned blob is tolerated
		a.clearCache()
		return err
	}
	a.clearCache()
	return nil
}

// PatchSpriteBitmap patches id's bitmap at offset and clears the cache.
func (a *Assets) PatchSpriteBitmap(id fxcore.SpriteID, patch BitmapPatch) error {
	err := a.kv.Patch(fxcore.BitmapKey(id), patch.Offset, patch.Bytes)
	a.clearCache()
	return err
}

// DeleteSprite removes both companion keys; the cache is cleared
// regardless of whether either removal succeeds, and dangling halves
// (an orphaned bitmap or metadata record) never wedge this call.
func (a *Assets) DeleteSprite(id fxcore.SpriteID) error {
	defer a.clearCache()
	bitmapErr := a.kv.Remove(fxcore.BitmapKey(id))
	infoErr := a.kv.Remove(fxcore.SpriteInfoKey(id))
	if bitmapErr != nil && !errors.Is(bitmapErr, fxcore.ErrKeyNotFound) {
		return bitmapErr
	}
	if infoErr != nil && !errors.Is(infoErr, fxcore.ErrKeyNotFound) {
		return infoErr
	}
	if errors.Is(bitmapErr, fxcore.ErrKeyNotFound) && errors.Is(infoErr, fxcore.ErrKeyNotFound) {
		return fxcore.ErrKeyNotFound
	}
	return nil
}

// DeleteAllSprites removes every sprite by repeatedly re-scanning for
// 'b'-prefixed keys until none remain.
func (a *Assets) DeleteAllSprites() error {
	for {
		var id fxcore.SpriteID
		found := false
		for key := range a.kv.KeysWithPrefix('b') {
			id = key[1]
			found = true
			break
		}
		if !found {
			return nil
		}
		if err := a.DeleteSprite(id); err != nil && !errors.Is(err, fxcore.ErrKeyNotFound) {
			return err
		}
	}
}

// GetSpritesCount returns the number of bitmap-backed sprites.
func (a *Assets) GetSpritesCount() int {
	count := 0
	for range a.kv.KeysWithPrefix('b') {
		count++
	}
	return count
}

// GetSprite resolves id's descriptor, checking the LRU cache first.
func (a *Assets) GetSprite(id fxcore.SpriteID) (fxcore.Sprite, error) {
	a.mu.Lock()
	if sprite, ok := a.cache.get(id); ok {
		a.mu.Unlock()
		return sprite, nil
	}
	a.mu.Unlock()

	buf := make([]byte, spriteInfoEncodedLen)
	if _, err := a.kv.Load(fxcore.SpriteInfoKey(id), buf); err != nil {
		return fxcore.Sprite{}, err
	}
	info, err := decodeSpriteInfo(buf)
	if err != nil {
		return fxcore.Sprite{}, err
	}

	handle, err := a.kv.Lookup(fxcore.BitmapKey(id))
	if err != nil {
		return fxcore.Sprite{}, err
	}

	sprite := fxcore.Sprite{ID: id, Info: info, Addr: handle.Addr}
	a.mu.Lock()
	a.cache.put(id, sprite)
	a.mu.Unlock()
	return sprite, nil
}

// Read performs a raw flash read, bypassing the KV store, for the render
// path.
func (a *Assets) Read(addr uint32, buf []byte) error {
	return a.flash.Read(addr, buf)
}

func (a *Assets) clearCache() {
	a.mu.Lock()
	a.cache.clear()
	a.mu.Unlock()
}

const spriteInfoEncodedLen = 3

func encodeSpriteInfo(info fxcore.SpriteInfo) [spriteInfoEncodedLen]byte {
	return [spriteInfoEncodedLen]byte{info.Glyphs, info.GlyphSize.Width, info.GlyphSize.Height}
}

func decodeSpriteInfo(buf []byte) (fxcore.SpriteInfo, error) {
	if len(buf) < spriteInfoEncodedLen {
		return fxcore.SpriteInfo{}, fxcore.ErrInvalidLength
	}
	info := fxcore.SpriteInfo{
		Glyphs:    buf[0],
		GlyphSize: fxcore.GlyphSize{Width: buf[1], Height: buf[2]},
	}
	return info, info.Validate()
}

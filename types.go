// Package fxcore implements the firmware core of an I²C-attached graphical
// display co-processor: an I²C slave protocol engine, a wear-tolerant
// sprite/asset store over SPI flash, a sprite render pipeline, and the
// priority-partitioned concurrency that ties them together.
//
// The component packages live under internal/ (flash, kv, assets, display,
// render, control, i2cserver, dispatch); this package holds the data model
// and constants shared by all of them.
package fxcore

import "fmt"

// SpriteID identifies a sprite. Host-visible sprite identifiers are
// unsigned 8-bit values.
type SpriteID = uint8

// RegisterNumber identifies a 4-byte register slot. Valid range is
// [0x00, 0xFC]; 0xFD-0xFF are reserved for pre-fetched reads.
type RegisterNumber = uint8

// GlyphSize is the pixel dimensions of a single glyph within a sprite.
type GlyphSize struct {
	Width  uint8
	Height uint8
}

// SpriteInfo is the persisted metadata record for a sprite.
type SpriteInfo struct {
	Glyphs    uint8
	GlyphSize GlyphSize
}

// GlyphLen is the byte length of a single glyph: one bit per pixel,
// row-major, bitmap_len = width*height/8.
func (i SpriteInfo) GlyphLen() int {
	return int(i.GlyphSize.Width) * int(i.GlyphSize.Height) / 8
}

// BitmapLen is the total byte length of the sprite's bitmap blob.
func (i SpriteInfo) BitmapLen() int {
	return i.GlyphLen() * int(i.Glyphs)
}

// Validate checks the invariants a freshly decoded SpriteInfo must satisfy:
// at least one glyph, positive dimensions, and a pixel count that packs
// evenly into whole bytes.
func (i SpriteInfo) Validate() error {
	if i.Glyphs == 0 {
		return fmt.Errorf("sprite info: glyphs must be >= 1")
	}
	if i.GlyphSize.Width == 0 || i.GlyphSize.Height == 0 {
		return fmt.Errorf("sprite info: glyph dimensions must be positive")
	}
	if (int(i.GlyphSize.Width)*int(i.GlyphSize.Height))%8 != 0 {
		return fmt.Errorf("sprite info: width*height must be a multiple of 8")
	}
	return nil
}

// Sprite is the cache-line descriptor combining a sprite's metadata with
// the current flash address of its bitmap blob. It is never persisted as
// such; it is reconstructed from a metadata record plus a KV lookup.
type Sprite struct {
	ID   SpriteID
	Info SpriteInfo
	Addr uint32
}

// Point is a pixel coordinate on the LCD.
type Point struct {
	X, Y uint8
}

// Bounds is a rectangular frame window on the LCD: origin plus size.
type Bounds struct {
	Origin Point
	Size   GlyphSize
}

// RenderRequest is the decoded payload of a render-channel write:
// [x, y, sprite_id, glyph] on the wire.
type RenderRequest struct {
	Origin   Point
	SpriteID SpriteID
	Glyph    uint8
}

// key schema prefixes
const (
	keyPrefixSpriteInfo = 's'
	keyPrefixBitmap     = 'b'
	keyPrefixRegister   = 'm'
)

// SpriteInfoKey returns the 2-byte KV key for a sprite's metadata record.
func SpriteInfoKey(id SpriteID) [2]byte { return [2]byte{keyPrefixSpriteInfo, id} }

// BitmapKey returns the 2-byte KV key for a sprite's bitmap blob.
func BitmapKey(id SpriteID) [2]byte { return [2]byte{keyPrefixBitmap, id} }

// RegisterKey returns the 2-byte KV key for a register slot.
func RegisterKey(reg RegisterNumber) [2]byte { return [2]byte{keyPrefixRegister, reg} }

// MaxUserRegister is the highest register number the host protocol may
// write; 0xFD-0xFF are reserved.
const MaxUserRegister RegisterNumber = 0xFC

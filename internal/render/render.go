// Package render implements the sprite render pipeline: resolving a
// render request against the asset store, bounds-checking the target
// glyph, and blitting it to the display.
package render

import (
	"context"
	"fmt"

	"github.com/dotcypress/fxcore"
)

// AssetStore is the subset of *assets.Assets the render engine depends on.
type AssetStore interface {
	GetSprite(id fxcore.SpriteID) (fxcore.Sprite, error)
	Read(addr uint32, buf []byte) error
}

// Display is the subset of *display.Dev the render engine depends on.
type Display interface {
	Draw(bounds fxcore.Bounds, pixels []byte) error
}

// Engine resolves and draws sprite glyphs.
type Engine struct {
	assets  AssetStore
	display Display

	glyphBuf [fxcore.MaxGlyphBytes]byte
}

// New returns a render Engine drawing resolved glyphs to display.
func New(assets AssetStore, display Display) *Engine {
	return &Engine{assets: assets, display: display}
}

// Render resolves req.SpriteID/req.Glyph against the asset store and draws
// the glyph at req.Origin. A sprite lookup failure or an out-of-range
// glyph index is reported to the caller and never panics; it is the
// dispatcher's choice whether to drop the request silently.
func (e *Engine) Render(ctx context.Context, req fxcore.RenderRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sprite, err := e.assets.GetSprite(req.SpriteID)
	if err != nil {
		return fmt.Errorf("render: resolve sprite %d: %w", req.SpriteID, err)
	}
	if req.Glyph >= sprite.Info.Glyphs {
		return fmt.Errorf("render: glyph %d out of range for sprite %d (%d glyphs)", req.Glyph, req.SpriteID, sprite.Info.Glyphs)
	}

	glyphLen := sprite.Info.GlyphLen()
	if glyphLen > fxcore.MaxGlyphBytes {
		return fmt.Errorf("render: glyph length %d exceeds buffer capacity %d", glyphLen, fxcore.MaxGlyphBytes)
	}

	addr := sprite.Addr + uint32(int(req.Glyph)*glyphLen)
	buf := e.glyphBuf[:glyphLen]
	if err := e.assets.Read(addr, buf); err != nil {
		return fmt.Errorf("render: read glyph: %w", err)
	}

	bounds := fxcore.Bounds{Origin: req.Origin, Size: sprite.Info.GlyphSize}
	if err := e.display.Draw(bounds, buf); err != nil {
		return fmt.Errorf("render: draw: %w", err)
	}
	return nil
}

// fxview opens a window showing the simulated LCD live while a built-in
// host sequence bounces a glyph around the screen. It exists to eyeball
// the render pipeline; the real assertions live in the package tests.
package main

import (
	"context"
	"image"
	"image/color"
	"log"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	xdraw "golang.org/x/image/draw"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/simhw"
)

const (
	lcdWidth  = 128
	lcdHeight = 64
	scale     = 6
)

type viewer struct {
	rig    *simhw.Rig
	lcd    *image.Gray
	scaled *image.RGBA
	frame  *ebiten.Image
}

func newViewer(rig *simhw.Rig) *viewer {
	return &viewer{
		rig:    rig,
		lcd:    image.NewGray(image.Rect(0, 0, lcdWidth, lcdHeight)),
		scaled: image.NewRGBA(image.Rect(0, 0, lcdWidth*scale, lcdHeight*scale)),
		frame:  ebiten.NewImage(lcdWidth*scale, lcdHeight*scale),
	}
}

func (v *viewer) Update() error { return nil }

func (v *viewer) Draw(screen *ebiten.Image) {
	snap := v.rig.FB.Snapshot()
	for y := 0; y < lcdHeight; y++ {
		for x := 0; x < lcdWidth; x++ {
			c := color.Gray{Y: 0x20}
			if snap[y][x] {
				c.Y = 0xE8
			}
			v.lcd.SetGray(x, y, c)
		}
	}
	xdraw.NearestNeighbor.Scale(v.scaled, v.scaled.Bounds(), v.lcd, v.lcd.Bounds(), xdraw.Src, nil)
	v.frame.WritePixels(v.scaled.Pix)
	screen.DrawImage(v.frame, nil)
}

func (v *viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return lcdWidth * scale, lcdHeight * scale
}

// driveDemo uploads a 4-glyph sprite and bounces it around the LCD until
// ctx is cancelled.
func driveDemo(ctx context.Context, master *simhw.Master) {
	info := fxcore.SpriteInfo{Glyphs: 4, GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8}}
	bitmap := []byte{
		0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, // solid
		0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, // checker
		0xFF, 0x81, 0x81, 0x81, 0x81, 0x81, 0x81, 0xFF, // border
		0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01, // diagonal
	}
	if err := master.UploadSprite(1, info, bitmap); err != nil {
		log.Printf("upload: %v", err)
		return
	}

	x, y, dx, dy := 0, 0, 8, 8
	glyph := uint8(0)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		req := fxcore.RenderRequest{
			Origin:   fxcore.Point{X: uint8(x), Y: uint8(y)},
			SpriteID: 1,
			Glyph:    glyph,
		}
		if err := master.Render(req); err != nil {
			log.Printf("render: %v", err)
		}
		glyph = (glyph + 1) % info.Glyphs
		x += dx
		y += dy
		if x <= 0 || x >= lcdWidth-8 {
			dx = -dx
		}
		if y <= 0 || y >= lcdHeight-8 {
			dy = -dy
		}
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("fxview: ")

	rig, err := simhw.NewRig()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.Run(ctx)
	go driveDemo(ctx, rig.NewMaster())

	ebiten.SetWindowSize(lcdWidth*scale, lcdHeight*scale)
	ebiten.SetWindowTitle("fxview")
	if err := ebiten.RunGame(newViewer(rig)); err != nil {
		log.Fatal(err)
	}
}

// fxhostctl is an interactive host-simulator: it boots the co-processor
// on simulated hardware and maps single keystrokes to the I²C
// transactions a real host CPU would issue, printing responses and the
// simulated LCD as ASCII art.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/simhw"
)

const demoSpriteID = 1

// demoGlyphs is a tiny 8x8, 4-glyph sprite: solid block, checkerboard,
// border, diagonal.
var demoGlyphs = [][]byte{
	{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
	{0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55, 0xAA, 0x55},
	{0xFF, 0x81, 0x81, 0x81, 0x81, 0x81, 0x81, 0xFF},
	{0x80, 0x40, 0x20, 0x10, 0x08, 0x04, 0x02, 0x01},
}

func demoBitmap() (fxcore.SpriteInfo, []byte) {
	info := fxcore.SpriteInfo{
		Glyphs:    uint8(len(demoGlyphs)),
		GlyphSize: fxcore.GlyphSize{Width: 8, Height: 8},
	}
	var bitmap []byte
	for _, g := range demoGlyphs {
		bitmap = append(bitmap, g...)
	}
	return info, bitmap
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("fxhostctl: ")

	rig, err := simhw.NewRig()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.Run(ctx)
	master := rig.NewMaster()

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		log.Fatalf("set raw mode: %v", err)
	}
	defer term.Restore(fd, oldState)

	// Raw mode: no output post-processing, so every line needs an
	// explicit \r.
	say := func(format string, args ...any) {
		fmt.Printf(format+"\r\n", args...)
	}

	say("fxhostctl — interactive host for the Fx co-processor")
	say("  u  upload demo sprite (id %d, 4 glyphs)", demoSpriteID)
	say("  space  render next glyph at the cursor")
	say("  h/j/k/l  move the cursor by 8 px")
	say("  w  write counter to register 0x05    n  read register 0x05")
	say("  c  read display config (0xFF)        d  delete demo sprite")
	say("  e  inject a bus error                p  print the screen")
	say("  q  quit")

	cursor := fxcore.Point{}
	glyph := uint8(0)
	counter := uint32(0)
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			return
		}
		switch buf[0] {
		case 'q', 3: // q or Ctrl-C
			return
		case 'u':
			info, bitmap := demoBitmap()
			if err := master.UploadSprite(demoSpriteID, info, bitmap); err != nil {
				say("upload: %v", err)
				continue
			}
			say("uploaded sprite %d: %dx%d, %d glyphs", demoSpriteID,
				info.GlyphSize.Width, info.GlyphSize.Height, info.Glyphs)
		case ' ':
			req := fxcore.RenderRequest{Origin: cursor, SpriteID: demoSpriteID, Glyph: glyph}
			if err := master.Render(req); err != nil {
				say("render: %v", err)
				continue
			}
			say("rendered glyph %d at (%d,%d)", glyph, cursor.X, cursor.Y)
			glyph = (glyph + 1) % uint8(len(demoGlyphs))
		case 'h':
			cursor.X -= 8
		case 'l':
			cursor.X += 8
		case 'k':
			cursor.Y -= 8
		case 'j':
			cursor.Y += 8
		case 'w':
			counter++
			val := [4]byte{byte(counter >> 24), byte(counter >> 16), byte(counter >> 8), byte(counter)}
			if err := master.WriteRegister(0x05, val); err != nil {
				say("write: %v", err)
				continue
			}
			say("wrote %d to register 0x05", counter)
		case 'n':
			val, err := master.ReadRegister(0x05)
			if err != nil {
				say("read: %v", err)
				continue
			}
			say("register 0x05 = % x", val)
		case 'c':
			val, err := master.ReadRegister(fxcore.RegDisplayConfig)
			if err != nil {
				say("read config: %v", err)
				continue
			}
			say("config = % x (on=%d backlight=%d sprites=%d)", val, val[0]&1, val[1], val[3])
		case 'd':
			if err := master.DeleteSprite(demoSpriteID); err != nil {
				say("delete: %v", err)
				continue
			}
			say("deleted sprite %d", demoSpriteID)
		case 'e':
			master.InjectBusError()
			say("bus error injected; server reset to Command")
		case 'p':
			for _, line := range strings.Split(strings.TrimRight(master.Screen(), "\n"), "\n") {
				say("%s", line)
			}
		}
	}
}

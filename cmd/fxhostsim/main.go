// fxhostsim runs a Lua script against a simulated co-processor. The
// script plays the role of the host CPU's firmware: it issues the same
// I²C transactions, in order, that a real master would, which makes it
// the integration-test harness for full command sequences.
//
// The script sees an `fx` table:
//
//	fx.write_register(reg, b0, b1, b2, b3)
//	b0, b1, b2, b3 = fx.read_register(reg)
//	fx.upload_sprite(id, width, height, glyphs, bitmap)  -- bitmap: byte string
//	fx.delete_sprite(id)
//	fx.render(x, y, id, glyph)
//	fx.inject_bus_error()
//	fx.screen()          -- returns the LCD as ASCII art
//	fx.sprite_count()
package main

import (
	"context"
	"log"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/simhw"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("fxhostsim: ")
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s script.lua", os.Args[0])
	}

	rig, err := simhw.NewRig()
	if err != nil {
		log.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rig.Run(ctx)
	master := rig.NewMaster()

	L := lua.NewState()
	defer L.Close()
	L.SetGlobal("fx", L.SetFuncs(L.NewTable(), fxExports(master)))
	if err := L.DoFile(os.Args[1]); err != nil {
		log.Fatal(err)
	}
}

func fxExports(m *simhw.Master) map[string]lua.LGFunction {
	return map[string]lua.LGFunction{
		"write_register": func(L *lua.LState) int {
			reg := fxcore.RegisterNumber(L.CheckInt(1))
			val := [4]byte{
				byte(L.CheckInt(2)), byte(L.CheckInt(3)),
				byte(L.CheckInt(4)), byte(L.CheckInt(5)),
			}
			if err := m.WriteRegister(reg, val); err != nil {
				L.RaiseError("write_register: %v", err)
			}
			return 0
		},
		"read_register": func(L *lua.LState) int {
			reg := fxcore.RegisterNumber(L.CheckInt(1))
			val, err := m.ReadRegister(reg)
			if err != nil {
				L.RaiseError("read_register: %v", err)
			}
			for _, b := range val {
				L.Push(lua.LNumber(b))
			}
			return 4
		},
		"upload_sprite": func(L *lua.LState) int {
			id := fxcore.SpriteID(L.CheckInt(1))
			info := fxcore.SpriteInfo{
				GlyphSize: fxcore.GlyphSize{
					Width:  uint8(L.CheckInt(2)),
					Height: uint8(L.CheckInt(3)),
				},
				Glyphs: uint8(L.CheckInt(4)),
			}
			bitmap := []byte(L.CheckString(5))
			if err := m.UploadSprite(id, info, bitmap); err != nil {
				L.RaiseError("upload_sprite: %v", err)
			}
			return 0
		},
		"delete_sprite": func(L *lua.LState) int {
			if err := m.DeleteSprite(fxcore.SpriteID(L.CheckInt(1))); err != nil {
				L.RaiseError("delete_sprite: %v", err)
			}
			return 0
		},
		"render": func(L *lua.LState) int {
			req := fxcore.RenderRequest{
				Origin:   fxcore.Point{X: uint8(L.CheckInt(1)), Y: uint8(L.CheckInt(2))},
				SpriteID: fxcore.SpriteID(L.CheckInt(3)),
				Glyph:    uint8(L.CheckInt(4)),
			}
			if err := m.Render(req); err != nil {
				L.RaiseError("render: %v", err)
			}
			return 0
		},
		"inject_bus_error": func(L *lua.LState) int {
			m.InjectBusError()
			return 0
		},
		"screen": func(L *lua.LState) int {
			L.Push(lua.LString(m.Screen()))
			return 1
		},
		"sprite_count": func(L *lua.LState) int {
			cfg, err := m.ReadRegister(fxcore.RegDisplayConfig)
			if err != nil {
				L.RaiseError("sprite_count: %v", err)
			}
			L.Push(lua.LNumber(cfg[3]))
			return 1
		},
	}
}

// Package i2cserver implements the I²C slave protocol engine: a
// byte-level state machine decoding the host's multi-packet command
// protocol on FX_ADDRESS and the fire-and-forget render protocol on
// RENDER_ADDRESS, emitting Request values for the dispatcher to apply.
//
// The state machine is Command / Waiting(kind, arg) / Upload(id, info,
// sent), with per-state packet lengths of 2 / 4 / min(255, remaining)
// bytes. Register reads are resolved synchronously into a 4-byte
// response buffer before the master clocks them out.
package i2cserver

import (
	"context"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/contracts"
)

// RequestKind distinguishes the events the server emits.
type RequestKind int

const (
	KindReadRegister RequestKind = iota
	KindWriteRegister
	KindCreateSprite
	KindPatchSprite
	KindDeleteSprite
	KindRender
)

// BitmapPatch bundles an offset and the chunk bytes for an in-progress
// sprite upload, mirroring assets.BitmapPatch without introducing a
// dependency from this package on internal/assets.
type BitmapPatch struct {
	Offset int
	Bytes  []byte
}

// Request is a single decoded protocol event, emitted in the order the
// host's bytes produced it.
type Request struct {
	Kind     RequestKind
	Reg      fxcore.RegisterNumber
	Value    [4]byte
	SpriteID fxcore.SpriteID
	Info     fxcore.SpriteInfo
	Patch    BitmapPatch
	Render   fxcore.RenderRequest
}

// RegisterSource resolves a pre-fetched register read, synchronously,
// before the master clocks the response out. The dispatcher implements
// this by combining the display config (with sprite count overlaid),
// GPIO edge counters, the optional encoder snapshot, and NVM register
// storage.
type RegisterSource interface {
	ReadRegister(reg fxcore.RegisterNumber) [4]byte
}

type state int

const (
	stateCommand state = iota
	stateWaitingWriteRegister
	stateWaitingUploadSprite
	stateWaitingDeleteSprite
	stateUpload
)

// defaultQueueCapacity sizes the Requests channel. The host issues at
// most one command packet in flight over a synchronous I²C transaction,
// so this is a generous cushion rather than a hard protocol limit; the
// render channel's own overflow policy lives in internal/dispatch, not
// here.
const defaultQueueCapacity = 32

// Server decodes the I²C command and render channels into Request
// events.
type Server struct {
	i2c  contracts.I2CSlave
	regs RegisterSource

	requests chan Request

	st          state
	addr        uint8
	payload     []byte
	waitingArg  byte
	uploadID    fxcore.SpriteID
	uploadInfo  fxcore.SpriteInfo
	uploadSent  int
	responseBuf [4]byte
}

// New returns a Server bound to the I²C slave peripheral and a
// RegisterSource used to resolve synchronous register reads.
func New(i2c contracts.I2CSlave, regs RegisterSource) *Server {
	return &Server{
		i2c:      i2c,
		regs:     regs,
		requests: make(chan Request, defaultQueueCapacity),
		payload:  make([]byte, 0, 4),
	}
}

// Requests returns the channel of decoded protocol events, in emission
// order.
func (s *Server) Requests() <-chan Request { return s.requests }

// Run services the I²C slave's event stream until ctx is cancelled or the
// event channel closes. It is the highest-priority task in the
// dispatcher's scheduling model: every branch here does a bounded amount
// of work and never blocks on the bus itself.
func (s *Server) Run(ctx context.Context) error {
	events := s.i2c.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case contracts.I2CAddressMatch:
				s.onAddressMatch(ev.Addr)
			case contracts.I2CByteReceived:
				s.onByte(ctx, ev.Byte)
			case contracts.I2CReadRequested:
				s.onReadRequested()
			case contracts.I2CStop:
				// Packet boundaries are already enforced by
				// expectedLen(); nothing to do on stop itself.
			case contracts.I2CBusError:
				s.onBusError()
			}
		}
	}
}

func (s *Server) onAddressMatch(addr uint8) {
	s.addr = addr
	s.payload = s.payload[:0]
}

func (s *Server) expectedLen() int {
	if s.addr == fxcore.RenderAddress {
		return 4
	}
	switch s.st {
	case stateCommand:
		return 2
	case stateWaitingWriteRegister, stateWaitingUploadSprite, stateWaitingDeleteSprite:
		return 4
	case stateUpload:
		remaining := s.uploadInfo.BitmapLen() - s.uploadSent
		if remaining > 255 {
			return 255
		}
		return remaining
	default:
		return 2
	}
}

func (s *Server) onByte(ctx context.Context, b byte) {
	s.payload = append(s.payload, b)
	if len(s.payload) < s.expectedLen() {
		return
	}
	packet := append([]byte(nil), s.payload...)
	s.payload = s.payload[:0]

	if s.addr == fxcore.RenderAddress {
		s.handleRenderPacket(ctx, packet)
		return
	}
	s.handleCommandPacket(ctx, packet)
}

func (s *Server) handleRenderPacket(ctx context.Context, packet []byte) {
	req := fxcore.RenderRequest{
		Origin:   fxcore.Point{X: packet[0], Y: packet[1]},
		SpriteID: packet[2],
		Glyph:    packet[3],
	}
	s.emit(ctx, Request{Kind: KindRender, Render: req})
}

func (s *Server) handleCommandPacket(ctx context.Context, packet []byte) {
	switch s.st {
	case stateCommand:
		s.handleOpcode(ctx, packet[0], packet[1])
	case stateWaitingWriteRegister:
		var val [4]byte
		copy(val[:], packet)
		s.emit(ctx, Request{Kind: KindWriteRegister, Reg: s.waitingArg, Value: val})
		s.st = stateCommand
	case stateWaitingUploadSprite:
		s.handleUploadHeader(ctx, packet)
	case stateWaitingDeleteSprite:
		s.handleDeleteConfirm(ctx, packet)
	case stateUpload:
		s.handleUploadChunk(ctx, packet)
	}
}

func (s *Server) handleOpcode(ctx context.Context, opcode, arg byte) {
	switch opcode {
	case 0x00:
		val := s.regs.ReadRegister(arg)
		s.responseBuf = val
		s.emit(ctx, Request{Kind: KindReadRegister, Reg: arg})
	case 0x80:
		s.st = stateWaitingWriteRegister
		s.waitingArg = arg
	case 0x81:
		s.st = stateWaitingUploadSprite
		s.waitingArg = arg
	case 0x82:
		s.st = stateWaitingDeleteSprite
		s.waitingArg = arg
	default:
		// Unrecognized opcode: remain in Command, emit nothing.
	}
}

func (s *Server) handleUploadHeader(ctx context.Context, packet []byte) {
	id, w, h, g := packet[0], packet[1], packet[2], packet[3]
	if id != s.waitingArg {
		s.st = stateCommand
		return
	}
	info := fxcore.SpriteInfo{Glyphs: g, GlyphSize: fxcore.GlyphSize{Width: w, Height: h}}
	s.uploadID = id
	s.uploadInfo = info
	s.uploadSent = 0
	s.st = stateUpload
	s.emit(ctx, Request{Kind: KindCreateSprite, SpriteID: id, Info: info})
}

func (s *Server) handleDeleteConfirm(ctx context.Context, packet []byte) {
	id := packet[0]
	if id != s.waitingArg || packet[1] != 'd' || packet[2] != 'e' || packet[3] != 'l' {
		s.st = stateCommand
		return
	}
	s.emit(ctx, Request{Kind: KindDeleteSprite, SpriteID: id})
	s.st = stateCommand
}

func (s *Server) handleUploadChunk(ctx context.Context, packet []byte) {
	offset := s.uploadSent
	s.emit(ctx, Request{
		Kind:     KindPatchSprite,
		SpriteID: s.uploadID,
		Patch:    BitmapPatch{Offset: offset, Bytes: packet},
	})
	s.uploadSent += len(packet)
	if s.uploadSent >= s.uploadInfo.BitmapLen() {
		s.st = stateCommand
	}
}

func (s *Server) onReadRequested() {
	for _, b := range s.responseBuf {
		_ = s.i2c.PushResponseByte(b)
	}
	s.responseBuf = [4]byte{}
}

// onBusError resets the state machine to Command and clears buffered
// state. Never surfaced to the host, which will time out and re-issue if
// needed.
func (s *Server) onBusError() {
	s.st = stateCommand
	s.payload = s.payload[:0]
	s.responseBuf = [4]byte{}
	s.waitingArg = 0
	s.uploadSent = 0
	_ = s.i2c.Rearm()
}

func (s *Server) emit(ctx context.Context, req Request) {
	select {
	case s.requests <- req:
	case <-ctx.Done():
	}
}

package i2cserver

import (
	"context"
	"testing"
	"time"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/contracts"
)

type fakeSlave struct {
	events    chan contracts.I2CEvent
	pushed    []byte
	rearmed   int
	pushErrOn int // if > 0, PushResponseByte fails on this 1-indexed call
}

func newFakeSlave() *fakeSlave {
	return &fakeSlave{events: make(chan contracts.I2CEvent, 64)}
}

func (f *fakeSlave) Events() <-chan contracts.I2CEvent { return f.events }
func (f *fakeSlave) PushResponseByte(b byte) error {
	f.pushed = append(f.pushed, b)
	return nil
}
func (f *fakeSlave) Rearm() error { f.rearmed++; return nil }

func (f *fakeSlave) addrMatch(addr uint8) { f.events <- contracts.I2CEvent{Kind: contracts.I2CAddressMatch, Addr: addr} }
func (f *fakeSlave) sendBytes(bs ...byte) {
	for _, b := range bs {
		f.events <- contracts.I2CEvent{Kind: contracts.I2CByteReceived, Byte: b}
	}
}
func (f *fakeSlave) readRequested() { f.events <- contracts.I2CEvent{Kind: contracts.I2CReadRequested} }
func (f *fakeSlave) busError()      { f.events <- contracts.I2CEvent{Kind: contracts.I2CBusError} }

type fakeRegs struct {
	values map[fxcore.RegisterNumber][4]byte
}

func newFakeRegs() *fakeRegs { return &fakeRegs{values: make(map[fxcore.RegisterNumber][4]byte)} }

func (r *fakeRegs) ReadRegister(reg fxcore.RegisterNumber) [4]byte {
	if v, ok := r.values[reg]; ok {
		return v
	}
	return fxcore.NVMSentinel
}

func startServer(t *testing.T) (*Server, *fakeSlave, *fakeRegs, func()) {
	t.Helper()
	slave := newFakeSlave()
	regs := newFakeRegs()
	s := New(slave, regs)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	return s, slave, regs, func() {
		cancel()
		<-done
	}
}

func recvRequest(t *testing.T, s *Server) Request {
	t.Helper()
	select {
	case req := <-s.Requests():
		return req
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request")
		return Request{}
	}
}

func expectNoRequest(t *testing.T, s *Server) {
	t.Helper()
	select {
	case req := <-s.Requests():
		t.Fatalf("expected no request, got %+v", req)
	case <-time.After(50 * time.Millisecond):
	}
}

// Scenario 1: register round-trip.
func TestRegisterRoundTrip(t *testing.T) {
	s, slave, regs, stop := startServer(t)
	defer stop()

	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x80, 0x05)
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x11, 0x22, 0x33, 0x44)

	req := recvRequest(t, s)
	if req.Kind != KindWriteRegister || req.Reg != 0x05 || req.Value != [4]byte{0x11, 0x22, 0x33, 0x44} {
		t.Fatalf("unexpected write request: %+v", req)
	}
	regs.values[0x05] = req.Value

	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x00, 0x05)
	readReq := recvRequest(t, s)
	if readReq.Kind != KindReadRegister || readReq.Reg != 0x05 {
		t.Fatalf("unexpected read request: %+v", readReq)
	}
	slave.readRequested()

	time.Sleep(20 * time.Millisecond)
	if len(slave.pushed) != 4 {
		t.Fatalf("expected 4 bytes pushed, got %d", len(slave.pushed))
	}
	want := [4]byte{0x11, 0x22, 0x33, 0x44}
	for i, b := range want {
		if slave.pushed[i] != b {
			t.Fatalf("pushed[%d] = %#x, want %#x", i, slave.pushed[i], b)
		}
	}
}

// Scenario 2 (protocol half): small sprite upload emits CreateSprite then
// one PatchSprite per chunk with strictly increasing offsets.
func TestSmallSpriteUpload(t *testing.T) {
	s, slave, _, stop := startServer(t)
	defer stop()

	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x81, 0x07)
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x07, 8, 8, 2) // id=7, 8x8, 2 glyphs -> bitmap_len=16

	create := recvRequest(t, s)
	if create.Kind != KindCreateSprite || create.SpriteID != 7 {
		t.Fatalf("unexpected create request: %+v", create)
	}
	if create.Info.BitmapLen() != 16 {
		t.Fatalf("bitmap_len = %d, want 16", create.Info.BitmapLen())
	}

	chunk := make([]byte, 16)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(chunk...)

	patch := recvRequest(t, s)
	if patch.Kind != KindPatchSprite || patch.SpriteID != 7 || patch.Patch.Offset != 0 {
		t.Fatalf("unexpected patch request: %+v", patch)
	}
	if len(patch.Patch.Bytes) != 16 {
		t.Fatalf("patch bytes len = %d, want 16", len(patch.Patch.Bytes))
	}

	// The state machine should be back in Command: a garbage byte does
	// nothing observable.
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0xAB, 0xCD)
	expectNoRequest(t, s)
}

// Upload completeness with a multi-chunk transfer (bitmap_len > 255).
func TestUploadCompleteness_MultiChunk(t *testing.T) {
	s, slave, _, stop := startServer(t)
	defer stop()

	// 32x64 glyphs -> glyph_len=256, 2 glyphs -> bitmap_len=512 ->
	// ceil(512/255) = 3 chunks.
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x81, 0x01)
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x01, 32, 64, 2)

	create := recvRequest(t, s)
	if create.Info.BitmapLen() != 512 {
		t.Fatalf("bitmap_len = %d, want 512", create.Info.BitmapLen())
	}

	total := 512
	sent := 0
	chunks := 0
	for sent < total {
		n := total - sent
		if n > 255 {
			n = 255
		}
		buf := make([]byte, n)
		slave.addrMatch(fxcore.FxAddress)
		slave.sendBytes(buf...)
		patch := recvRequest(t, s)
		if patch.Patch.Offset != sent {
			t.Fatalf("chunk %d offset = %d, want %d", chunks, patch.Patch.Offset, sent)
		}
		sent += n
		chunks++
	}
	if chunks != 3 {
		t.Fatalf("chunks = %d, want 3", chunks)
	}
	if sent != total {
		t.Fatalf("sent = %d, want %d", sent, total)
	}
}

// Scenario 6: framing recovery after a mid-upload bus error.
func TestFramingRecoveryAfterBusError(t *testing.T) {
	s, slave, _, stop := startServer(t)
	defer stop()

	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x81, 0x04)
	slave.busError()
	time.Sleep(20 * time.Millisecond)
	if slave.rearmed != 1 {
		t.Fatalf("expected Rearm called once, got %d", slave.rearmed)
	}

	// Next upload sequence proceeds normally from Command.
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x81, 0x04)
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x04, 8, 8, 1)
	create := recvRequest(t, s)
	if create.Kind != KindCreateSprite || create.SpriteID != 4 {
		t.Fatalf("unexpected request after recovery: %+v", create)
	}
}

// Delete-sprite requires the literal three-byte magic; anything else
// silently aborts back to Command.
func TestDeleteSpriteRequiresMagic(t *testing.T) {
	s, slave, _, stop := startServer(t)
	defer stop()

	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x82, 0x09)
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x09, 'x', 'y', 'z')
	expectNoRequest(t, s)

	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x82, 0x09)
	slave.addrMatch(fxcore.FxAddress)
	slave.sendBytes(0x09, 'd', 'e', 'l')
	del := recvRequest(t, s)
	if del.Kind != KindDeleteSprite || del.SpriteID != 9 {
		t.Fatalf("unexpected delete request: %+v", del)
	}
}

// Render channel writes are decoded independent of command-channel state.
func TestRenderChannelDecodesIndependently(t *testing.T) {
	s, slave, _, stop := startServer(t)
	defer stop()

	slave.addrMatch(fxcore.RenderAddress)
	slave.sendBytes(3, 4, 7, 1)
	req := recvRequest(t, s)
	if req.Kind != KindRender {
		t.Fatalf("expected render request, got %+v", req)
	}
	want := fxcore.RenderRequest{Origin: fxcore.Point{X: 3, Y: 4}, SpriteID: 7, Glyph: 1}
	if req.Render != want {
		t.Fatalf("render request = %+v, want %+v", req.Render, want)
	}
}

// Protocol framing: every command byte that is not 0x00/0x80/0x81/0x82
// leaves the state machine in Command and emits no request.
func TestUnknownOpcodeStaysInCommand(t *testing.T) {
	s, slave, _, stop := startServer(t)
	defer stop()

	for _, opcode := range []byte{0x01, 0x7F, 0x83, 0xFF} {
		slave.addrMatch(fxcore.FxAddress)
		slave.sendBytes(opcode, 0x00)
		expectNoRequest(t, s)
	}
}

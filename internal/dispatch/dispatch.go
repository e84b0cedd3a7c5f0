// Package dispatch is the top-level wiring: it binds the I²C server's
// decoded requests, the GPIO edge sources, and the render queue to the
// three resources the dispatcher owns (display, asset store, control
// inputs), enforcing the lock discipline around the SPI bus they share.
package dispatch

import (
	"context"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/assets"
	"github.com/dotcypress/fxcore/internal/contracts"
	"github.com/dotcypress/fxcore/internal/control"
	"github.com/dotcypress/fxcore/internal/i2cserver"
	"github.com/dotcypress/fxcore/internal/render"
)

// Display is the subset of *display.Dev the dispatcher depends on.
type Display interface {
	Config() [4]byte
	SetConfig(cfg [4]byte) error
	Draw(bounds fxcore.Bounds, pixels []byte) error
}

// Server is the subset of *i2cserver.Server the dispatcher depends on.
type Server interface {
	Requests() <-chan i2cserver.Request
	Run(ctx context.Context) error
}

// Dispatcher owns the shared resources and binds the tasks together: it
// is never itself the unit of concurrency, just the resource-and-lock
// owner the tasks below close over.
type Dispatcher struct {
	display Display
	assets  *assets.Assets
	edgesA  *control.EdgeCounters
	edgesB  *control.EdgeCounters
	encoder *control.Encoder
	server  Server

	edgeSourceA contracts.EdgeSource
	edgeSourceB contracts.EdgeSource

	renderEngine *render.Engine
	queue        *renderQueue

	busLock     *CeilingLock
	storeLock   *CeilingLock
	displayLock *CeilingLock
	controlLock *CeilingLock

	handled atomic.Int64
}

// Option configures optional Dispatcher wiring.
type Option func(*Dispatcher)

// WithGPIOEdgeSources wires the two physical edge-interrupt sources
// backing GPIO groups A (register 0xFE) and B (register 0xFD). Omit this
// option in tests that don't exercise edge counting.
func WithGPIOEdgeSources(a, b contracts.EdgeSource) Option {
	return func(d *Dispatcher) {
		d.edgeSourceA = a
		d.edgeSourceB = b
	}
}

// New returns a Dispatcher wiring disp/store/encoder/server together with
// a render queue of the given capacity.
func New(disp Display, store *assets.Assets, encoder *control.Encoder, server Server, queueCapacity int, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		display:      disp,
		assets:       store,
		edgesA:       control.NewEdgeCounters(),
		edgesB:       control.NewEdgeCounters(),
		encoder:      encoder,
		server:       server,
		renderEngine: render.New(store, disp),
		queue:        newRenderQueue(queueCapacity),
		busLock:      NewCeilingLock("spi-bus"),
		storeLock:    NewCeilingLock("asset-store"),
		displayLock:  NewCeilingLock("display"),
		controlLock:  NewCeilingLock("control-inputs"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BindServer attaches the I²C server after construction, resolving the
// construction cycle: the server needs the dispatcher as its
// RegisterSource and the dispatcher needs the server's request stream.
func (d *Dispatcher) BindServer(s Server) { d.server = s }

// Handled reports how many decoded requests the command loop has fully
// applied (for renders: enqueued or dropped). The host simulators use it
// to wait for a write to land before issuing the read that observes it,
// the same settle a real I²C master gets from inter-transaction delay.
func (d *Dispatcher) Handled() int64 { return d.handled.Load() }

// ReadRegister implements i2cserver.RegisterSource: the pre-fetched read
// table, resolved synchronously before the master clocks the response
// out.
func (d *Dispatcher) ReadRegister(reg fxcore.RegisterNumber) [4]byte {
	switch reg {
	case fxcore.RegDisplayConfig:
		return d.readDisplayConfig()
	case fxcore.RegGPIOGroupA:
		d.controlLock.Lock(PriorityI2C)
		defer d.controlLock.Unlock()
		return d.edgesA.AsBytes()
	case fxcore.RegGPIOGroupB:
		d.controlLock.Lock(PriorityI2C)
		defer d.controlLock.Unlock()
		return d.edgesB.AsBytes()
	case fxcore.RegEncoder:
		if d.encoder != nil && d.encoder.Enabled() {
			return d.encoder.Snapshot()
		}
		return fxcore.EncoderNotBuiltSentinel
	default:
		var out [4]byte
		d.withStore(PriorityI2C, func() error {
			out = d.assets.ReadNVM(reg)
			return nil
		})
		return out
	}
}

// readDisplayConfig returns the display's last-written configuration with
// byte 3 overwritten by the live sprite count.
func (d *Dispatcher) readDisplayConfig() [4]byte {
	var cfg [4]byte
	d.withDisplay(PriorityI2C, func() error {
		cfg = d.display.Config()
		return nil
	})
	d.withStore(PriorityI2C, func() error {
		cfg[3] = byte(d.assets.GetSpritesCount())
		return nil
	})
	return cfg
}

func (d *Dispatcher) withStore(priority int32, fn func() error) error {
	d.busLock.Lock(priority)
	defer d.busLock.Unlock()
	d.storeLock.Lock(priority)
	defer d.storeLock.Unlock()
	return fn()
}

func (d *Dispatcher) withDisplay(priority int32, fn func() error) error {
	d.busLock.Lock(priority)
	defer d.busLock.Unlock()
	d.displayLock.Lock(priority)
	defer d.displayLock.Unlock()
	return fn()
}

// Run starts every task the dispatcher binds — the I²C server, the
// command-request loop, the render task, and (if wired) the GPIO edge
// handlers — and blocks until ctx is cancelled or one of them reports a
// fatal error.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Run(ctx) })
	g.Go(func() error { d.runCommands(ctx); return nil })
	g.Go(func() error { d.runRenderTask(ctx); return nil })
	if d.edgeSourceA != nil {
		g.Go(func() error { d.runEdgeGroup(ctx, d.edgeSourceA, d.edgesA); return nil })
	}
	if d.edgeSourceB != nil {
		g.Go(func() error { d.runEdgeGroup(ctx, d.edgeSourceB, d.edgesB); return nil })
	}
	return g.Wait()
}

// runCommands is the I²C handler's continuation: for every decoded
// request that isn't a synchronous register read (already answered in
// ReadRegister), it applies the mutation to the store/display or enqueues
// a render request.
func (d *Dispatcher) runCommands(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-d.server.Requests():
			if !ok {
				return
			}
			d.handleRequest(req)
		}
	}
}

func (d *Dispatcher) handleRequest(req i2cserver.Request) {
	defer d.handled.Add(1)
	switch req.Kind {
	case i2cserver.KindReadRegister:
		// Already answered synchronously; nothing left to do.
	case i2cserver.KindWriteRegister:
		d.handleWriteRegister(req)
	case i2cserver.KindCreateSprite:
		if err := d.withStore(PriorityI2C, func() error {
			return d.assets.CreateSprite(req.SpriteID, req.Info)
		}); err != nil {
			log.Printf("dispatch: create sprite %d: %v", req.SpriteID, err)
		}
	case i2cserver.KindPatchSprite:
		if err := d.withStore(PriorityI2C, func() error {
			return d.assets.PatchSpriteBitmap(req.SpriteID, assets.BitmapPatch{
				Offset: req.Patch.Offset,
				Bytes:  req.Patch.Bytes,
			})
		}); err != nil {
			log.Printf("dispatch: patch sprite %d: %v", req.SpriteID, err)
		}
	case i2cserver.KindDeleteSprite:
		if err := d.withStore(PriorityI2C, func() error {
			return d.assets.DeleteSprite(req.SpriteID)
		}); err != nil {
			log.Printf("dispatch: delete sprite %d: %v", req.SpriteID, err)
		}
	case i2cserver.KindRender:
		if !d.queue.tryEnqueue(req.Render) {
			log.Printf("dispatch: %v: dropping render of sprite %d glyph %d", fxcore.ErrQueueOverflow, req.Render.SpriteID, req.Render.Glyph)
		}
	}
}

func (d *Dispatcher) handleWriteRegister(req i2cserver.Request) {
	switch {
	case req.Reg == fxcore.RegDisplayConfig:
		if err := d.withDisplay(PriorityI2C, func() error {
			return d.display.SetConfig(req.Value)
		}); err != nil {
			log.Printf("dispatch: set display config: %v", err)
		}
	case req.Reg <= fxcore.MaxUserRegister:
		if err := d.withStore(PriorityI2C, func() error {
			return d.assets.WriteNVM(req.Reg, req.Value)
		}); err != nil {
			log.Printf("dispatch: write register %#x: %v", req.Reg, err)
		}
	default:
		// Reserved register (0xFD/0xFE): ignored.
	}
}

// runRenderTask pulls from the bounded render queue and drives the render
// engine. It runs at the lowest of the three active priorities, so a slow
// flash read never delays the I²C handler or GPIO edge capture.
func (d *Dispatcher) runRenderTask(ctx context.Context) {
	for {
		req, ok := d.queue.dequeue(ctx)
		if !ok {
			return
		}
		d.busLock.Lock(PriorityRender)
		d.storeLock.Lock(PriorityRender)
		d.displayLock.Lock(PriorityRender)
		err := d.renderEngine.Render(ctx, req)
		d.displayLock.Unlock()
		d.storeLock.Unlock()
		d.busLock.Unlock()
		if err != nil {
			log.Printf("dispatch: render dropped: %v", err)
		}
	}
}

// runEdgeGroup pumps edges from src into counters until ctx is cancelled.
func (d *Dispatcher) runEdgeGroup(ctx context.Context, src contracts.EdgeSource, counters *control.EdgeCounters) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line, kind, err := src.WaitForEdge()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("dispatch: edge source error: %v", err)
			continue
		}
		d.controlLock.Lock(PriorityGPIO)
		counters.RecordEdge(line, kind)
		d.controlLock.Unlock()
	}
}

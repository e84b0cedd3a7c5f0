// fxfw boots the co-processor on real hardware: SPI flash and the
// ST7567 panel via periph.io, button edges from GPIO lines, and the host
// link on a Unix socket speaking the I²C slave event framing (periph.io
// and mainline Linux only do master mode, so the slave peripheral is
// bridged rather than native — a board port replaces socketSlave with
// its I²C slave silicon).
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/assets"
	"github.com/dotcypress/fxcore/internal/contracts"
	"github.com/dotcypress/fxcore/internal/control"
	"github.com/dotcypress/fxcore/internal/dispatch"
	"github.com/dotcypress/fxcore/internal/display"
	"github.com/dotcypress/fxcore/internal/flash"
	"github.com/dotcypress/fxcore/internal/i2cserver"
	"github.com/dotcypress/fxcore/internal/kv"
)

var (
	spiPort   = flag.String("spi", "", "SPI port registry name (default: first available)")
	flashCS   = flag.String("flash-cs", "GPIO8", "flash chip-select pin")
	flashWP   = flag.String("flash-wp", "GPIO7", "flash write-protect pin")
	lcdCS     = flag.String("lcd-cs", "GPIO25", "LCD chip-select pin")
	lcdDC     = flag.String("lcd-dc", "GPIO24", "LCD data/command pin")
	lcdReset  = flag.String("lcd-reset", "GPIO23", "LCD reset pin")
	backlight = flag.String("backlight", "GPIO18", "backlight PWM pin")
	buttonsA  = flag.String("buttons-a", "", "comma-separated GPIO group A edge pins (up to 4)")
	buttonsB  = flag.String("buttons-b", "", "comma-separated GPIO group B edge pins (up to 4)")
	hostSock  = flag.String("host-socket", "/run/fxfw.sock", "Unix socket for the host link")
)

func main() {
	flag.Parse()
	log.SetPrefix("fxfw: ")

	if _, err := host.Init(); err != nil {
		log.Fatalf("periph host init: %v", err)
	}

	port, err := spireg.Open(*spiPort)
	if err != nil {
		log.Fatalf("open spi port %q: %v", *spiPort, err)
	}
	defer port.Close()
	conn, err := port.Connect(16*physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		log.Fatalf("connect spi: %v", err)
	}

	flashAdapter := flash.New(conn,
		&csPin{pin: mustPin(*flashCS)},
		&wpPin{pin: mustPin(*flashWP)},
		time.Sleep)
	store, err := kv.Open(flashAdapter)
	if err != nil {
		log.Fatalf("open kv store: %v", err)
	}
	assetStore := assets.New(store, flashAdapter)

	disp, err := display.New(conn,
		mustPin(*lcdReset),
		&csPin{pin: mustPin(*lcdCS)},
		mustPin(*lcdDC),
		&pinPWM{pin: mustPin(*backlight)},
		time.Sleep)
	if err != nil {
		log.Fatalf("display init: %v", err)
	}

	slave, err := listenSlave(*hostSock)
	if err != nil {
		log.Fatalf("host link: %v", err)
	}
	defer slave.Close()

	var opts []dispatch.Option
	srcA, errA := edgeGroup(*buttonsA)
	srcB, errB := edgeGroup(*buttonsB)
	if errA != nil {
		log.Fatalf("buttons-a: %v", errA)
	}
	if errB != nil {
		log.Fatalf("buttons-b: %v", errB)
	}
	if srcA != nil || srcB != nil {
		opts = append(opts, dispatch.WithGPIOEdgeSources(srcA, srcB))
	}

	d := dispatch.New(disp, assetStore, control.NewEncoder(nil), nil, fxcore.RenderQueueCapacity, opts...)
	d.BindServer(i2cserver.New(slave, d))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log.Printf("up: host link on %s", *hostSock)
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("dispatcher: %v", err)
	}
}

func mustPin(name string) gpio.PinIO {
	p := gpioreg.ByName(name)
	if p == nil {
		log.Fatalf("no such pin %q", name)
	}
	return p
}

// csPin adapts an active-low chip-select line.
type csPin struct{ pin gpio.PinIO }

func (c *csPin) Assert()   { _ = c.pin.Out(gpio.Low) }
func (c *csPin) Deassert() { _ = c.pin.Out(gpio.High) }

// wpPin adapts the flash write-protect line.
type wpPin struct{ pin gpio.PinIO }

func (w *wpPin) Low()  { _ = w.pin.Out(gpio.Low) }
func (w *wpPin) High() { _ = w.pin.Out(gpio.High) }

// pinPWM adapts gpio.PinOut's PWM to the backlight contract.
type pinPWM struct{ pin gpio.PinIO }

func (p *pinPWM) SetDutyCycle(duty gpio.Duty, freq physic.Frequency) error {
	return p.pin.PWM(duty, freq)
}

// pinEdge is one detected transition on a group pin.
type pinEdge struct {
	line int
	kind contracts.EdgeKind
}

// pinEdgeSource fans edge detection on up to four pins into the single
// blocking WaitForEdge the control layer expects.
type pinEdgeSource struct {
	edges chan pinEdge
}

func (s *pinEdgeSource) WaitForEdge() (int, contracts.EdgeKind, error) {
	e := <-s.edges
	return e.line, e.kind, nil
}

// edgeGroup configures the named pins for both-edge detection and
// returns a source multiplexing them, or nil when spec is empty.
func edgeGroup(spec string) (contracts.EdgeSource, error) {
	if spec == "" {
		return nil, nil
	}
	names := strings.Split(spec, ",")
	if len(names) > 4 {
		names = names[:4]
	}
	src := &pinEdgeSource{edges: make(chan pinEdge, 16)}
	for i, name := range names {
		pin := mustPin(strings.TrimSpace(name))
		if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return nil, err
		}
		go func(line int, pin gpio.PinIO) {
			for {
				if !pin.WaitForEdge(-1) {
					continue
				}
				kind := contracts.EdgeFalling
				if pin.Read() == gpio.High {
					kind = contracts.EdgeRising
				}
				src.edges <- pinEdge{line: line, kind: kind}
			}
		}(i, pin)
	}
	return src, nil
}

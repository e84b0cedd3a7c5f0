// Package control implements the GPIO edge counters and (optionally) the
// quadrature encoder snapshot exposed at registers 0xFE/0xFD/0xFC: two
// saturating 4-bit counters per line, incremented from the
// external-interrupt controller's pending-flag dispatch and zeroed on
// read.
package control

import (
	"sync"

	"github.com/dotcypress/fxcore/internal/contracts"
)

const (
	maxLines    = 4
	counterMax  = 0x0F
	risingShift = 4
)

// EdgeCounters holds saturating rising/falling edge counts for up to four
// GPIO lines. Safe for concurrent use: RecordEdge is called from the GPIO
// edge handler while AsBytes is called from the I²C server's pre-fetched
// register read.
type EdgeCounters struct {
	mu      sync.Mutex
	rising  [maxLines]uint8
	falling [maxLines]uint8
}

// NewEdgeCounters returns a zeroed counter bank.
func NewEdgeCounters() *EdgeCounters {
	return &EdgeCounters{}
}

// RecordEdge increments the counter for line/kind, saturating at 0x0F.
// Lines beyond maxLines are ignored (the wire format only carries four).
func (c *EdgeCounters) RecordEdge(line int, kind contracts.EdgeKind) {
	if line < 0 || line >= maxLines {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case contracts.EdgeRising:
		if c.rising[line] < counterMax {
			c.rising[line]++
		}
	case contracts.EdgeFalling:
		if c.falling[line] < counterMax {
			c.falling[line]++
		}
	}
}

// AsBytes packs [falling|rising<<4] per line into up to four bytes, then
// zeroes the counters (read-and-clear).
func (c *EdgeCounters) AsBytes() [4]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [4]byte
	for i := 0; i < maxLines; i++ {
		out[i] = c.falling[i] | c.rising[i]<<risingShift
	}
	c.rising = [maxLines]uint8{}
	c.falling = [maxLines]uint8{}
	return out
}

// Run blocks pumping edges from src into c until stop closes or src
// returns an error. It stands in for a GPIO edge ISR: edges must be
// captured promptly or they are lost, so callers run it on a dedicated
// goroutine.
func (c *EdgeCounters) Run(stop <-chan struct{}, src contracts.EdgeSource) error {
	for {
		select {
		case <-stop:
			return nil
		default:
		}
		line, kind, err := src.WaitForEdge()
		if err != nil {
			return err
		}
		c.RecordEdge(line, kind)
	}
}

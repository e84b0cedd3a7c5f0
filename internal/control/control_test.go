package control

import (
	"testing"

	"github.com/dotcypress/fxcore/internal/contracts"
)

func TestEdgeCounters_SaturatesAndClearsOnRead(t *testing.T) {
	c := NewEdgeCounters()
	for i := 0; i < 20; i++ {
		c.RecordEdge(0, contracts.EdgeRising)
	}
	c.RecordEdge(0, contracts.EdgeFalling)

	out := c.AsBytes()
	if out[0] != 0xF1 {
		t.Fatalf("line 0 byte = %#x, want 0xF1 (rising saturated at 15, falling 1)", out[0])
	}

	again := c.AsBytes()
	if again != [4]byte{} {
		t.Fatalf("expected read-and-clear, second read = %v", again)
	}
}

func TestEdgeCounters_PerLineIndependence(t *testing.T) {
	c := NewEdgeCounters()
	c.RecordEdge(0, contracts.EdgeRising)
	c.RecordEdge(0, contracts.EdgeRising)
	c.RecordEdge(0, contracts.EdgeRising)
	c.RecordEdge(0, contracts.EdgeFalling)

	out := c.AsBytes()
	if out[0] != (3<<4 | 1) {
		t.Fatalf("byte = %#x, want rising=3 falling=1 packed", out[0])
	}
}

func TestEdgeCounters_IgnoresOutOfRangeLine(t *testing.T) {
	c := NewEdgeCounters()
	c.RecordEdge(9, contracts.EdgeRising)
	if out := c.AsBytes(); out != [4]byte{} {
		t.Fatalf("expected no-op for out-of-range line, got %v", out)
	}
}

//go:build encoder

// Package control: this file backs register 0xFC with a live quadrature
// encoder snapshot when the repo is built with -tags encoder. Whether
// the second GPIO group's bits 2/3 are wired to an encoder or to plain
// GPIOs is a board-level build-time choice; this build selects the
// encoder.
package control

import "github.com/dotcypress/fxcore/internal/contracts"

// Encoder exposes the quadrature encoder's non-destructive snapshot:
// pulse count divided by two as a 16-bit big-endian value, a direction
// flag (1 = down-counting), and a reserved trailing byte.
type Encoder struct {
	timer contracts.QuadratureTimer
}

// NewEncoder wraps the hardware timer backing the quadrature input.
func NewEncoder(timer contracts.QuadratureTimer) *Encoder {
	return &Encoder{timer: timer}
}

// Enabled reports whether a quadrature encoder is compiled in and a
// timer is wired; the register read path uses it to decide between a
// live snapshot and the 0xFFFFFFFF not-built sentinel.
func (e *Encoder) Enabled() bool { return e.timer != nil }

// Snapshot returns the current [count_hi, count_lo, direction, reserved]
// reading without mutating any state.
func (e *Encoder) Snapshot() [4]byte {
	count := e.timer.PulseCount() / 2
	var dir byte
	if e.timer.CountingDown() {
		dir = 1
	}
	return [4]byte{byte(count >> 8), byte(count), dir, 0}
}

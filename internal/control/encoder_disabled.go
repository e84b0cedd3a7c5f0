//go:build !encoder

// Package control: default build, no quadrature encoder. Register 0xFC
// reports the not-built sentinel and group B's bits 2/3 are treated as
// plain GPIO lines by the caller.
package control

import "github.com/dotcypress/fxcore/internal/contracts"

// Encoder is a stub satisfying the same shape as the encoder-enabled
// build so the I²C server and dispatcher don't need a build tag of their
// own.
type Encoder struct{}

// NewEncoder ignores timer in this build; it exists only so callers can
// wire a contracts.QuadratureTimer unconditionally.
func NewEncoder(timer contracts.QuadratureTimer) *Encoder {
	return &Encoder{}
}

// Enabled always reports false in this build.
func (e *Encoder) Enabled() bool { return false }

// Snapshot is never read in this build; the server returns the
// not-built sentinel directly without calling it.
func (e *Encoder) Snapshot() [4]byte { return [4]byte{} }

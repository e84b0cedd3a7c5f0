package fxcore

import "errors"

// Sentinel error kinds shared across the component packages. Bus I/O faults
// are not wrapped in a sentinel: adapter errors already satisfy error and
// propagate as-is.
var (
	ErrKeyNotFound     = errors.New("fxcore: key not found")
	ErrFull            = errors.New("fxcore: store full")
	ErrInvalidLength   = errors.New("fxcore: invalid length")
	ErrProtocolFraming = errors.New("fxcore: protocol framing error")
	ErrQueueOverflow   = errors.New("fxcore: render queue overflow")
)

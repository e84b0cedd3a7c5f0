// Package contracts defines the hardware interfaces this repo treats as
// external collaborators: pin muxing, the raw SPI/I²C peripherals, PWM,
// and the external-interrupt controller. Shapes follow
// periph.io/x/conn/v3's device-driver conventions (spi.Conn, gpio.PinIO,
// gpio.Duty) so a real board can satisfy these with a thin adapter over
// periph.io itself.
package contracts

import (
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// SPIBus is the single physical SPI bus shared by the flash adapter and
// the display driver. Both holders serialize through the dispatcher's
// priority-ceiling lock before calling Tx.
type SPIBus interface {
	// Tx writes w and reads len(r) bytes in the same transaction. Either
	// slice may be nil, matching periph.io's spi.Conn.Tx contract.
	Tx(w, r []byte) error
}

// ChipSelect toggles a device's own chip-select line. The flash adapter
// and display driver each own their CS line exclusively; only the SPI
// bus itself is shared.
type ChipSelect interface {
	Assert()
	Deassert()
}

// WriteProtect drives a flash's write-protect pin. Must be Low for the
// duration of a write or erase and High otherwise.
type WriteProtect interface {
	Low()
	High()
}

// GPIOPin is a single general-purpose pin, matching periph.io's
// gpio.PinIO subset this repo needs.
type GPIOPin interface {
	Out(level gpio.Level) error
	Read() gpio.Level
}

// PWM is a single backlight PWM channel. DutyCycle is expressed as
// periph.io's gpio.Duty (0..gpio.DutyMax), matching gpio.PinOut.PWM.
type PWM interface {
	SetDutyCycle(duty gpio.Duty, freq physic.Frequency) error
}

// Delay abstracts the board's busy-wait/sleep primitive so tests can
// inject a zero-cost delay instead of real time.Sleep.
type Delay func(d time.Duration)

// EdgeKind distinguishes a GPIO transition.
type EdgeKind uint8

const (
	EdgeRising EdgeKind = iota
	EdgeFalling
)

// EdgeSource is the external-interrupt controller contract for GPIO edge
// detection: WaitForEdge blocks the calling goroutine
// (standing in for the GPIO ISR) until an edge is pending, then reports
// which line and kind it was.
type EdgeSource interface {
	WaitForEdge() (line int, kind EdgeKind, err error)
}

// I2CEvent is a single event surfaced by the I²C slave peripheral:
// address match, a received byte, or stop.
type I2CEvent struct {
	Kind I2CEventKind
	Addr uint8 // valid when Kind == I2CAddressMatch
	Byte byte  // valid when Kind == I2CByteReceived
}

type I2CEventKind uint8

const (
	I2CAddressMatch I2CEventKind = iota
	I2CByteReceived
	I2CReadRequested // master wants to read from the response buffer
	I2CStop
	I2CBusError
)

// PowerState is a point-in-time reading from the power-management IC:
// the overcurrent fault line, the sensed supply voltage, and the
// charger's raw status and fault registers (opaque here; decoding them
// is the PMIC driver's concern).
type PowerState struct {
	Overcurrent   bool
	VccMillivolts uint16
	ChargerStatus uint8
	ChargerFaults uint8
}

// PowerController is the optional power-management IC contract: a rail
// enable switch plus a status snapshot. Nothing in this repo calls it —
// the dispatcher never touches power — it exists so a board integrator
// can supply an implementation without changing any package here.
type PowerController interface {
	PowerOn()
	PowerOff()
	State() (PowerState, error)
}

// QuadratureTimer is the hardware timer contract backing the optional
// quadrature encoder: a free-running pulse counter and its count
// direction, matching the general-purpose timer §6 lists as "for render
// ticks (unused in the I²C-driven variant)" repurposed in encoder mode.
type QuadratureTimer interface {
	// PulseCount returns the timer's current raw pulse count.
	PulseCount() uint32
	// CountingDown reports the timer's current count direction.
	CountingDown() bool
}

// I2CSlave is the I²C slave peripheral contract: address-match, byte-ready
// and stop events on a channel, plus the ability to push response bytes
// and re-arm after a fault. Matches a one-bit dual-address mask selecting
// FxAddress/RenderAddress with a single address-match interrupt.
type I2CSlave interface {
	Events() <-chan I2CEvent
	PushResponseByte(b byte) error
	Rearm() error
}

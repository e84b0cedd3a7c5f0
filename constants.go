package fxcore

// Build-time constants that must match host expectations.
const (
	FxAddress     = 0x2A // command channel slave address (even)
	RenderAddress = 0x2B // render channel slave address (FxAddress | 1)

	SpriteCacheSize = 128

	FlashMaxAddress = 0x1FFFF // address-exclusive upper bound is FlashMaxAddress+1
	FlashSize       = FlashMaxAddress + 1
	FlashPageSize   = 256

	KVSMagic   = 0x2A2B
	KVSNonce   = 45033
	KVSBuckets = 512
	KVSSlots   = 16
	KVSMaxHops = 32
)

// Pre-fetched read registers.
const (
	RegDisplayConfig RegisterNumber = 0xFF
	RegGPIOGroupA    RegisterNumber = 0xFE
	RegGPIOGroupB    RegisterNumber = 0xFD
	RegEncoder       RegisterNumber = 0xFC
)

// MaxGlyphBytes bounds the stack buffer the render engine reads a glyph
// into.
const MaxGlyphBytes = 2048

// RenderQueueCapacity is the render task's bounded queue capacity. This
// figure isn't derived from a host-behaviour model; it is kept as a fixed
// default rather than re-derived here (see DESIGN.md).
const RenderQueueCapacity = 64

// NVMSentinel is returned for register reads that fail.
var NVMSentinel = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

// EncoderNotBuiltSentinel is the 0xFC response when the quadrature encoder
// feature is not compiled in.
var EncoderNotBuiltSentinel = [4]byte{0xFF, 0xFF, 0xFF, 0xFF}

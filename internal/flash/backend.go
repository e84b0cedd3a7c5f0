package flash

// Backend is the subset of Adapter/Simulated the KV store depends on.
// Both the real SPI-backed Adapter and the in-memory Simulated satisfy it.
type Backend interface {
	Read(addr uint32, buf []byte) error
	Write(addr uint32, data []byte) error
	Erase(addr, length uint32) error
	MinEraseSize() int
}

var (
	_ Backend = (*Adapter)(nil)
	_ Backend = (*Simulated)(nil)
)

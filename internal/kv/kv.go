// Package kv implements the open-addressed, linear-probing key/value
// store layered over SPI flash: a fixed magic+nonce header, BUCKETS x
// SLOTS fixed-size slots, and a value arena filling the rest of the
// addressable flash region.
package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"sync"

	"github.com/dotcypress/fxcore"
	"github.com/dotcypress/fxcore/internal/flash"
)

const (
	headerAddr = 0
	headerSize = 8 // magic(4) + nonce(2) + reserved(2)

	slotOccupiedOff = 0
	slotKeyOff      = 1
	slotLengthOff   = 3
	slotAddrOff     = 7
	slotSize        = 11

	// slotOccupiedTag marks a live slot. Erased flash reads 0xFF and a
	// removed slot is rewritten to 0x00; both must read as free, so
	// occupancy is an exact-match tag, not a boolean byte.
	slotOccupiedTag = 0xA5

	bucketsAddr      = headerAddr + headerSize
	bucketRegionSize = fxcore.KVSBuckets * fxcore.KVSSlots * slotSize
	arenaStart       = bucketsAddr + bucketRegionSize
)

// region is a free value-arena span available for reuse.
type region struct {
	addr   uint32
	length uint32
}

// Store is the open-addressed KV store.
type Store struct {
	backend flash.Backend

	mu        sync.Mutex
	freelist  []region
	highWater uint32
}

// Open reads the store's header from backend; a magic/nonce mismatch
// triggers a format (header + bucket region wiped, then rewritten).
func Open(backend flash.Backend) (*Store, error) {
	s := &Store{backend: backend}
	hdr := make([]byte, headerSize)
	if err := backend.Read(headerAddr, hdr); err != nil {
		return nil, fmt.Errorf("kv: read header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	nonce := binary.LittleEndian.Uint16(hdr[4:6])
	if magic != fxcore.KVSMagic || nonce != fxcore.KVSNonce {
		if err := s.format(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := s.rebuildArenaState(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) format() error {
	if err := s.backend.Erase(headerAddr, arenaStart-headerAddr); err != nil {
		return fmt.Errorf("kv: format erase: %w", err)
	}
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], fxcore.KVSMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], fxcore.KVSNonce)
	if err := s.backend.Write(headerAddr, hdr); err != nil {
		return fmt.Errorf("kv: format write header: %w", err)
	}
	s.freelist = nil
	s.highWater = arenaStart
	return nil
}

// rebuildArenaState scans the persisted bucket array to recompute the
// value-arena high-water mark. The in-memory free list starts empty after
// a re-open: reclaiming space freed in a prior session is a compaction
// concern this implementation doesn't attempt (see DESIGN.md).
func (s *Store) rebuildArenaState() error {
	s.highWater = arenaStart
	buf := make([]byte, slotSize)
	for i := 0; i < fxcore.KVSBuckets*fxcore.KVSSlots; i++ {
		if err := s.backend.Read(bucketsAddr+uint32(i*slotSize), buf); err != nil {
			return fmt.Errorf("kv: scan slot %d: %w", i, err)
		}
		if buf[slotOccupiedOff] != slotOccupiedTag {
			continue
		}
		addr := binary.LittleEndian.Uint32(buf[slotAddrOff : slotAddrOff+4])
		length := binary.LittleEndian.Uint32(buf[slotLengthOff : slotLengthOff+4])
		if end := addr + length; end > s.highWater {
			s.highWater = end
		}
	}
	return nil
}

func bucketFor(key [2]byte) int {
	h := fnv.New32a()
	h.Write(key[:])
	return int(h.Sum32()) % fxcore.KVSBuckets
}

func (s *Store) slotAddr(bucket, slot int) uint32 {
	return bucketsAddr + uint32((bucket*fxcore.KVSSlots+slot)*slotSize)
}

func (s *Store) readSlot(bucket, slot int) (occupied bool, key [2]byte, length, addr uint32, err error) {
	buf := make([]byte, slotSize)
	if err = s.backend.Read(s.slotAddr(bucket, slot), buf); err != nil {
		return
	}
	occupied = buf[slotOccupiedOff] == slotOccupiedTag
	key[0], key[1] = buf[slotKeyOff], buf[slotKeyOff+1]
	length = binary.LittleEndian.Uint32(buf[slotLengthOff : slotLengthOff+4])
	addr = binary.LittleEndian.Uint32(buf[slotAddrOff : slotAddrOff+4])
	return
}

func (s *Store) writeSlot(bucket, slot int, occupied bool, key [2]byte, length, addr uint32) error {
	buf := make([]byte, slotSize)
	if occupied {
		buf[slotOccupiedOff] = slotOccupiedTag
	}
	buf[slotKeyOff], buf[slotKeyOff+1] = key[0], key[1]
	binary.LittleEndian.PutUint32(buf[slotLengthOff:slotLengthOff+4], length)
	binary.LittleEndian.PutUint32(buf[slotAddrOff:slotAddrOff+4], addr)
	return s.backend.Write(s.slotAddr(bucket, slot), buf)
}

// findOccupied locates the slot holding key, probing up to KVSMaxHops
// buckets starting at bucketFor(key).
func (s *Store) findOccupied(key [2]byte) (bucket, slot int, length, addr uint32, err error) {
	base := bucketFor(key)
	for hop := 0; hop < fxcore.KVSMaxHops; hop++ {
		b := (base + hop) % fxcore.KVSBuckets
		for sl := 0; sl < fxcore.KVSSlots; sl++ {
			occ, k, l, a, rerr := s.readSlot(b, sl)
			if rerr != nil {
				return 0, 0, 0, 0, fmt.Errorf("kv: %w", rerr)
			}
			if occ && k == key {
				return b, sl, l, a, nil
			}
		}
	}
	return 0, 0, 0, 0, fxcore.ErrKeyNotFound
}

// findFree locates the first unoccupied slot along key's probe sequence.
func (s *Store) findFree(key [2]byte) (bucket, slot int, err error) {
	base := bucketFor(key)
	for hop := 0; hop < fxcore.KVSMaxHops; hop++ {
		b := (base + hop) % fxcore.KVSBuckets
		for sl := 0; sl < fxcore.KVSSlots; sl++ {
			occ, _, _, _, rerr := s.readSlot(b, sl)
			if rerr != nil {
				return 0, 0, fmt.Errorf("kv: %w", rerr)
			}
			if !occ {
				return b, sl, nil
			}
		}
	}
	return 0, 0, fxcore.ErrFull
}

func (s *Store) allocArena(length uint32) (uint32, error) {
	best := -1
	for i, r := range s.freelist {
		if r.length >= length && (best == -1 || r.length < s.freelist[best].length) {
			best = i
		}
	}
	if best >= 0 {
		addr := s.freelist[best].addr
		remaining := s.freelist[best].length - length
		if remaining == 0 {
			s.freelist = append(s.freelist[:best], s.freelist[best+1:]...)
		} else {
			s.freelist[best].addr += length
			s.freelist[best].length = remaining
		}
		return addr, nil
	}
	if s.highWater+length > fxcore.FlashSize {
		return 0, fxcore.ErrFull
	}
	addr := s.highWater
	s.highWater += length
	return addr, nil
}

func (s *Store) freeArena(addr, length uint32) {
	if length == 0 {
		return
	}
	s.freelist = append(s.freelist, region{addr: addr, length: length})
}

// Insert allocates a fresh value region sized to len(value), writes it,
// then atomically switches the slot to reference the new region. Any
// prior region for key is released to the free list.
func (s *Store) Insert(key [2]byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr, err := s.allocArena(uint32(len(value)))
	if err != nil {
		return err
	}
	if len(value) > 0 {
		if err := s.backend.Write(addr, value); err != nil {
			return fmt.Errorf("kv: write value: %w", err)
		}
	}

	oldBucket, oldSlot, oldLen, oldAddr, findErr := s.findOccupied(key)
	if findErr == nil {
		if err := s.writeSlot(oldBucket, oldSlot, true, key, uint32(len(value)), addr); err != nil {
			return fmt.Errorf("kv: switch slot: %w", err)
		}
		s.freeArena(oldAddr, oldLen)
		return nil
	}
	if !errors.Is(findErr, fxcore.ErrKeyNotFound) {
		return findErr
	}

	bucket, slot, err := s.findFree(key)
	if err != nil {
		return err
	}
	if err := s.writeSlot(bucket, slot, true, key, uint32(len(value)), addr); err != nil {
		return fmt.Errorf("kv: write slot: %w", err)
	}
	return nil
}

// Alloc reserves a value region of the declared length without writing
// initial contents; the region's bytes are undefined until Patch fills
// them in.
func (s *Store) Alloc(key [2]byte, length int) error {
	return s.Insert(key, make([]byte, length))
}

// Load locates key and reads up to len(buf) bytes of its value.
func (s *Store) Load(key [2]byte, buf []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, length, addr, err := s.findOccupied(key)
	if err != nil {
		return 0, err
	}
	n := len(buf)
	if uint32(n) > length {
		n = int(length)
	}
	if n == 0 {
		return 0, nil
	}
	if err := s.backend.Read(addr, buf[:n]); err != nil {
		return 0, fmt.Errorf("kv: load: %w", err)
	}
	return n, nil
}

// Patch writes bytes into the existing value for key at offset.
func (s *Store) Patch(key [2]byte, offset int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, length, addr, err := s.findOccupied(key)
	if err != nil {
		return err
	}
	if uint32(offset+len(data)) > length {
		return fxcore.ErrInvalidLength
	}
	if err := s.backend.Write(addr+uint32(offset), data); err != nil {
		return fmt.Errorf("kv: patch: %w", err)
	}
	return nil
}

// Remove marks key's slot empty and reclaims its value region.
func (s *Store) Remove(key [2]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, slot, length, addr, err := s.findOccupied(key)
	if err != nil {
		return err
	}
	if err := s.writeSlot(bucket, slot, false, [2]byte{}, 0, 0); err != nil {
		return fmt.Errorf("kv: remove: %w", err)
	}
	s.freeArena(addr, length)
	return nil
}

// Handle is the result of Lookup: the value's flash address and length,
// used by the asset store to compute bitmap read addresses directly.
type Handle struct {
	Addr   uint32
	Length uint32
}

// Lookup returns a handle to key's value without reading it.
func (s *Store) Lookup(key [2]byte) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _, length, addr, err := s.findOccupied(key)
	if err != nil {
		return Handle{}, err
	}
	return Handle{Addr: addr, Length: length}, nil
}

// KeysWithPrefix yields every key whose first byte equals prefix, in
// bucket scan order. The sequence is finite and restartable (each call
// rescans from the beginning) and is not guaranteed stable across
// concurrent mutation.
func (s *Store) KeysWithPrefix(prefix byte) iter.Seq[[2]byte] {
	return func(yield func([2]byte) bool) {
		for b := 0; b < fxcore.KVSBuckets; b++ {
			for sl := 0; sl < fxcore.KVSSlots; sl++ {
				s.mu.Lock()
				occ, key, _, _, err := s.readSlot(b, sl)
				s.mu.Unlock()
				if err != nil {
					return
				}
				if occ && key[0] == prefix {
					if !yield(key) {
						return
					}
				}
			}
		}
	}
}

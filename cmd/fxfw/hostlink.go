package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/dotcypress/fxcore/internal/contracts"
)

// Host-link wire framing: one transaction event per 2-byte frame.
//
//	[0x00, addr]  address match
//	[0x01, b]     byte written by the master
//	[0x02, 0]     master read request; the 4 response bytes come back
//	              on the same connection
//	[0x03, 0]     stop
//	[0x04, 0]     bus error
//
// One client at a time, mirroring a single-master I²C bus.
const (
	frameAddrMatch = 0x00
	frameByte      = 0x01
	frameRead      = 0x02
	frameStop      = 0x03
	frameBusError  = 0x04
)

// socketSlave implements contracts.I2CSlave over a Unix socket. A board
// with real I²C slave silicon replaces this with a thin adapter over its
// peripheral driver; the server and dispatcher are unaffected.
type socketSlave struct {
	ln     net.Listener
	events chan contracts.I2CEvent

	mu   sync.Mutex
	conn net.Conn
}

func listenSlave(path string) (*socketSlave, error) {
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	s := &socketSlave{ln: ln, events: make(chan contracts.I2CEvent, 64)}
	go s.acceptLoop()
	return s, nil
}

func (s *socketSlave) Events() <-chan contracts.I2CEvent { return s.events }

func (s *socketSlave) PushResponseByte(b byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("hostlink: no master connected")
	}
	_, err := conn.Write([]byte{b})
	return err
}

// Rearm is a no-op: the socket transport has no address-match interrupt
// to re-enable, the next frame simply gets read.
func (s *socketSlave) Rearm() error { return nil }

func (s *socketSlave) Close() error { return s.ln.Close() }

func (s *socketSlave) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			close(s.events)
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.serve(conn)
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}
}

func (s *socketSlave) serve(conn net.Conn) {
	frame := make([]byte, 2)
	for {
		if _, err := io.ReadFull(conn, frame); err != nil {
			if err != io.EOF {
				log.Printf("hostlink: read: %v", err)
				// A torn frame is a bus fault as far as the server is
				// concerned.
				s.events <- contracts.I2CEvent{Kind: contracts.I2CBusError}
			}
			return
		}
		switch frame[0] {
		case frameAddrMatch:
			s.events <- contracts.I2CEvent{Kind: contracts.I2CAddressMatch, Addr: frame[1]}
		case frameByte:
			s.events <- contracts.I2CEvent{Kind: contracts.I2CByteReceived, Byte: frame[1]}
		case frameRead:
			s.events <- contracts.I2CEvent{Kind: contracts.I2CReadRequested}
		case frameStop:
			s.events <- contracts.I2CEvent{Kind: contracts.I2CStop}
		case frameBusError:
			s.events <- contracts.I2CEvent{Kind: contracts.I2CBusError}
		default:
			log.Printf("hostlink: unknown frame kind %#x", frame[0])
		}
	}
}

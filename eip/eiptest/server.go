// Package eiptest runs an in-process EtherNet/IP target for tests.
//
// The server answers RegisterSession, UnRegisterSession and ListIdentity on
// its own and hands the message router bytes of every SendRRData request to
// a Handler, whose return value becomes the unconnected data item of the reply.
package eiptest

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

// Handler maps one unconnected CIP request to its reply.
type Handler func(msg []byte) []byte

// Server is a loopback EtherNet/IP target.
type Server struct {
	ln      net.Listener
	handler Handler

	mu           sync.Mutex
	identity     []byte
	refuse       bool
	nextSession  uint32
	registered   int
	unregistered int
	open         int
	requests     [][]byte
	conns        map[net.Conn]struct{}
	wg           sync.WaitGroup
}

// NewServer starts a target on an ephemeral loopback port.
func NewServer(h Handler) *Server {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic("eiptest: listen: " + err.Error())
	}
	s := &Server{ln: ln, handler: h, nextSession: 0x1000, conns: make(map[net.Conn]struct{})}
	s.wg.Add(1)
	go s.acceptLoop()
	return s
}

// Addr returns host:port of the listener.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Close stops the listener, drops open connections and waits for handlers.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// SetIdentity sets the raw identity item returned for ListIdentity.
// Nil means an empty item list.
func (s *Server) SetIdentity(item []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = item
}

// SetRefuseSession makes RegisterSession fail with encapsulation status 0x64.
func (s *Server) SetRefuseSession(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// Registered returns the number of sessions registered so far.
func (s *Server) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// Unregistered returns the number of UnRegisterSession commands received.
func (s *Server) Unregistered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unregistered
}

// Open returns the number of TCP connections still open.
func (s *Server) Open() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// WaitIdle polls until no connection is open or the timeout passes.
func (s *Server) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.Open() == 0 {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Requests returns copies of the SendRRData message router requests seen.
func (s *Server) Requests() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.open++
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serve(conn)
			s.mu.Lock()
			s.open--
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	for {
		header := make([]byte, 24)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.LittleEndian.Uint16(header[2:4])
		session := binary.LittleEndian.Uint32(header[4:8])
		data := make([]byte, length)
		if _, err := io.ReadFull(conn, data); err != nil {
			return
		}

		command := binary.LittleEndian.Uint16(header[0:2])
		switch command {
		case 0x65:
			s.mu.Lock()
			refuse := s.refuse
			if !refuse {
				s.nextSession++
				s.registered++
				session = s.nextSession
			}
			s.mu.Unlock()
			if refuse {
				writeFrame(conn, command, 0, 0x64, nil)
				continue
			}
			writeFrame(conn, command, session, 0, data)

		case 0x66:
			s.mu.Lock()
			s.unregistered++
			s.mu.Unlock()
			return

		case 0x63:
			s.mu.Lock()
			identity := s.identity
			s.mu.Unlock()
			items := []byte{0x00, 0x00}
			if identity != nil {
				items = binary.LittleEndian.AppendUint16(nil, 1)
				items = binary.LittleEndian.AppendUint16(items, 0x0C)
				items = binary.LittleEndian.AppendUint16(items, uint16(len(identity)))
				items = append(items, identity...)
			}
			writeFrame(conn, command, 0, 0, items)

		case 0x6F:
			msg := unconnectedItem(data)
			s.mu.Lock()
			s.requests = append(s.requests, append([]byte(nil), msg...))
			s.mu.Unlock()

			reply := s.handler(msg)
			out := make([]byte, 6)
			out = binary.LittleEndian.AppendUint16(out, 2)
			out = binary.LittleEndian.AppendUint16(out, 0x00)
			out = binary.LittleEndian.AppendUint16(out, 0)
			out = binary.LittleEndian.AppendUint16(out, 0xB2)
			out = binary.LittleEndian.AppendUint16(out, uint16(len(reply)))
			out = append(out, reply...)
			writeFrame(conn, command, session, 0, out)

		default:
			writeFrame(conn, command, session, 0x01, nil)
		}
	}
}

// unconnectedItem extracts the 0xB2 item from SendRRData command data.
func unconnectedItem(data []byte) []byte {
	if len(data) < 8 {
		return nil
	}
	p := data[6:]
	count := int(binary.LittleEndian.Uint16(p[:2]))
	p = p[2:]
	for i := 0; i < count && len(p) >= 4; i++ {
		typeID := binary.LittleEndian.Uint16(p[:2])
		n := int(binary.LittleEndian.Uint16(p[2:4]))
		if len(p) < 4+n {
			return nil
		}
		if typeID == 0xB2 {
			return p[4 : 4+n]
		}
		p = p[4+n:]
	}
	return nil
}

func writeFrame(w io.Writer, command uint16, session, status uint32, data []byte) {
	frame := binary.LittleEndian.AppendUint16(nil, command)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = binary.LittleEndian.AppendUint32(frame, session)
	frame = binary.LittleEndian.AppendUint32(frame, status)
	frame = append(frame, make([]byte, 12)...)
	frame = append(frame, data...)
	_, _ = w.Write(frame)
}

// IdentityItem encodes an identity item for SetIdentity.
func IdentityItem(vendor, deviceType, productCode uint16, major, minor byte, serial uint32, name string) []byte {
	b := binary.LittleEndian.AppendUint16(nil, 1)
	b = append(b, 0x00, 0x02, 0xAF, 0x12, 127, 0, 0, 1)
	b = append(b, make([]byte, 8)...)
	b = binary.LittleEndian.AppendUint16(b, vendor)
	b = binary.LittleEndian.AppendUint16(b, deviceType)
	b = binary.LittleEndian.AppendUint16(b, productCode)
	b = append(b, major, minor)
	b = binary.LittleEndian.AppendUint16(b, 0x0060)
	b = binary.LittleEndian.AppendUint32(b, serial)
	b = append(b, byte(len(name)))
	b = append(b, name...)
	return append(b, 0x03)
}

// Reply builds a message router reply for service with the given status and data.
func Reply(service, status byte, ext []uint16, data []byte) []byte {
	out := []byte{service | 0x80, 0x00, status, byte(len(ext))}
	for _, e := range ext {
		out = binary.LittleEndian.AppendUint16(out, e)
	}
	return append(out, data...)
}

// Unwrap strips an Unconnected_Send envelope, returning the embedded request
// and the route path. Requests that are not wrapped come back unchanged.
func Unwrap(msg []byte) (inner []byte, route []byte) {
	// 0x52 to class 0x06 instance 1: 52 02 20 06 24 01
	if len(msg) < 10 || msg[0] != 0x52 || msg[2] != 0x20 || msg[3] != 0x06 {
		return msg, nil
	}
	body := msg[2+int(msg[1])*2:]
	if len(body) < 4 {
		return msg, nil
	}
	size := int(binary.LittleEndian.Uint16(body[2:4]))
	body = body[4:]
	if len(body) < size {
		return msg, nil
	}
	inner = body[:size]
	rest := body[size:]
	if size%2 != 0 && len(rest) > 0 {
		rest = rest[1:]
	}
	if len(rest) >= 2 {
		words := int(rest[0])
		if len(rest) >= 2+words*2 {
			route = rest[2 : 2+words*2]
		}
	}
	return inner, route
}

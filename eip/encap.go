package eip

import (
	"encoding/binary"
	"fmt"
)

// Encapsulation commands.
const (
	CmdNop               uint16 = 0x00
	CmdListIdentity      uint16 = 0x63
	CmdRegisterSession   uint16 = 0x65
	CmdUnRegisterSession uint16 = 0x66
	CmdSendRRData        uint16 = 0x6F
	CmdSendUnitData      uint16 = 0x70
)

const (
	// DefaultPort is the registered EtherNet/IP TCP port.
	DefaultPort = 44818

	headerSize = 24

	// maxPayload keeps header plus payload inside a single 16-bit length.
	maxPayload = 65511
)

// encap is one encapsulation frame: 24-byte header followed by data.
type encap struct {
	command uint16
	length  uint16
	session uint32
	status  uint32
	context [8]byte
	options uint32
	data    []byte
}

func (m *encap) Bytes() []byte {
	buf := make([]byte, 0, headerSize+len(m.data))
	buf = binary.LittleEndian.AppendUint16(buf, m.command)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.data)))
	buf = binary.LittleEndian.AppendUint32(buf, m.session)
	buf = binary.LittleEndian.AppendUint32(buf, m.status)
	buf = append(buf, m.context[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, m.options)
	return append(buf, m.data...)
}

// parseHeader decodes the fixed header. data is left for the caller to fill.
func parseHeader(h []byte) (encap, error) {
	if len(h) < headerSize {
		return encap{}, fmt.Errorf("encapsulation header too short: %d bytes", len(h))
	}
	m := encap{
		command: binary.LittleEndian.Uint16(h[0:2]),
		length:  binary.LittleEndian.Uint16(h[2:4]),
		session: binary.LittleEndian.Uint32(h[4:8]),
		status:  binary.LittleEndian.Uint32(h[8:12]),
		options: binary.LittleEndian.Uint32(h[20:24]),
	}
	copy(m.context[:], h[12:20])
	return m, nil
}

// StatusError is a non-zero encapsulation status returned by the target.
type StatusError struct {
	Command uint16
	Status  uint32
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("encapsulation command 0x%02X failed: %s (0x%04X)", e.Command, encapStatusName(e.Status), e.Status)
}

func encapStatusName(status uint32) string {
	switch status {
	case 0x0001:
		return "invalid or unsupported command"
	case 0x0002:
		return "insufficient memory"
	case 0x0003:
		return "incorrect data"
	case 0x0064:
		return "invalid session handle"
	case 0x0065:
		return "invalid length"
	case 0x0069:
		return "unsupported protocol revision"
	default:
		return "unknown status"
	}
}

// commandData is the interface handle and timeout prefix of RR and unit data.
type commandData struct {
	interfaceHandle uint32
	timeout         uint16
	packet          []byte
}

func (r *commandData) Bytes() []byte {
	raw := binary.LittleEndian.AppendUint32(nil, r.interfaceHandle)
	raw = binary.LittleEndian.AppendUint16(raw, r.timeout)
	return append(raw, r.packet...)
}

func parseCommandData(raw []byte) (*commandData, error) {
	if len(raw) < 6 {
		return nil, fmt.Errorf("command data too short: %d bytes", len(raw))
	}
	return &commandData{
		interfaceHandle: binary.LittleEndian.Uint32(raw[:4]),
		timeout:         binary.LittleEndian.Uint16(raw[4:6]),
		packet:          raw[6:],
	}, nil
}

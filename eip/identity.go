package eip

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

// Identity is the Identity object as reported by ListIdentity.
type Identity struct {
	EncapsulationVersion uint16
	VendorID             uint16
	DeviceType           uint16
	ProductCode          uint16
	RevisionMajor        byte
	RevisionMinor        byte
	Status               uint16
	SerialNumber         uint32
	ProductName          string
	State                byte

	IP   net.IP
	Port uint16
}

// ListIdentity asks the connected target to identify itself. This is the
// unicast TCP form of the request, not broadcast discovery.
func (c *Client) ListIdentity() ([]Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.send(encap{command: CmdListIdentity}); err != nil {
		return nil, fmt.Errorf("ListIdentity: %w", err)
	}
	resp, err := c.recv()
	if err != nil {
		return nil, fmt.Errorf("ListIdentity: %w", err)
	}
	if resp.status != 0 {
		return nil, &StatusError{Command: CmdListIdentity, Status: resp.status}
	}

	idents, err := parseIdentityList(resp.data)
	if err != nil {
		return nil, fmt.Errorf("ListIdentity: %w", err)
	}
	return idents, nil
}

func parseIdentityList(p []byte) ([]Identity, error) {
	packet, err := ParsePacket(p)
	if err != nil {
		return nil, err
	}

	var idents []Identity
	for _, item := range packet.Items {
		if item.TypeID != ItemIdentity {
			continue
		}
		id, err := parseIdentityItem(item.Data)
		if err != nil {
			return nil, err
		}
		idents = append(idents, id)
	}
	return idents, nil
}

// parseIdentityItem decodes encapsulation version, sockaddr (big endian),
// vendor, device type, product code, revision, status, serial, product name
// (short string) and state.
func parseIdentityItem(b []byte) (Identity, error) {
	if len(b) < 33 {
		return Identity{}, fmt.Errorf("identity item too short: %d bytes", len(b))
	}

	id := Identity{
		EncapsulationVersion: binary.LittleEndian.Uint16(b[0:2]),
		Port:                 binary.BigEndian.Uint16(b[4:6]),
		IP:                   net.IPv4(b[6], b[7], b[8], b[9]),
		VendorID:             binary.LittleEndian.Uint16(b[18:20]),
		DeviceType:           binary.LittleEndian.Uint16(b[20:22]),
		ProductCode:          binary.LittleEndian.Uint16(b[22:24]),
		RevisionMajor:        b[24],
		RevisionMinor:        b[25],
		Status:               binary.LittleEndian.Uint16(b[26:28]),
		SerialNumber:         binary.LittleEndian.Uint32(b[28:32]),
	}

	nameLen := int(b[32])
	off := 33
	if off+nameLen > len(b) {
		return Identity{}, fmt.Errorf("product name truncated: need %d bytes, have %d", nameLen, len(b)-off)
	}
	id.ProductName = string(b[off : off+nameLen])
	off += nameLen

	// Some adapters omit the trailing state byte.
	if off < len(b) {
		id.State = b[off]
	}
	return id, nil
}

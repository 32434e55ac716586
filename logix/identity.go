package logix

import (
	"fmt"
	"net"
)

// DeviceInfo is the identity a controller reports over ListIdentity.
type DeviceInfo struct {
	IP          net.IP
	VendorID    uint16
	DeviceType  uint16
	ProductCode uint16
	Revision    string // "major.minor"
	Serial      uint32
	ProductName string
	Status      uint16
}

var deviceTypeNames = map[uint16]string{
	0x00: "Generic Device",
	0x02: "AC Drive",
	0x03: "Motor Overload",
	0x07: "General Purpose Discrete I/O",
	0x0C: "Communications Adapter",
	0x0E: "Programmable Logic Controller",
	0x13: "DC Drive",
	0x18: "Human-Machine Interface",
}

// VendorRockwell is the ODVA vendor ID of Rockwell Automation/Allen-Bradley.
const VendorRockwell uint16 = 1

// VendorName names the vendor.
func (d *DeviceInfo) VendorName() string {
	if d.VendorID == VendorRockwell {
		return "Rockwell Automation/Allen-Bradley"
	}
	return fmt.Sprintf("Vendor %d", d.VendorID)
}

// DeviceTypeName names well-known device types.
func (d *DeviceInfo) DeviceTypeName() string {
	if name, ok := deviceTypeNames[d.DeviceType]; ok {
		return name
	}
	return fmt.Sprintf("Device Type 0x%02X", d.DeviceType)
}

// SerialHex formats the serial number the way RSLinx shows it.
func (d *DeviceInfo) SerialHex() string {
	return fmt.Sprintf("%08X", d.Serial)
}

// Identity asks the connected controller for its identity.
func (c *Client) Identity() (*DeviceInfo, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("Identity: not connected")
	}
	idents, err := c.conn.ListIdentity()
	if err != nil {
		return nil, fmt.Errorf("Identity: %w", err)
	}
	if len(idents) == 0 {
		return nil, fmt.Errorf("Identity: target returned no identity")
	}

	id := idents[0]
	return &DeviceInfo{
		IP:          id.IP,
		VendorID:    id.VendorID,
		DeviceType:  id.DeviceType,
		ProductCode: id.ProductCode,
		Revision:    fmt.Sprintf("%d.%d", id.RevisionMajor, id.RevisionMinor),
		Serial:      id.SerialNumber,
		ProductName: id.ProductName,
		Status:      id.Status,
	}, nil
}

package eip

import (
	"encoding/binary"
	"fmt"
)

// Common Packet Format item type IDs.
const (
	ItemNullAddress      uint16 = 0x0000
	ItemIdentity         uint16 = 0x000C
	ItemConnectedAddress uint16 = 0x00A1
	ItemConnectedData    uint16 = 0x00B1
	ItemUnconnectedData  uint16 = 0x00B2
)

// Item is one CPF address or data item.
type Item struct {
	TypeID uint16
	Data   []byte
}

// Packet is an ordered list of CPF items.
type Packet struct {
	Items []Item
}

// UnconnectedPacket wraps a message router request in a null address item
// and an unconnected data item.
func UnconnectedPacket(msg []byte) Packet {
	return Packet{Items: []Item{
		{TypeID: ItemNullAddress},
		{TypeID: ItemUnconnectedData, Data: msg},
	}}
}

// Find returns the first item of the given type.
func (p *Packet) Find(typeID uint16) (Item, bool) {
	for _, item := range p.Items {
		if item.TypeID == typeID {
			return item, true
		}
	}
	return Item{}, false
}

func (p *Packet) Bytes() []byte {
	raw := binary.LittleEndian.AppendUint16(nil, uint16(len(p.Items)))
	for _, item := range p.Items {
		raw = binary.LittleEndian.AppendUint16(raw, item.TypeID)
		raw = binary.LittleEndian.AppendUint16(raw, uint16(len(item.Data)))
		raw = append(raw, item.Data...)
	}
	return raw
}

// ParsePacket decodes a CPF item list.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("cpf too short: %d bytes", len(raw))
	}
	count := int(binary.LittleEndian.Uint16(raw[:2]))
	raw = raw[2:]

	p := &Packet{Items: make([]Item, 0, count)}
	for i := 0; i < count; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("cpf item %d: truncated header (%d bytes)", i, len(raw))
		}
		typeID := binary.LittleEndian.Uint16(raw[:2])
		length := int(binary.LittleEndian.Uint16(raw[2:4]))
		if len(raw) < 4+length {
			return nil, fmt.Errorf("cpf item %d: need %d bytes, have %d", i, 4+length, len(raw))
		}
		p.Items = append(p.Items, Item{TypeID: typeID, Data: raw[4 : 4+length]})
		raw = raw[4+length:]
	}
	return p, nil
}

package logix

// Logix-specific services (Rockwell extensions to CIP).
const (
	SvcReadTag                  byte = 0x4C
	SvcWriteTag                 byte = 0x4D
	SvcGetInstanceAttributeList byte = 0x55
)

// SvcUnconnectedSend is the Connection Manager service used to route an
// unconnected request through a backplane.
const SvcUnconnectedSend byte = 0x52

// CIP object classes addressed by this package.
const (
	classConnectionManager uint16 = 0x06
	classSymbol            uint16 = 0x6B
)

// Symbol object attributes requested while browsing.
const (
	attrSymbolName       uint16 = 0x01
	attrSymbolType       uint16 = 0x02
	attrSymbolDimensions uint16 = 0x08
)

// Unconnected_Send timing: 0x0A selects a 1024 ms tick, 0x05 ticks gives ~5 s.
const (
	ucmmPriorityTick byte = 0x0A
	ucmmTimeoutTicks byte = 0x05
)

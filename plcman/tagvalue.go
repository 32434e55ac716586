package plcman

import (
	"strconv"
	"time"

	"signaltap/driver"
)

// Tag type names reported in Tag.TagType besides the atomic names.
const (
	TagTypeArray   = "ARRAY"
	TagTypeStruct  = "STRUCT"
	TagTypeUnknown = "UNKNOWN"
)

// Unreadable replaces values that have no scalar JSON form in read results.
const Unreadable = "Unreadable"

// Read result statuses.
const (
	StatusSuccess = "Success"
	StatusError   = "Error"
)

var knownTypes = map[string]bool{
	"BOOL": true, "SINT": true, "INT": true, "DINT": true, "LINT": true,
	"USINT": true, "UINT": true, "UDINT": true, "ULINT": true,
	"REAL": true, "LREAL": true, "STRING": true,
}

// ConnectionConfig addresses one PLC for one request.
type ConnectionConfig struct {
	IP       string
	Slot     int
	Timeout  time.Duration
	Micro800 bool
}

// Key identifies the PLC for session limiting.
func (c ConnectionConfig) Key() string {
	return c.IP + ":" + strconv.Itoa(c.Slot)
}

// Tag is a discovered PLC tag. A scan does not read values, so Value
// encodes as null.
type Tag struct {
	Name            string   `json:"name"`
	TagType         string   `json:"tag_type"`
	Description     string   `json:"description,omitempty"`
	Value           any      `json:"value"`
	Address         string   `json:"address,omitempty"`
	ArrayDimensions []uint32 `json:"array_dimensions,omitempty"`
	IsArray         bool     `json:"is_array"`
	IsStruct        bool     `json:"is_struct"`
}

// SimpleTag is a tag name with the driver's own type name.
type SimpleTag struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TagReadResult is one entry of a live read.
type TagReadResult struct {
	Name      string    `json:"name"`
	Value     any       `json:"value"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// PLCInfo describes the controller. Fields the driver did not report read
// "Unknown".
type PLCInfo struct {
	IPAddress    string `json:"ip_address"`
	Slot         int    `json:"slot"`
	DeviceName   string `json:"device_name"`
	ProductName  string `json:"product_name"`
	Vendor       string `json:"vendor"`
	DeviceType   string `json:"device_type"`
	Revision     string `json:"revision"`
	SerialNumber string `json:"serial_number"`
	Error        string `json:"error,omitempty"`
}

// TagType maps a driver tag to the reported tag type. Structures win over
// arrays, anything unmapped is UNKNOWN.
func TagType(t driver.TagInfo) string {
	switch {
	case t.IsStruct:
		return TagTypeStruct
	case t.IsArray:
		return TagTypeArray
	case knownTypes[t.DataType]:
		return t.DataType
	}
	return TagTypeUnknown
}

// FromDriverTag converts a driver tag.
func FromDriverTag(t driver.TagInfo) Tag {
	tag := Tag{
		Name:        t.Name,
		TagType:     TagType(t),
		Description: t.Description,
		Address:     t.Address,
		IsArray:     t.IsArray,
		IsStruct:    t.IsStruct,
	}
	if len(t.Dimensions) > 0 {
		tag.ArrayDimensions = append([]uint32(nil), t.Dimensions...)
	}
	return tag
}

// IsPrimitive reports whether v has a scalar JSON form.
func IsPrimitive(v any) bool {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// ResultValue returns v, or Unreadable when v is not a scalar.
func ResultValue(v any) any {
	if v == nil || IsPrimitive(v) {
		return v
	}
	return Unreadable
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

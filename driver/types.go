package driver

// TagInfo is a tag as reported by the driver's symbol browse.
type TagInfo struct {
	Name        string
	DataType    string   // element type name: DINT, REAL, STRING, STRUCT, ...
	TypeName    string   // display form: DINT[], STRUCT(0x0F3A), ...
	TypeCode    uint16   // native type code
	Dimensions  []uint32 // non-zero array dimensions, empty for scalars
	IsArray     bool
	IsStruct    bool
	Description string
	Address     string
}

// TagValue is the result of reading one tag. Value is a bool, int64,
// uint64, float64 or string for atomic types and []int (raw bytes) for
// anything the driver does not decode.
type TagValue struct {
	Name     string
	DataType string
	Value    any
}

// DeviceInfo is what the PLC reports about itself. Empty fields were not
// reported.
type DeviceInfo struct {
	DeviceName   string
	ProductName  string
	Vendor       string
	DeviceType   string
	ProductCode  uint16
	Revision     string
	SerialNumber string
}

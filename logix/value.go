package logix

import (
	"encoding/binary"
	"fmt"
	"math"
)

// TagValue is the raw result of a Read Tag request.
type TagValue struct {
	Name     string
	DataType uint16 // atomic type code, or TypeStructHeader for structures
	Handle   uint16 // structure handle when DataType is TypeStructHeader
	Bytes    []byte // little-endian value bytes
}

// IsStructure reports whether the reply carried structure data.
func (v *TagValue) IsStructure() bool {
	return v.DataType == TypeStructHeader
}

// IsString reports whether the value is one of the string forms.
func (v *TagValue) IsString() bool {
	if v.IsStructure() {
		return v.Handle == StringHandle
	}
	return v.DataType == TypeSTRING || v.DataType == TypeShortSTRING
}

// TypeName names the value's type.
func (v *TagValue) TypeName() string {
	switch {
	case v.IsStructure() && v.Handle == StringHandle:
		return "STRING"
	case v.IsStructure():
		return fmt.Sprintf("STRUCT(0x%04X)", v.Handle)
	}
	return TypeName(v.DataType)
}

// Text decodes a string value.
func (v *TagValue) Text() (string, error) {
	switch {
	case v.DataType == TypeShortSTRING:
		if len(v.Bytes) < 1 {
			return "", fmt.Errorf("%s: short string without length", v.Name)
		}
		n := min(int(v.Bytes[0]), len(v.Bytes)-1)
		return string(v.Bytes[1 : 1+n]), nil
	case v.IsString():
		if len(v.Bytes) < 4 {
			return "", fmt.Errorf("%s: string without length", v.Name)
		}
		n := min(int(binary.LittleEndian.Uint32(v.Bytes)), len(v.Bytes)-4)
		return string(v.Bytes[4 : 4+n]), nil
	}
	return "", fmt.Errorf("%s: %s is not a string", v.Name, v.TypeName())
}

// GoValue converts the value to a Go value:
//   - BOOL: bool
//   - SINT, INT, DINT, LINT: int64
//   - USINT, UINT, UDINT, ULINT: uint64
//   - REAL, LREAL: float64
//   - STRING: string
//   - anything else, or a reply holding more than one element: the raw bytes
func (v *TagValue) GoValue() any {
	if v.IsString() {
		if s, err := v.Text(); err == nil {
			return s
		}
		return v.Bytes
	}

	size := TypeSize(v.DataType)
	if v.IsStructure() || size == 0 || len(v.Bytes) != size {
		return v.Bytes
	}

	b := v.Bytes
	switch v.DataType {
	case TypeBOOL:
		return b[0] != 0
	case TypeSINT:
		return int64(int8(b[0]))
	case TypeINT:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case TypeDINT:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case TypeLINT:
		return int64(binary.LittleEndian.Uint64(b))
	case TypeUSINT:
		return uint64(b[0])
	case TypeUINT:
		return uint64(binary.LittleEndian.Uint16(b))
	case TypeUDINT:
		return uint64(binary.LittleEndian.Uint32(b))
	case TypeULINT:
		return binary.LittleEndian.Uint64(b)
	case TypeREAL:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case TypeLREAL:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return v.Bytes
}

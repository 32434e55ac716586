package logix

import (
	"fmt"
	"strings"
)

// Logix atomic data type codes as carried in Read Tag replies and symbol types.
const (
	TypeBOOL  uint16 = 0x00C1
	TypeSINT  uint16 = 0x00C2
	TypeINT   uint16 = 0x00C3
	TypeDINT  uint16 = 0x00C4
	TypeLINT  uint16 = 0x00C5
	TypeUSINT uint16 = 0x00C6
	TypeUINT  uint16 = 0x00C7
	TypeUDINT uint16 = 0x00C8
	TypeULINT uint16 = 0x00C9
	TypeREAL  uint16 = 0x00CA
	TypeLREAL uint16 = 0x00CB

	// TypeSTRING is the atomic string form some firmware (Micro800) reports:
	// a 4-byte length followed by characters. ControlLogix strings are the
	// built-in STRING structure, see TypeStructHeader.
	TypeSTRING uint16 = 0x00D0

	TypeShortSTRING uint16 = 0x00DA
)

// Symbol type flags.
const (
	TypeStructureMask uint16 = 0x8000
	TypeSystemMask    uint16 = 0x1000
	TypeArrayMask     uint16 = 0x6000

	typeArray1D uint16 = 0x2000
	typeArray2D uint16 = 0x4000
	typeArray3D uint16 = 0x6000
)

const (
	// TypeStructHeader prefixes structure data in Read Tag replies; a 16-bit
	// structure handle follows it.
	TypeStructHeader uint16 = 0x02A0

	// StringHandle is the structure handle of the built-in STRING type.
	StringHandle uint16 = 0x0FCE

	// stringSymbolType is how the symbol table reports a built-in STRING tag.
	stringSymbolType uint16 = TypeStructureMask | StringHandle

	// StringCapacity is the DATA size of the built-in STRING type.
	StringCapacity = 82
)

var typeNames = map[uint16]string{
	TypeBOOL:        "BOOL",
	TypeSINT:        "SINT",
	TypeINT:         "INT",
	TypeDINT:        "DINT",
	TypeLINT:        "LINT",
	TypeUSINT:       "USINT",
	TypeUINT:        "UINT",
	TypeUDINT:       "UDINT",
	TypeULINT:       "ULINT",
	TypeREAL:        "REAL",
	TypeLREAL:       "LREAL",
	TypeSTRING:      "STRING",
	TypeShortSTRING: "SHORT_STRING",
}

// TypeSize returns the element size of atomic types, 0 otherwise.
func TypeSize(dataType uint16) int {
	switch BaseType(dataType) {
	case TypeBOOL, TypeSINT, TypeUSINT:
		return 1
	case TypeINT, TypeUINT:
		return 2
	case TypeDINT, TypeUDINT, TypeREAL:
		return 4
	case TypeLINT, TypeULINT, TypeLREAL:
		return 8
	default:
		return 0
	}
}

// BaseType strips array and system flags. Structure codes keep their
// structure bit so they never collide with atomic codes.
func BaseType(dataType uint16) uint16 {
	if IsStructure(dataType) {
		return dataType &^ (TypeArrayMask | TypeSystemMask)
	}
	return dataType & 0x0FFF
}

// IsStructure reports whether the type is a structure or UDT.
func IsStructure(dataType uint16) bool {
	return dataType&TypeStructureMask != 0
}

// IsString reports whether the type is one of the string forms.
func IsString(dataType uint16) bool {
	switch BaseType(dataType) {
	case TypeSTRING, TypeShortSTRING, stringSymbolType:
		return true
	}
	return false
}

// IsArray reports whether the symbol type carries array dimensions.
func IsArray(dataType uint16) bool {
	return dataType&TypeArrayMask != 0
}

// ArrayRank returns the number of dimensions (0 to 3) encoded in a symbol type.
func ArrayRank(dataType uint16) int {
	switch dataType & TypeArrayMask {
	case typeArray1D:
		return 1
	case typeArray2D:
		return 2
	case typeArray3D:
		return 3
	default:
		return 0
	}
}

// TemplateID returns the template instance of a structure type, 0 otherwise.
func TemplateID(dataType uint16) uint16 {
	if !IsStructure(dataType) {
		return 0
	}
	return dataType & 0x0FFF
}

// ElementTypeName names the element type without array decoration.
// Structures other than STRING are reported as STRUCT.
func ElementTypeName(dataType uint16) string {
	base := BaseType(dataType)
	if base == stringSymbolType {
		return "STRING"
	}
	if IsStructure(base) {
		return "STRUCT"
	}
	if name, ok := typeNames[base]; ok {
		return name
	}
	return "UNKNOWN"
}

// TypeName returns a display name such as DINT, REAL[] or STRUCT(0x0F3A).
func TypeName(dataType uint16) string {
	name := ElementTypeName(dataType)
	if name == "STRUCT" {
		name = fmt.Sprintf("STRUCT(0x%04X)", TemplateID(dataType))
	}
	if IsArray(dataType) {
		name += "[]"
	}
	return name
}

// TypeCodeFromName maps an atomic type name back to its code.
func TypeCodeFromName(name string) (uint16, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for code, n := range typeNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}

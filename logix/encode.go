package logix

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EncodeValue converts a Go value to the wire bytes of dataType. Accepted
// inputs are bool, the Go integer and float kinds, json.Number and string;
// strings are parsed when the target type is numeric or BOOL. Out of range
// numbers are rejected rather than truncated.
func EncodeValue(dataType uint16, value any) ([]byte, error) {
	switch dataType {
	case TypeBOOL:
		b, err := toBool(value)
		if err != nil {
			return nil, err
		}
		if b {
			return []byte{0x01}, nil
		}
		return []byte{0x00}, nil

	case TypeSINT, TypeINT, TypeDINT, TypeLINT:
		n, err := toInt(value)
		if err != nil {
			return nil, err
		}
		bits := TypeSize(dataType) * 8
		if bits < 64 && (n < -(1<<(bits-1)) || n > 1<<(bits-1)-1) {
			return nil, fmt.Errorf("%d out of range for %s", n, TypeName(dataType))
		}
		return putUint(dataType, uint64(n)), nil

	case TypeUSINT, TypeUINT, TypeUDINT, TypeULINT:
		n, err := toUint(value)
		if err != nil {
			return nil, err
		}
		bits := TypeSize(dataType) * 8
		if bits < 64 && n > 1<<bits-1 {
			return nil, fmt.Errorf("%d out of range for %s", n, TypeName(dataType))
		}
		return putUint(dataType, n), nil

	case TypeREAL:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		if !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("%g out of range for REAL", f)
		}
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(f))), nil

	case TypeLREAL:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.AppendUint64(nil, math.Float64bits(f)), nil

	case TypeSTRING:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("STRING needs a string, got %T", value)
		}
		out := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
		return append(out, s...), nil
	}
	return nil, fmt.Errorf("writing %s is not supported", TypeName(dataType))
}

// EncodeString builds the data of the built-in STRING structure: LEN, 82
// characters of DATA and two pad bytes.
func EncodeString(s string) ([]byte, error) {
	if len(s) > StringCapacity {
		return nil, fmt.Errorf("string of %d bytes exceeds STRING capacity of %d", len(s), StringCapacity)
	}
	out := binary.LittleEndian.AppendUint32(nil, uint32(len(s)))
	out = append(out, s...)
	return append(out, make([]byte, StringCapacity-len(s)+2)...), nil
}

func putUint(dataType uint16, n uint64) []byte {
	switch TypeSize(dataType) {
	case 1:
		return []byte{byte(n)}
	case 2:
		return binary.LittleEndian.AppendUint16(nil, uint16(n))
	case 4:
		return binary.LittleEndian.AppendUint32(nil, uint32(n))
	default:
		return binary.LittleEndian.AppendUint64(nil, n)
	}
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%q is not a boolean", v)
		}
		return b, nil
	}
	n, err := toFloat(value)
	if err != nil {
		return false, fmt.Errorf("BOOL needs a boolean, got %T", value)
	}
	if n != 0 && n != 1 {
		return false, fmt.Errorf("%g is not a boolean", n)
	}
	return n == 1, nil
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows a signed integer", v)
		}
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	}
	return 0, fmt.Errorf("integer needs a number, got %T", value)
}

func toUint(value any) (uint64, error) {
	if s, ok := value.(string); ok {
		value = json.Number(strings.TrimSpace(s))
	}
	if num, ok := value.(json.Number); ok {
		if n, err := strconv.ParseUint(string(num), 10, 64); err == nil {
			return n, nil
		}
	}
	if u, ok := value.(uint64); ok {
		return u, nil
	}
	n, err := toInt(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%d is negative", n)
	}
	return uint64(n), nil
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	case bool:
		return 0, fmt.Errorf("float needs a number, got bool")
	}
	n, err := toInt(value)
	if err != nil {
		return 0, err
	}
	return float64(n), nil
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return floatToInt(f)
}

func floatToInt(f float64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%g is not an integer", f)
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%g overflows a signed integer", f)
	}
	return int64(f), nil
}

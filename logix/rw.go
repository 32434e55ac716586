package logix

import (
	"encoding/binary"
	"fmt"

	"signaltap/cip"
	"signaltap/logging"
)

// ReadTag reads one element of a tag by symbolic name.
func (c *Client) ReadTag(name string) (*TagValue, error) {
	path, err := cip.NewPath().Symbol(name).Build()
	if err != nil {
		return nil, fmt.Errorf("ReadTag %s: %w", name, err)
	}

	resp, err := c.send(cip.Request{Service: SvcReadTag, Path: path, Data: []byte{0x01, 0x00}})
	if err != nil {
		return nil, fmt.Errorf("ReadTag %s: %w", name, err)
	}
	if err := resp.Check(SvcReadTag); err != nil {
		return nil, fmt.Errorf("ReadTag %s: %w", name, err)
	}

	v, err := parseReadData(name, resp.Data)
	if err != nil {
		return nil, fmt.Errorf("ReadTag %s: %w", name, err)
	}
	logging.DebugLog("logix", "ReadTag %s: %s, %d bytes", name, v.TypeName(), len(v.Bytes))
	return v, nil
}

func parseReadData(name string, data []byte) (*TagValue, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("reply has no data type")
	}
	v := &TagValue{Name: name, DataType: binary.LittleEndian.Uint16(data)}
	data = data[2:]
	if v.DataType == TypeStructHeader {
		if len(data) < 2 {
			return nil, fmt.Errorf("structure reply has no handle")
		}
		v.Handle = binary.LittleEndian.Uint16(data)
		data = data[2:]
	}
	v.Bytes = data
	return v, nil
}

// WriteTag writes raw data of the given atomic type to a tag.
func (c *Client) WriteTag(name string, dataType uint16, data []byte) error {
	return c.writeTag(name, binary.LittleEndian.AppendUint16(nil, dataType), data)
}

// WriteStruct writes raw structure data identified by its handle.
func (c *Client) WriteStruct(name string, handle uint16, data []byte) error {
	header := binary.LittleEndian.AppendUint16(nil, TypeStructHeader)
	header = binary.LittleEndian.AppendUint16(header, handle)
	return c.writeTag(name, header, data)
}

func (c *Client) writeTag(name string, typeHeader, data []byte) error {
	path, err := cip.NewPath().Symbol(name).Build()
	if err != nil {
		return fmt.Errorf("WriteTag %s: %w", name, err)
	}

	body := append(typeHeader, 0x01, 0x00)
	body = append(body, data...)

	resp, err := c.send(cip.Request{Service: SvcWriteTag, Path: path, Data: body})
	if err != nil {
		return fmt.Errorf("WriteTag %s: %w", name, err)
	}
	if err := resp.Err(SvcWriteTag); err != nil {
		return fmt.Errorf("WriteTag %s: %w", name, err)
	}
	if resp.Service != SvcWriteTag|cip.ReplyFlag {
		return fmt.Errorf("WriteTag %s: unexpected reply service 0x%02X", name, resp.Service)
	}
	logging.DebugLog("logix", "WriteTag %s: % X", name, data)
	return nil
}

// Write reads the tag to learn its type, then writes value converted to it.
// Atomic types and strings are supported; other structures are refused.
func (c *Client) Write(name string, value any) error {
	current, err := c.ReadTag(name)
	if err != nil {
		return fmt.Errorf("Write %s: %w", name, err)
	}

	if current.IsStructure() {
		if current.Handle != StringHandle {
			return fmt.Errorf("Write %s: %w", name, &UnsupportedTypeError{Type: current.TypeName()})
		}
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("Write %s: %w", name, &ValueError{Type: "STRING", Err: fmt.Errorf("need a string, got %T", value)})
		}
		data, err := EncodeString(s)
		if err != nil {
			return fmt.Errorf("Write %s: %w", name, &ValueError{Type: "STRING", Err: err})
		}
		return c.WriteStruct(name, current.Handle, data)
	}

	data, err := EncodeValue(current.DataType, value)
	if err != nil {
		return fmt.Errorf("Write %s: %w", name, &ValueError{Type: current.TypeName(), Err: err})
	}
	return c.WriteTag(name, current.DataType, data)
}

// ValueError reports a value that cannot be converted to the tag's type.
type ValueError struct {
	Type string
	Err  error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("value for %s: %v", e.Type, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }

// UnsupportedTypeError reports a tag type Write cannot encode.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("writing %s is not supported", e.Type)
}

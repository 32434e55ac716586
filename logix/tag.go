package logix

import (
	"encoding/binary"
	"fmt"
	"strings"

	"signaltap/cip"
)

// TagInfo is one entry of the controller's symbol table.
type TagInfo struct {
	Name       string // "Speed" or "Program:MainProgram.Speed"
	TypeCode   uint16 // symbol type, including array and structure flags
	Instance   uint32 // symbol object instance
	Dimensions []int  // non-zero array dimensions, nil for scalars
}

// IsProgram reports a program entry such as "Program:MainProgram".
func (t TagInfo) IsProgram() bool {
	return strings.HasPrefix(t.Name, "Program:") && !strings.Contains(t.Name, ".")
}

// IsSystem reports internal entries (Map:, Cxn:, Task:, Routine:) and
// symbols flagged as system types.
func (t TagInfo) IsSystem() bool {
	if t.TypeCode&TypeSystemMask != 0 {
		return true
	}
	for _, prefix := range []string{"Map:", "Cxn:", "Task:", "__"} {
		if strings.HasPrefix(t.Name, prefix) {
			return true
		}
	}
	return strings.Contains(t.Name, "Routine:")
}

// IsReadable reports whether the entry is a data tag.
func (t TagInfo) IsReadable() bool {
	return !t.IsProgram() && !t.IsSystem()
}

// TypeName returns the display name of the tag's type.
func (t TagInfo) TypeName() string {
	return TypeName(t.TypeCode)
}

// ListTags returns the controller-scope symbol table, program entries included.
func (c *Client) ListTags() ([]TagInfo, error) {
	return c.listSymbols("")
}

// ListProgramTags returns the tags of one program. The program may be given
// as "MainProgram" or "Program:MainProgram"; returned names carry the prefix.
func (c *Client) ListProgramTags(program string) ([]TagInfo, error) {
	if !strings.HasPrefix(program, "Program:") {
		program = "Program:" + program
	}
	tags, err := c.listSymbols(program)
	if err != nil {
		return nil, err
	}
	for i := range tags {
		tags[i].Name = program + "." + tags[i].Name
	}
	return tags, nil
}

// ListAllTags returns every readable data tag: controller scope first, then
// each program's tags. Micro800 controllers only expose controller scope.
func (c *Client) ListAllTags() ([]TagInfo, error) {
	base, err := c.ListTags()
	if err != nil {
		return nil, fmt.Errorf("ListAllTags: %w", err)
	}

	var out, programs []TagInfo
	for _, t := range base {
		switch {
		case t.IsProgram():
			programs = append(programs, t)
		case t.IsReadable():
			out = append(out, t)
		}
	}
	if c.micro800 {
		return out, nil
	}

	for _, prog := range programs {
		tags, err := c.ListProgramTags(prog.Name)
		if err != nil {
			// A program that refuses browsing does not spoil the rest.
			continue
		}
		for _, t := range tags {
			if t.IsReadable() {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// listSymbols pages through Get Instance Attribute List on the Symbol object.
func (c *Client) listSymbols(scope string) ([]TagInfo, error) {
	var all []TagInfo
	instance := uint32(0)

	for page := 0; page < 10000; page++ {
		b := cip.NewPath()
		if scope != "" {
			b.Symbol(scope)
		}
		path, err := b.Class(classSymbol).Instance(instance).Build()
		if err != nil {
			return nil, fmt.Errorf("symbol path: %w", err)
		}

		data := binary.LittleEndian.AppendUint16(nil, 3)
		data = binary.LittleEndian.AppendUint16(data, attrSymbolName)
		data = binary.LittleEndian.AppendUint16(data, attrSymbolType)
		data = binary.LittleEndian.AppendUint16(data, attrSymbolDimensions)

		resp, err := c.send(cip.Request{Service: SvcGetInstanceAttributeList, Path: path, Data: data})
		if err != nil {
			return nil, err
		}
		if err := resp.Check(SvcGetInstanceAttributeList); err != nil {
			return nil, err
		}

		tags, last, err := parseSymbolList(resp.Data)
		if err != nil {
			return nil, err
		}
		all = append(all, tags...)

		if !resp.Partial() || len(tags) == 0 {
			return all, nil
		}
		instance = last + 1
	}
	return nil, fmt.Errorf("symbol browse did not finish")
}

// parseSymbolList decodes entries of instance (UDINT), name (UINT length +
// characters), type (UINT) and three UDINT dimensions.
func parseSymbolList(data []byte) ([]TagInfo, uint32, error) {
	var tags []TagInfo
	var last uint32

	for len(data) > 0 {
		if len(data) < 6 {
			return nil, 0, fmt.Errorf("symbol entry truncated: %d bytes left", len(data))
		}
		instance := binary.LittleEndian.Uint32(data[0:4])
		nameLen := int(binary.LittleEndian.Uint16(data[4:6]))
		data = data[6:]
		if len(data) < nameLen+2+12 {
			return nil, 0, fmt.Errorf("symbol %d truncated", instance)
		}
		name := string(data[:nameLen])
		data = data[nameLen:]
		typeCode := binary.LittleEndian.Uint16(data[0:2])

		var dims []int
		for i := 0; i < 3; i++ {
			if d := binary.LittleEndian.Uint32(data[2+i*4:]); d > 0 {
				dims = append(dims, int(d))
			}
		}
		data = data[14:]

		last = instance
		if name == "" {
			continue
		}
		if !IsArray(typeCode) {
			dims = nil
		}
		tags = append(tags, TagInfo{Name: name, TypeCode: typeCode, Instance: instance, Dimensions: dims})
	}
	return tags, last, nil
}

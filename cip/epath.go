package cip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EPath is an encoded CIP path. Builders always emit whole 16-bit words.
type EPath []byte

// WordLen returns the path size in 16-bit words as carried in request headers.
func (p EPath) WordLen() byte {
	return byte(len(p) / 2)
}

// Segment type bytes for padded logical segments.
const (
	segClass     byte = 0x20
	segInstance  byte = 0x24
	segMember    byte = 0x28
	segAttribute byte = 0x30
	segSymbolic  byte = 0x91
)

// PathBuilder assembles an EPath segment by segment.
// The first error sticks and is returned from Build.
type PathBuilder struct {
	path EPath
	err  error
}

// NewPath starts an empty path.
func NewPath() *PathBuilder {
	return &PathBuilder{}
}

// Class appends a logical class segment.
func (b *PathBuilder) Class(id uint16) *PathBuilder {
	return b.logical(segClass, uint32(id))
}

// Instance appends a logical instance segment.
func (b *PathBuilder) Instance(id uint32) *PathBuilder {
	return b.logical(segInstance, id)
}

// Attribute appends a logical attribute segment.
func (b *PathBuilder) Attribute(id uint16) *PathBuilder {
	return b.logical(segAttribute, uint32(id))
}

// Element appends a member (array index) segment.
func (b *PathBuilder) Element(index uint32) *PathBuilder {
	return b.logical(segMember, index)
}

// logical encodes 8, 16 or 32-bit logical segments. Wider formats carry a
// pad byte so the value stays word aligned.
func (b *PathBuilder) logical(kind byte, id uint32) *PathBuilder {
	if b.err != nil {
		return b
	}
	switch {
	case id <= 0xFF:
		b.path = append(b.path, kind, byte(id))
	case id <= 0xFFFF:
		b.path = append(b.path, kind|0x01, 0x00)
		b.path = binary.LittleEndian.AppendUint16(b.path, uint16(id))
	default:
		if kind != segInstance && kind != segMember {
			b.err = fmt.Errorf("logical segment 0x%02X: value %d exceeds 16 bits", kind, id)
			return b
		}
		b.path = append(b.path, kind|0x02, 0x00)
		b.path = binary.LittleEndian.AppendUint32(b.path, id)
	}
	return b
}

// Symbol appends the segments for a Logix tag path such as
// "Program:Main.Motor[3].Speed". Dots separate symbolic segments, brackets
// hold one or more comma separated element indexes.
func (b *PathBuilder) Symbol(tag string) *PathBuilder {
	if b.err != nil {
		return b
	}
	parts, err := ParseTagPath(tag)
	if err != nil {
		b.err = err
		return b
	}
	for _, part := range parts {
		if part.Name != "" {
			b.symbolic(part.Name)
		}
		for _, idx := range part.Indexes {
			b.Element(idx)
		}
	}
	return b
}

func (b *PathBuilder) symbolic(name string) {
	if len(name) > 255 {
		b.err = fmt.Errorf("%w: symbol %q longer than 255 bytes", ErrTagSyntax, name)
		return
	}
	b.path = append(b.path, segSymbolic, byte(len(name)))
	b.path = append(b.path, name...)
	if len(name)%2 != 0 {
		b.path = append(b.path, 0x00)
	}
}

// Build returns a copy of the encoded path.
func (b *PathBuilder) Build() (EPath, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := append(EPath{}, b.path...)
	if len(out)%2 != 0 {
		out = append(out, 0x00)
	}
	return out, nil
}

// ErrTagSyntax is wrapped by every tag name parse failure.
var ErrTagSyntax = errors.New("invalid tag name")

// TagPart is one dotted component of a tag path.
type TagPart struct {
	Name    string
	Indexes []uint32
}

// ParseTagPath splits a tag path into its components.
func ParseTagPath(tag string) ([]TagPart, error) {
	if strings.TrimSpace(tag) == "" {
		return nil, fmt.Errorf("%w: empty", ErrTagSyntax)
	}

	var parts []TagPart
	for _, seg := range strings.Split(tag, ".") {
		if seg == "" {
			return nil, fmt.Errorf("%w %q: empty path component", ErrTagSyntax, tag)
		}

		name := seg
		var indexes []uint32
		if open := strings.IndexByte(seg, '['); open >= 0 {
			if !strings.HasSuffix(seg, "]") {
				return nil, fmt.Errorf("%w %q: unterminated index in %q", ErrTagSyntax, tag, seg)
			}
			name = seg[:open]
			for _, field := range strings.Split(seg[open+1:len(seg)-1], ",") {
				idx, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
				if err != nil {
					return nil, fmt.Errorf("%w %q: bad index %q", ErrTagSyntax, tag, field)
				}
				indexes = append(indexes, uint32(idx))
			}
		}
		if name == "" && len(parts) == 0 {
			return nil, fmt.Errorf("%w %q: index without a name", ErrTagSyntax, tag)
		}
		parts = append(parts, TagPart{Name: name, Indexes: indexes})
	}
	return parts, nil
}

package logix

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"sync"

	"signaltap/eip/eiptest"
)

type fakeTag struct {
	dataType uint16
	handle   uint16
	data     []byte
}

type fakeSymbol struct {
	instance uint32
	name     string
	typeCode uint16
	dims     [3]uint32
}

// fakePLC answers Read Tag, Write Tag and symbol browsing like a Logix controller.
type fakePLC struct {
	mu       sync.Mutex
	tags     map[string]fakeTag
	symbols  map[string][]fakeSymbol // scope ("" for controller) -> symbols
	pageSize int
	routes   [][]byte
	wrapped  int
	writes   map[string][]byte
}

func newFakePLC() *fakePLC {
	return &fakePLC{
		tags:     make(map[string]fakeTag),
		symbols:  make(map[string][]fakeSymbol),
		pageSize: 2,
		writes:   make(map[string][]byte),
	}
}

func (f *fakePLC) addDINT(name string, v int32) {
	f.tags[name] = fakeTag{dataType: TypeDINT, data: binary.LittleEndian.AppendUint32(nil, uint32(v))}
}

func (f *fakePLC) addREAL(name string, v float32) {
	f.tags[name] = fakeTag{dataType: TypeREAL, data: binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))}
}

func (f *fakePLC) addString(name, s string) {
	data, _ := EncodeString(s)
	f.tags[name] = fakeTag{dataType: TypeStructHeader, handle: StringHandle, data: data}
}

func (f *fakePLC) handle(msg []byte) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	inner, route := eiptest.Unwrap(msg)
	if len(inner) != len(msg) {
		f.wrapped++
	}
	f.routes = append(f.routes, route)

	service := inner[0]
	pathLen := int(inner[1]) * 2
	p := decodePath(inner[2 : 2+pathLen])
	data := inner[2+pathLen:]

	switch service {
	case SvcReadTag:
		tag, ok := f.tags[p.symbol]
		if !ok {
			return eiptest.Reply(service, 0x04, []uint16{0x0000}, nil)
		}
		out := binary.LittleEndian.AppendUint16(nil, tag.dataType)
		if tag.dataType == TypeStructHeader {
			out = binary.LittleEndian.AppendUint16(out, tag.handle)
		}
		return eiptest.Reply(service, 0x00, nil, append(out, tag.data...))

	case SvcWriteTag:
		tag, ok := f.tags[p.symbol]
		if !ok {
			return eiptest.Reply(service, 0xFF, []uint16{0x2104}, nil)
		}
		header := 4
		if binary.LittleEndian.Uint16(data) == TypeStructHeader {
			header = 6
		}
		f.writes[p.symbol] = append([]byte(nil), data...)
		tag.data = append([]byte(nil), data[header:]...)
		f.tags[p.symbol] = tag
		return eiptest.Reply(service, 0x00, nil, nil)

	case SvcGetInstanceAttributeList:
		syms, ok := f.symbols[p.symbol]
		if !ok {
			return eiptest.Reply(service, 0x05, nil, nil)
		}
		var page []fakeSymbol
		for _, s := range syms {
			if s.instance >= p.instance {
				page = append(page, s)
			}
		}
		status := byte(0x00)
		if len(page) > f.pageSize {
			page = page[:f.pageSize]
			status = 0x06
		}
		var out []byte
		for _, s := range page {
			out = binary.LittleEndian.AppendUint32(out, s.instance)
			out = binary.LittleEndian.AppendUint16(out, uint16(len(s.name)))
			out = append(out, s.name...)
			out = binary.LittleEndian.AppendUint16(out, s.typeCode)
			for _, d := range s.dims {
				out = binary.LittleEndian.AppendUint32(out, d)
			}
		}
		return eiptest.Reply(service, status, nil, out)
	}
	return eiptest.Reply(service, 0x08, nil, nil)
}

type decodedPath struct {
	symbol   string
	class    uint32
	instance uint32
}

func decodePath(p []byte) decodedPath {
	var out decodedPath
	var names []string
	for len(p) >= 2 {
		switch p[0] {
		case 0x91:
			n := int(p[1])
			names = append(names, string(p[2:2+n]))
			p = p[2+n+n%2:]
		case 0x28:
			names[len(names)-1] += "[" + strconv.Itoa(int(p[1])) + "]"
			p = p[2:]
		case 0x20:
			out.class = uint32(p[1])
			p = p[2:]
		case 0x24:
			out.instance = uint32(p[1])
			p = p[2:]
		case 0x25:
			out.instance = uint32(binary.LittleEndian.Uint16(p[2:4]))
			p = p[4:]
		default:
			p = nil
		}
	}
	out.symbol = strings.Join(names, ".")
	return out
}

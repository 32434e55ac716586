package cip

import (
	"bytes"
	"errors"
	"testing"
)

func TestPathBuilder(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *PathBuilder
		expected []byte
	}{
		{
			name:     "connection manager",
			build:    func() *PathBuilder { return NewPath().Class(0x06).Instance(1) },
			expected: []byte{0x20, 0x06, 0x24, 0x01},
		},
		{
			name:     "16-bit instance",
			build:    func() *PathBuilder { return NewPath().Class(0x6B).Instance(0x1234) },
			expected: []byte{0x20, 0x6B, 0x25, 0x00, 0x34, 0x12},
		},
		{
			name:     "32-bit instance",
			build:    func() *PathBuilder { return NewPath().Instance(0x00012345) },
			expected: []byte{0x26, 0x00, 0x45, 0x23, 0x01, 0x00},
		},
		{
			name:     "odd symbol is padded",
			build:    func() *PathBuilder { return NewPath().Symbol("Speed") },
			expected: []byte{0x91, 0x05, 'S', 'p', 'e', 'e', 'd', 0x00},
		},
		{
			name:     "even symbol",
			build:    func() *PathBuilder { return NewPath().Symbol("Flow") },
			expected: []byte{0x91, 0x04, 'F', 'l', 'o', 'w'},
		},
		{
			name:  "member and index",
			build: func() *PathBuilder { return NewPath().Symbol("Motor[3].Run") },
			expected: []byte{
				0x91, 0x05, 'M', 'o', 't', 'o', 'r', 0x00,
				0x28, 0x03,
				0x91, 0x03, 'R', 'u', 'n', 0x00,
			},
		},
		{
			name:     "wide index",
			build:    func() *PathBuilder { return NewPath().Symbol("Ar[300]") },
			expected: []byte{0x91, 0x02, 'A', 'r', 0x29, 0x00, 0x2C, 0x01},
		},
		{
			name:  "program scope stays one segment",
			build: func() *PathBuilder { return NewPath().Symbol("Program:P.X") },
			expected: []byte{
				0x91, 0x09, 'P', 'r', 'o', 'g', 'r', 'a', 'm', ':', 'P', 0x00,
				0x91, 0x01, 'X', 0x00,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path, err := tc.build().Build()
			if err != nil {
				t.Fatalf("Build() error: %v", err)
			}
			if !bytes.Equal(path, tc.expected) {
				t.Errorf("Build() = % X, want % X", []byte(path), tc.expected)
			}
			if int(path.WordLen())*2 != len(path) {
				t.Errorf("WordLen() = %d for %d bytes", path.WordLen(), len(path))
			}
		})
	}
}

func TestPathBuilder_StickyError(t *testing.T) {
	_, err := NewPath().Symbol("").Class(0x6B).Build()
	if err == nil {
		t.Fatal("expected error for empty symbol")
	}

	_, err = NewPath().Symbol("Tag[1").Symbol("Other").Build()
	if err == nil {
		t.Fatal("expected error to survive later segments")
	}
}

func TestParseTagPath(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		parts, err := ParseTagPath("Program:Main.Grid[1,2].Value")
		if err != nil {
			t.Fatalf("ParseTagPath error: %v", err)
		}
		if len(parts) != 3 {
			t.Fatalf("expected 3 parts, got %d", len(parts))
		}
		if parts[0].Name != "Program:Main" {
			t.Errorf("parts[0].Name = %q", parts[0].Name)
		}
		if parts[1].Name != "Grid" || len(parts[1].Indexes) != 2 || parts[1].Indexes[1] != 2 {
			t.Errorf("parts[1] = %+v", parts[1])
		}
		if parts[2].Name != "Value" || parts[2].Indexes != nil {
			t.Errorf("parts[2] = %+v", parts[2])
		}
	})

	invalid := []string{"", "   ", "A..B", "A[", "A[x]", "[1]", "A[1"}
	for _, tag := range invalid {
		t.Run("invalid "+tag, func(t *testing.T) {
			if _, err := ParseTagPath(tag); !errors.Is(err, ErrTagSyntax) {
				t.Errorf("ParseTagPath(%q) error = %v, want ErrTagSyntax", tag, err)
			}
		})
	}
}

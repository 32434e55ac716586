package plcman

import (
	"testing"

	"signaltap/driver"
)

func TestTagType(t *testing.T) {
	tests := []struct {
		name string
		info driver.TagInfo
		want string
	}{
		{"atomic", driver.TagInfo{DataType: "LREAL"}, "LREAL"},
		{"string", driver.TagInfo{DataType: "STRING"}, "STRING"},
		{"struct", driver.TagInfo{DataType: "STRUCT", IsStruct: true}, TagTypeStruct},
		{"struct array", driver.TagInfo{DataType: "STRUCT", IsStruct: true, IsArray: true}, TagTypeStruct},
		{"atomic array", driver.TagInfo{DataType: "REAL", IsArray: true}, TagTypeArray},
		{"unmapped", driver.TagInfo{DataType: "BIT_FIELD"}, TagTypeUnknown},
		{"empty", driver.TagInfo{}, TagTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TagType(tt.info); got != tt.want {
				t.Errorf("TagType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResultValue(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{true, true},
		{int64(-3), int64(-3)},
		{uint64(7), uint64(7)},
		{1.5, 1.5},
		{"text", "text"},
		{[]int{1, 2}, Unreadable},
		{map[string]any{"a": 1}, Unreadable},
	}
	for _, tt := range tests {
		if got := ResultValue(tt.in); got != tt.want {
			t.Errorf("ResultValue(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConnectionConfigKey(t *testing.T) {
	if got := (ConnectionConfig{IP: "10.0.0.5", Slot: 3}).Key(); got != "10.0.0.5:3" {
		t.Errorf("Key() = %q", got)
	}
}

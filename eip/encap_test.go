package eip

import (
	"bytes"
	"testing"
)

func TestEncap_RoundTrip(t *testing.T) {
	msg := encap{command: CmdSendRRData, session: 0x12345678, data: []byte{1, 2, 3}}
	raw := msg.Bytes()
	if len(raw) != headerSize+3 {
		t.Fatalf("frame length = %d", len(raw))
	}
	if raw[2] != 3 || raw[3] != 0 {
		t.Errorf("length field = % X, want 03 00", raw[2:4])
	}

	got, err := parseHeader(raw)
	if err != nil {
		t.Fatalf("parseHeader error: %v", err)
	}
	if got.command != CmdSendRRData || got.session != 0x12345678 || got.length != 3 {
		t.Errorf("parsed header = %+v", got)
	}

	if _, err := parseHeader(raw[:10]); err == nil {
		t.Error("expected error for short header")
	}
}

func TestParsePacket(t *testing.T) {
	p := UnconnectedPacket([]byte{0x4C, 0x00})
	raw := p.Bytes()
	want := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0xB2, 0x00, 0x02, 0x00, 0x4C, 0x00}
	if !bytes.Equal(raw, want) {
		t.Fatalf("Bytes() = % X, want % X", raw, want)
	}

	parsed, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket error: %v", err)
	}
	if len(parsed.Items) != 2 {
		t.Fatalf("got %d items", len(parsed.Items))
	}
	if _, ok := parsed.Find(ItemConnectedData); ok {
		t.Error("Find returned an item that is not present")
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"truncated item header", []byte{0x01, 0x00, 0xB2}},
		{"truncated item data", []byte{0x01, 0x00, 0xB2, 0x00, 0x04, 0x00, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePacket(tt.raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseIdentityItem_Short(t *testing.T) {
	if _, err := parseIdentityItem(make([]byte, 20)); err == nil {
		t.Error("expected error for short identity item")
	}
	item := make([]byte, 33)
	item[32] = 10
	if _, err := parseIdentityItem(item); err == nil {
		t.Error("expected error for truncated product name")
	}
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Command: CmdRegisterSession, Status: 0x69}
	want := "encapsulation command 0x65 failed: unsupported protocol revision (0x0069)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

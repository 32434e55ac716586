package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"signaltap/cip"
	"signaltap/eip"
	"signaltap/logix"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"session gone", fmt.Errorf("read: %w", eip.ErrNotConnected), KindNotConnected},
		{"deadline", context.DeadlineExceeded, KindTimeout},
		{"canceled", context.Canceled, KindTimeout},
		{"net timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, KindTimeout},
		{"path destination unknown", &cip.StatusError{Service: 0x4C, Status: 0x05}, KindNotFound},
		{"tag not found ext", &cip.StatusError{Service: 0x4D, Status: 0xFF, Extended: 0x2104}, KindNotFound},
		{"privilege violation", &cip.StatusError{Service: 0x4D, Status: 0x0F}, KindProtocol},
		{"encapsulation", &eip.StatusError{Command: 0x6F, Status: 0x65}, KindProtocol},
		{"tag syntax", fmt.Errorf("%w %q", cip.ErrTagSyntax, "a[b"), KindInvalidRequest},
		{"bad value", &logix.ValueError{Type: "DINT", Err: errors.New("out of range")}, KindInvalidRequest},
		{"struct write", &logix.UnsupportedTypeError{Type: "STRUCT(0x0F3A)"}, KindInvalidRequest},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, KindConnectFailure},
		{"reset", syscall.ECONNRESET, KindConnectFailure},
		{"dns", &net.DNSError{Err: "no such host", Name: "plc"}, KindConnectFailure},
		{"eof", io.ErrUnexpectedEOF, KindConnectFailure},
		{"other", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("read", "Speed", tt.err)
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf(Classify(%v)) = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Error("classified error does not wrap the cause")
			}
		})
	}
}

func TestClassify_KeepsExistingKind(t *testing.T) {
	inner := &Error{Kind: KindNotFound, Op: "read", Tag: "X", Err: errors.New("gone")}
	err := Classify("write", "X", fmt.Errorf("outer: %w", inner))
	if KindOf(err) != KindNotFound {
		t.Errorf("kind = %v, want NotFound", KindOf(err))
	}
	if Classify("read", "", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestClassifyConnect(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{&eip.StatusError{Command: 0x65, Status: 0x64}, KindConnectFailure},
		{errors.New("short reply"), KindConnectFailure},
		{context.DeadlineExceeded, KindTimeout},
		{&net.OpError{Op: "dial", Err: timeoutErr{}}, KindTimeout},
	}
	for _, tt := range tests {
		err := ClassifyConnect(tt.err)
		if got := KindOf(err); got != tt.want {
			t.Errorf("ClassifyConnect(%v) kind = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestKind_String(t *testing.T) {
	if KindProtocol.String() != "ProtocolError" {
		t.Errorf("KindProtocol = %q", KindProtocol.String())
	}
	if Kind(99).String() != "Unknown" {
		t.Errorf("Kind(99) = %q", Kind(99).String())
	}
	text, _ := KindNotFound.MarshalText()
	if string(text) != "NotFound" {
		t.Errorf("MarshalText = %q", text)
	}
	err := &Error{Kind: KindNotFound, Op: "read", Tag: "Speed", Err: errors.New("missing")}
	if err.Error() != "read Speed: missing" {
		t.Errorf("Error() = %q", err.Error())
	}
}

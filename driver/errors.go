package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"signaltap/cip"
	"signaltap/eip"
	"signaltap/logix"
)

// Kind classifies a driver failure. Transports map kinds to status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectFailure
	KindTimeout
	KindProtocol
	KindNotFound
	KindNotConnected
	KindInvalidRequest
)

var kindNames = [...]string{
	KindUnknown:        "Unknown",
	KindConnectFailure: "ConnectFailure",
	KindTimeout:        "Timeout",
	KindProtocol:       "ProtocolError",
	KindNotFound:       "NotFound",
	KindNotConnected:   "NotConnected",
	KindInvalidRequest: "InvalidRequest",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified driver failure.
type Error struct {
	Kind Kind
	Op   string // connect, tags, read, write, info
	Tag  string // tag name for read and write, if any
	Err  error
}

func (e *Error) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Tag, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotConnected is returned when an operation needs an open connection.
var ErrNotConnected = errors.New("not connected to PLC")

// KindOf returns the kind of err, KindUnknown when err is not classified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// Classify wraps err in an *Error for op. Errors already classified are
// returned unchanged.
func Classify(op, tag string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: classify(err), Op: op, Tag: tag, Err: err}
}

// ClassifyConnect is Classify for connection setup: anything that is not a
// timeout means the PLC could not be reached.
func ClassifyConnect(err error) error {
	if err == nil {
		return nil
	}
	kind := classify(err)
	if kind != KindTimeout && kind != KindInvalidRequest {
		kind = KindConnectFailure
	}
	return &Error{Kind: kind, Op: "connect", Err: err}
}

func classify(err error) Kind {
	var (
		netErr   net.Error
		opErr    *net.OpError
		dnsErr   *net.DNSError
		cipErr   *cip.StatusError
		encapErr *eip.StatusError
		valueErr *logix.ValueError
		typeErr  *logix.UnsupportedTypeError
		addrErr  *net.AddrError
		parseErr *net.ParseError
		errnoErr syscall.Errno
	)

	switch {
	case errors.Is(err, ErrNotConnected), errors.Is(err, eip.ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.As(err, &cipErr):
		if cipErr.NotFound() {
			return KindNotFound
		}
		return KindProtocol
	case errors.As(err, &encapErr):
		return KindProtocol
	case errors.Is(err, cip.ErrTagSyntax), errors.As(err, &valueErr), errors.As(err, &typeErr):
		return KindInvalidRequest
	case errors.As(err, &addrErr), errors.As(err, &parseErr):
		return KindInvalidRequest
	case errors.As(err, &dnsErr), errors.As(err, &opErr), errors.As(err, &errnoErr):
		return KindConnectFailure
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return KindConnectFailure
	}
	return KindUnknown
}

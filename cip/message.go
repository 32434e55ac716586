package cip

import (
	"encoding/binary"
	"fmt"
)

// ReplyFlag is set on the service byte of every Message Router reply.
const ReplyFlag byte = 0x80

// Request is a Message Router request.
type Request struct {
	Service byte
	Path    EPath
	Data    []byte
}

// Bytes encodes the request as service, path size in words, path, data.
func (r Request) Bytes() []byte {
	out := make([]byte, 0, 2+len(r.Path)+len(r.Data))
	out = append(out, r.Service, r.Path.WordLen())
	out = append(out, r.Path...)
	out = append(out, r.Data...)
	return out
}

// Response is a decoded Message Router reply.
type Response struct {
	Service   byte
	Status    byte
	ExtStatus []uint16
	Data      []byte
}

// ParseResponse decodes reply service, reserved byte, general status,
// additional status size in words, additional status words and data.
func ParseResponse(raw []byte) (*Response, error) {
	if len(raw) < 4 {
		return nil, fmt.Errorf("cip reply too short: %d bytes", len(raw))
	}
	words := int(raw[3])
	start := 4 + words*2
	if len(raw) < start {
		return nil, fmt.Errorf("cip reply truncated: %d status words, %d bytes", words, len(raw))
	}

	resp := &Response{
		Service: raw[0],
		Status:  raw[2],
		Data:    raw[start:],
	}
	for i := 0; i < words; i++ {
		resp.ExtStatus = append(resp.ExtStatus, binary.LittleEndian.Uint16(raw[4+i*2:]))
	}
	return resp, nil
}

// Partial reports whether more data remains to be fetched.
func (r *Response) Partial() bool {
	return r.Status == StatusPartialTransfer
}

// Check verifies the reply matches service and carries success or partial transfer.
func (r *Response) Check(service byte) error {
	if r.Service != service|ReplyFlag {
		return fmt.Errorf("unexpected reply service 0x%02X for request 0x%02X", r.Service, service)
	}
	if r.Status == StatusSuccess || r.Status == StatusPartialTransfer {
		return nil
	}
	return r.Err(service)
}

// Err returns the reply status as a *StatusError, or nil on success.
func (r *Response) Err(service byte) error {
	if r.Status == StatusSuccess {
		return nil
	}
	se := &StatusError{Service: service, Status: r.Status}
	if len(r.ExtStatus) > 0 {
		se.Extended = r.ExtStatus[0]
	}
	return se
}

package driver

import (
	"context"
	"fmt"
	"time"

	"signaltap/logix"
)

// LogixAdapter wraps logix.Client to implement the Driver interface.
type LogixAdapter struct {
	client *logix.Client
	config Config
}

// NewLogixAdapter creates a LogixAdapter. The connection is not established
// until Connect is called.
func NewLogixAdapter(cfg Config) (*LogixAdapter, error) {
	if cfg.Address == "" {
		return nil, &Error{Kind: KindInvalidRequest, Op: "connect", Err: fmt.Errorf("empty PLC address")}
	}
	if cfg.Slot < 0 || cfg.Slot > 255 {
		return nil, &Error{Kind: KindInvalidRequest, Op: "connect", Err: fmt.Errorf("slot %d out of range", cfg.Slot)}
	}
	return &LogixAdapter{config: cfg}, nil
}

// Connect registers an EtherNet/IP session with the controller.
func (a *LogixAdapter) Connect(ctx context.Context) error {
	opts := []logix.Option{logix.WithMicro800(a.config.Micro800)}
	if !a.config.Micro800 {
		opts = append(opts, logix.WithSlot(byte(a.config.Slot)))
	}
	if a.config.Timeout > 0 {
		opts = append(opts, logix.WithTimeout(a.config.Timeout))
	}
	if a.config.Port > 0 {
		opts = append(opts, logix.WithPort(a.config.Port))
	}

	client, err := logix.Dial(ctx, a.config.Address, opts...)
	if err != nil {
		return ClassifyConnect(err)
	}
	a.client = client
	return nil
}

// Close releases the connection. Safe to call more than once.
func (a *LogixAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Close()
	a.client = nil
	return err
}

// IsConnected returns true if the session is registered.
func (a *LogixAdapter) IsConnected() bool {
	return a.client != nil && a.client.Connected()
}

// AllTags returns every readable tag, controller scope first.
func (a *LogixAdapter) AllTags() ([]TagInfo, error) {
	if a.client == nil {
		return nil, &Error{Kind: KindNotConnected, Op: "tags", Err: ErrNotConnected}
	}

	tags, err := a.client.ListAllTags()
	if err != nil {
		return nil, Classify("tags", "", err)
	}

	result := make([]TagInfo, len(tags))
	for i, t := range tags {
		dims := make([]uint32, len(t.Dimensions))
		for j, d := range t.Dimensions {
			dims[j] = uint32(d)
		}
		elem := logix.ElementTypeName(t.TypeCode)
		result[i] = TagInfo{
			Name:       t.Name,
			DataType:   elem,
			TypeName:   t.TypeName(),
			TypeCode:   t.TypeCode,
			Dimensions: dims,
			IsArray:    logix.IsArray(t.TypeCode),
			IsStruct:   elem == "STRUCT",
		}
	}
	return result, nil
}

// Read reads one tag.
func (a *LogixAdapter) Read(tag string) (*TagValue, error) {
	if a.client == nil {
		return nil, &Error{Kind: KindNotConnected, Op: "read", Tag: tag, Err: ErrNotConnected}
	}

	v, err := a.client.ReadTag(tag)
	if err != nil {
		return nil, Classify("read", tag, err)
	}

	value := v.GoValue()
	if b, ok := value.([]byte); ok {
		value = bytesToIntArray(b)
	}
	return &TagValue{Name: tag, DataType: v.TypeName(), Value: value}, nil
}

// Write writes a value to a tag, encoding it for the tag's native type.
func (a *LogixAdapter) Write(tag string, value any) error {
	if a.client == nil {
		return &Error{Kind: KindNotConnected, Op: "write", Tag: tag, Err: ErrNotConnected}
	}
	return Classify("write", tag, a.client.Write(tag, value))
}

// GetDeviceInfo returns the controller's identity.
func (a *LogixAdapter) GetDeviceInfo() (*DeviceInfo, error) {
	if a.client == nil {
		return nil, &Error{Kind: KindNotConnected, Op: "info", Err: ErrNotConnected}
	}

	identity, err := a.client.Identity()
	if err != nil {
		return nil, Classify("info", "", err)
	}

	return &DeviceInfo{
		ProductName:  identity.ProductName,
		Vendor:       identity.VendorName(),
		DeviceType:   identity.DeviceTypeName(),
		ProductCode:  identity.ProductCode,
		Revision:     identity.Revision,
		SerialNumber: identity.SerialHex(),
	}, nil
}

// bytesToIntArray converts raw bytes to []int so JSON renders numbers
// rather than base64.
func bytesToIntArray(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}

// DefaultTimeout applies when a Config carries none.
const DefaultTimeout = 10 * time.Second

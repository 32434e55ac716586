// Package driver is the narrow contract between the service and a PLC
// protocol library: connect, tag list, read, write, device properties and
// close. Every error crossing this boundary is a *Error carrying a Kind.
package driver

import (
	"context"
	"time"
)

// Config describes one PLC connection. It is built per request.
type Config struct {
	Address  string
	Port     int // 0 selects 44818
	Slot     int
	Timeout  time.Duration
	Micro800 bool
}

// Driver is one connection to a PLC. Implementations need not be safe for
// concurrent use; callers own a Driver for the life of one request.
type Driver interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool

	AllTags() ([]TagInfo, error)
	Read(tag string) (*TagValue, error)
	Write(tag string, value any) error
	GetDeviceInfo() (*DeviceInfo, error)
}

// Factory builds an unconnected Driver.
type Factory func(cfg Config) (Driver, error)

// Package drivertest provides an in-memory PLC behind the driver contract.
package drivertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"signaltap/driver"
)

// PLC is a fake controller shared by every driver its factory builds. Set
// the exported fields before handing out the factory.
type PLC struct {
	Tags   []driver.TagInfo
	Values map[string]*driver.TagValue
	Device *driver.DeviceInfo

	ConnectErr     error
	ConnectDelay   time.Duration
	PanicOnConnect bool
	TagsErr        error
	InfoErr        error
	ReadErrs       map[string]error
	WriteErrs      map[string]error

	mu       sync.Mutex
	configs  []driver.Config
	open     int
	maxOpen  int
	connects int
	closes   int
	writes   map[string]any
}

// NewPLC returns an empty fake controller.
func NewPLC() *PLC {
	return &PLC{
		Values:    make(map[string]*driver.TagValue),
		ReadErrs:  make(map[string]error),
		WriteErrs: make(map[string]error),
		writes:    make(map[string]any),
	}
}

// AddTag adds a tag and, if value is not nil, its current value.
func (p *PLC) AddTag(info driver.TagInfo, value any) {
	p.Tags = append(p.Tags, info)
	if value != nil {
		p.Values[info.Name] = &driver.TagValue{Name: info.Name, DataType: info.TypeName, Value: value}
	}
}

// Factory returns a driver.Factory building drivers bound to p.
func (p *PLC) Factory() driver.Factory {
	return func(cfg driver.Config) (driver.Driver, error) {
		p.mu.Lock()
		p.configs = append(p.configs, cfg)
		p.mu.Unlock()
		return &Driver{plc: p}, nil
	}
}

// Open returns the number of connected drivers not yet closed.
func (p *PLC) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// MaxOpen returns the highest number of simultaneously connected drivers.
func (p *PLC) MaxOpen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxOpen
}

// Connects returns the number of successful connects.
func (p *PLC) Connects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

// Configs returns the configurations passed to the factory.
func (p *PLC) Configs() []driver.Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]driver.Config(nil), p.configs...)
}

// Written returns the last value written to tag.
func (p *PLC) Written(tag string) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.writes[tag]
	return v, ok
}

// Driver is one connection to a fake PLC.
type Driver struct {
	plc       *PLC
	connected bool
}

func (d *Driver) Connect(ctx context.Context) error {
	p := d.plc
	if p.PanicOnConnect {
		panic("fake driver exploded")
	}
	if p.ConnectDelay > 0 {
		select {
		case <-time.After(p.ConnectDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if p.ConnectErr != nil {
		return p.ConnectErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	d.connected = true
	p.connects++
	p.open++
	p.maxOpen = max(p.maxOpen, p.open)
	return nil
}

func (d *Driver) Close() error {
	if !d.connected {
		return nil
	}
	p := d.plc
	p.mu.Lock()
	defer p.mu.Unlock()
	d.connected = false
	p.open--
	p.closes++
	return nil
}

func (d *Driver) IsConnected() bool {
	return d.connected
}

func (d *Driver) AllTags() ([]driver.TagInfo, error) {
	if !d.connected {
		return nil, driver.ErrNotConnected
	}
	if d.plc.TagsErr != nil {
		return nil, d.plc.TagsErr
	}
	return append([]driver.TagInfo(nil), d.plc.Tags...), nil
}

func (d *Driver) Read(tag string) (*driver.TagValue, error) {
	if !d.connected {
		return nil, driver.ErrNotConnected
	}
	if err := d.plc.ReadErrs[tag]; err != nil {
		return nil, err
	}
	v, ok := d.plc.Values[tag]
	if !ok {
		return nil, &driver.Error{Kind: driver.KindNotFound, Op: "read", Tag: tag, Err: errors.New("tag not found")}
	}
	return v, nil
}

func (d *Driver) Write(tag string, value any) error {
	if !d.connected {
		return driver.ErrNotConnected
	}
	if err := d.plc.WriteErrs[tag]; err != nil {
		return err
	}
	if _, ok := d.plc.Values[tag]; !ok {
		return &driver.Error{Kind: driver.KindNotFound, Op: "write", Tag: tag, Err: fmt.Errorf("tag %s not found", tag)}
	}
	d.plc.mu.Lock()
	defer d.plc.mu.Unlock()
	d.plc.writes[tag] = value
	return nil
}

func (d *Driver) GetDeviceInfo() (*driver.DeviceInfo, error) {
	if !d.connected {
		return nil, driver.ErrNotConnected
	}
	if d.plc.InfoErr != nil {
		return nil, d.plc.InfoErr
	}
	if d.plc.Device == nil {
		return &driver.DeviceInfo{}, nil
	}
	info := *d.plc.Device
	return &info, nil
}

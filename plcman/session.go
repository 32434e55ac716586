package plcman

import (
	"fmt"
	"sync"
	"time"

	"signaltap/driver"
	"signaltap/events"
	"signaltap/logging"
	"signaltap/metrics"
)

// Session is one connected PLC driver owned by one request.
type Session struct {
	m   *Manager
	cfg ConnectionConfig
	key string

	mu     sync.Mutex
	drv    driver.Driver
	closed bool
}

// Config returns the connection parameters the session was opened with.
func (s *Session) Config() ConnectionConfig {
	return s.cfg
}

// Close disconnects and frees the session slot. Safe to call more than once
// and on a nil session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	drv := s.drv
	s.drv = nil
	s.mu.Unlock()

	if drv != nil {
		closeQuietly(drv)
	}
	s.m.release(s.key)
	s.m.open.Add(-1)
	metrics.PLCSessionsActive.Dec()
	logging.DebugDisconnect("plcman", s.key, "session closed")
}

// live returns the driver or a NotConnected error.
func (s *Session) live(op string) (driver.Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.drv == nil {
		return nil, &driver.Error{Kind: driver.KindNotConnected, Op: op, Err: driver.ErrNotConnected}
	}
	return s.drv, nil
}

// guard runs fn, turning a driver panic into an error of the given op.
func guard(op, tag string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &driver.Error{Kind: driver.KindUnknown, Op: op, Tag: tag, Err: fmt.Errorf("driver panic: %v", r)}
		}
	}()
	return fn()
}

func (s *Session) allTags() ([]driver.TagInfo, error) {
	drv, err := s.live("tags")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var tags []driver.TagInfo
	err = guard("tags", "", func() error {
		var err error
		tags, err = drv.AllTags()
		return driver.Classify("tags", "", err)
	})
	s.m.observe("tags", start, err)
	if err != nil {
		return nil, err
	}
	s.m.emit(events.Event{Type: events.TagsScanned, PLC: s.cfg.IP, Slot: s.cfg.Slot, Count: len(tags), Success: true})
	return tags, nil
}

// Tags lists every tag of the PLC.
func (s *Session) Tags() ([]Tag, error) {
	infos, err := s.allTags()
	if err != nil {
		return nil, err
	}
	tags := make([]Tag, len(infos))
	for i, t := range infos {
		tags[i] = FromDriverTag(t)
	}
	return tags, nil
}

// SimpleTags lists every tag with the driver's own type name.
func (s *Session) SimpleTags() ([]SimpleTag, error) {
	infos, err := s.allTags()
	if err != nil {
		return nil, err
	}
	tags := make([]SimpleTag, len(infos))
	for i, t := range infos {
		tags[i] = SimpleTag{Name: t.Name, Type: t.TypeName}
	}
	return tags, nil
}

// read reads one tag and publishes the outcome.
func (s *Session) read(name string) (*driver.TagValue, error) {
	drv, err := s.live("read")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var v *driver.TagValue
	err = guard("read", name, func() error {
		var err error
		v, err = drv.Read(name)
		return driver.Classify("read", name, err)
	})
	s.m.observe("read", start, err)
	if err == nil && v == nil {
		v = &driver.TagValue{Name: name}
	}

	e := events.Event{Type: events.TagRead, PLC: s.cfg.IP, Slot: s.cfg.Slot, Tag: name, Success: err == nil}
	if err != nil {
		e.Error = err.Error()
		s.m.log.Warn("tag read failed", "plc", s.key, "tag", name, "kind", driver.KindOf(err), "error", err)
	} else {
		e.DataType, e.Value = v.DataType, v.Value
	}
	s.m.emit(e)
	return v, err
}

// ReadTags reads each name in order. A tag that fails to read maps to nil.
// The error is non-nil only when the session is closed.
func (s *Session) ReadTags(names []string) (map[string]any, error) {
	if _, err := s.live("read"); err != nil {
		return nil, err
	}
	values := make(map[string]any, len(names))
	for _, name := range names {
		v, err := s.read(name)
		if err != nil {
			values[name] = nil
			continue
		}
		values[name] = v.Value
	}
	return values, nil
}

// ReadResults reads each name in order and reports per-tag status. Values
// without a scalar form read as Unreadable.
func (s *Session) ReadResults(names []string, at time.Time) []TagReadResult {
	results := make([]TagReadResult, len(names))
	for i, name := range names {
		results[i] = TagReadResult{Name: name, Status: StatusError, Timestamp: at}
		v, err := s.read(name)
		if err != nil {
			continue
		}
		results[i].Value = ResultValue(v.Value)
		results[i].Status = StatusSuccess
	}
	return results
}

// WriteTag writes value to the tag, converted to the tag's type.
func (s *Session) WriteTag(name string, value any) error {
	drv, err := s.live("write")
	if err != nil {
		return err
	}
	start := time.Now()
	err = guard("write", name, func() error {
		return driver.Classify("write", name, drv.Write(name, value))
	})
	s.m.observe("write", start, err)

	e := events.Event{Type: events.TagWritten, PLC: s.cfg.IP, Slot: s.cfg.Slot, Tag: name, Value: value, Success: err == nil}
	if err != nil {
		e.Error = err.Error()
		s.m.log.Warn("tag write failed", "plc", s.key, "tag", name, "kind", driver.KindOf(err), "error", err)
	} else {
		s.m.log.Info("tag written", "plc", s.key, "tag", name, "value", value)
	}
	s.m.emit(e)
	return err
}

// Info describes the controller. It never fails: when the driver cannot
// answer, the record carries the defaults and Error.
func (s *Session) Info() PLCInfo {
	info := PLCInfo{IPAddress: s.cfg.IP, Slot: s.cfg.Slot}

	var dev *driver.DeviceInfo
	drv, err := s.live("info")
	if err == nil {
		start := time.Now()
		err = guard("info", "", func() error {
			var err error
			dev, err = drv.GetDeviceInfo()
			return driver.Classify("info", "", err)
		})
		s.m.observe("info", start, err)
	}
	if err != nil {
		info.Error = err.Error()
	}
	if dev == nil {
		dev = &driver.DeviceInfo{}
	}

	info.DeviceName = orUnknown(dev.DeviceName)
	info.ProductName = orUnknown(dev.ProductName)
	info.Vendor = orUnknown(dev.Vendor)
	info.DeviceType = orUnknown(dev.DeviceType)
	info.Revision = orUnknown(dev.Revision)
	info.SerialNumber = orUnknown(dev.SerialNumber)
	return info
}

// Package plcman opens short-lived PLC sessions on behalf of HTTP requests.
//
// Every operation runs inside a session that is connected when opened and
// closed before the caller returns. Sessions against the same PLC (ip and
// slot) are limited by a weighted semaphore so a burst of requests cannot
// exhaust the controller's connection table.
package plcman

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"signaltap/driver"
	"signaltap/events"
	"signaltap/logging"
	"signaltap/metrics"
)

// ErrBusy is returned by Open when the wait for a session slot is cancelled.
var ErrBusy = errors.New("too many concurrent sessions for PLC")

// Defaults applied by NewManager.
const (
	DefaultTimeout           = 10 * time.Second
	DefaultMaxTimeout        = 120 * time.Second
	DefaultMaxSessionsPerPLC = 2
)

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	Factory           driver.Factory
	MaxSessionsPerPLC int
	DefaultTimeout    time.Duration
	MaxTimeout        time.Duration
	Events            *events.Bus
	Logger            *slog.Logger
}

// Manager opens sessions and runs the self-contained operations.
type Manager struct {
	factory        driver.Factory
	perPLC         int64
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	events         *events.Bus
	log            *slog.Logger

	mu       sync.Mutex
	limiters map[string]*limiter

	open atomic.Int64
}

type limiter struct {
	sem  *semaphore.Weighted
	refs int
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	m := &Manager{
		factory:        opts.Factory,
		perPLC:         int64(opts.MaxSessionsPerPLC),
		defaultTimeout: opts.DefaultTimeout,
		maxTimeout:     opts.MaxTimeout,
		events:         opts.Events,
		log:            opts.Logger,
		limiters:       make(map[string]*limiter),
	}
	if m.factory == nil {
		m.factory = driver.Create
	}
	if m.perPLC <= 0 {
		m.perPLC = DefaultMaxSessionsPerPLC
	}
	if m.defaultTimeout <= 0 {
		m.defaultTimeout = DefaultTimeout
	}
	if m.maxTimeout <= 0 {
		m.maxTimeout = DefaultMaxTimeout
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	return m
}

// DefaultTimeout returns the timeout used when a request gives none.
func (m *Manager) DefaultTimeout() time.Duration {
	return m.defaultTimeout
}

// OpenSessions returns the number of sessions currently open.
func (m *Manager) OpenSessions() int {
	return int(m.open.Load())
}

// Open waits for a session slot on the PLC, then connects. The returned
// session must be closed. Driver failures, including panics, come back as a
// *driver.Error.
func (m *Manager) Open(ctx context.Context, cfg ConnectionConfig) (*Session, error) {
	start := time.Now()
	s, err := m.openSession(ctx, cfg)
	m.observe("connect", start, err)
	return s, err
}

func (m *Manager) openSession(ctx context.Context, cfg ConnectionConfig) (*Session, error) {
	if cfg.IP == "" {
		return nil, &driver.Error{Kind: driver.KindInvalidRequest, Op: "connect", Err: errors.New("PLC address is required")}
	}
	if cfg.Slot < 0 || cfg.Slot > 255 {
		return nil, &driver.Error{Kind: driver.KindInvalidRequest, Op: "connect", Err: fmt.Errorf("slot %d out of range 0-255", cfg.Slot)}
	}
	cfg.Timeout = m.clampTimeout(cfg.Timeout)

	key := cfg.Key()
	if err := m.acquire(ctx, key); err != nil {
		return nil, err
	}

	drv, err := m.connect(ctx, cfg)
	if err != nil {
		m.release(key)
		logging.DebugConnectError("plcman", key, err)
		return nil, err
	}

	m.open.Add(1)
	metrics.PLCSessionsActive.Inc()
	logging.DebugConnectSuccess("plcman", key, fmt.Sprintf("micro800=%v timeout=%s", cfg.Micro800, cfg.Timeout))
	return &Session{m: m, cfg: cfg, key: key, drv: drv}, nil
}

// connect builds and connects the driver, turning panics into errors.
func (m *Manager) connect(ctx context.Context, cfg ConnectionConfig) (drv driver.Driver, err error) {
	defer func() {
		if r := recover(); r != nil {
			if drv != nil {
				closeQuietly(drv)
			}
			drv = nil
			err = &driver.Error{Kind: driver.KindConnectFailure, Op: "connect", Err: fmt.Errorf("driver panic: %v", r)}
		}
	}()

	drv, err = m.factory(driver.Config{
		Address:  cfg.IP,
		Slot:     cfg.Slot,
		Timeout:  cfg.Timeout,
		Micro800: cfg.Micro800,
	})
	if err != nil {
		return nil, driver.ClassifyConnect(err)
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := drv.Connect(cctx); err != nil {
		closeQuietly(drv)
		return nil, driver.ClassifyConnect(err)
	}
	return drv, nil
}

func (m *Manager) clampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return m.defaultTimeout
	}
	return min(d, m.maxTimeout)
}

func (m *Manager) acquire(ctx context.Context, key string) error {
	m.mu.Lock()
	l, ok := m.limiters[key]
	if !ok {
		l = &limiter{sem: semaphore.NewWeighted(m.perPLC)}
		m.limiters[key] = l
	}
	l.refs++
	m.mu.Unlock()

	if err := l.sem.Acquire(ctx, 1); err != nil {
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.limiters, key)
		}
		m.mu.Unlock()
		metrics.PLCBusy.Inc()
		return fmt.Errorf("%s: %w", key, ErrBusy)
	}
	return nil
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.limiters[key]
	if !ok {
		return
	}
	l.sem.Release(1)
	l.refs--
	if l.refs == 0 {
		delete(m.limiters, key)
	}
}

// WithSession opens a session, runs fn and closes the session whatever fn
// returns.
func (m *Manager) WithSession(ctx context.Context, cfg ConnectionConfig, fn func(*Session) error) error {
	s, err := m.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Test connects to the PLC and disconnects.
func (m *Manager) Test(ctx context.Context, cfg ConnectionConfig) error {
	err := m.WithSession(ctx, cfg, func(*Session) error { return nil })
	m.emit(events.Event{Type: events.ConnectionTested, PLC: cfg.IP, Slot: cfg.Slot, Success: err == nil, Error: errString(err)})
	return err
}

// ScanSimple lists every tag of the PLC with its driver type name.
func (m *Manager) ScanSimple(ctx context.Context, ip string, slot int) ([]SimpleTag, error) {
	var tags []SimpleTag
	err := m.WithSession(ctx, ConnectionConfig{IP: ip, Slot: slot}, func(s *Session) error {
		var err error
		tags, err = s.SimpleTags()
		return err
	})
	return tags, err
}

// ReadLive reads tags in one session. Every name gets an entry; all entries
// share one timestamp.
func (m *Manager) ReadLive(ctx context.Context, ip string, slot int, tags []string) ([]TagReadResult, error) {
	at := time.Now().UTC()
	var results []TagReadResult
	err := m.WithSession(ctx, ConnectionConfig{IP: ip, Slot: slot}, func(s *Session) error {
		results = s.ReadResults(tags, at)
		return nil
	})
	return results, err
}

func (m *Manager) emit(e events.Event) {
	if m.events != nil {
		m.events.Emit(e)
	}
}

func (m *Manager) observe(op string, start time.Time, err error) {
	result := metrics.Result(err)
	if errors.Is(err, ErrBusy) {
		result = "busy"
	}
	metrics.ObservePLC(op, start, result)
}

func closeQuietly(drv driver.Driver) {
	defer func() { recover() }()
	drv.Close()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

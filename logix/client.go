// Package logix talks to Allen-Bradley Logix controllers (ControlLogix,
// CompactLogix, Micro800) using unconnected explicit messaging: symbol
// browsing, Read Tag, Write Tag and device identity.
package logix

import (
	"context"
	"fmt"
	"time"

	"signaltap/eip"
	"signaltap/logging"
)

// Client is one registered session with a Logix controller.
type Client struct {
	conn     *eip.Client
	slot     byte
	micro800 bool
}

type options struct {
	slot     byte
	micro800 bool
	timeout  time.Duration
	port     int
}

// Option configures Dial.
type Option func(*options)

// WithSlot sets the backplane slot of the processor. Requests are routed
// through backplane port 1 to this slot.
func WithSlot(slot byte) Option {
	return func(o *options) { o.slot = slot }
}

// WithMicro800 addresses the controller directly with no backplane route.
// Micro800 controllers reject routed requests.
func WithMicro800(on bool) Option {
	return func(o *options) { o.micro800 = on }
}

// WithTimeout bounds dialing and each request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithPort overrides the EtherNet/IP port.
func WithPort(port int) Option {
	return func(o *options) { o.port = port }
}

// Dial connects to the controller at address and registers a session.
func Dial(ctx context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, fmt.Errorf("Dial: empty address")
	}
	cfg := options{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	conn := eip.NewClient(address, eip.WithTimeout(cfg.timeout), eip.WithPort(cfg.port))
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("Dial: %w", err)
	}

	logging.DebugLog("logix", "session 0x%08X to %s (slot=%d micro800=%v)",
		conn.Session(), conn.Address(), cfg.slot, cfg.micro800)

	return &Client{conn: conn, slot: cfg.slot, micro800: cfg.micro800}, nil
}

// Close unregisters the session. Safe on a nil or closed client.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Connected reports whether the session is still registered.
func (c *Client) Connected() bool {
	return c != nil && c.conn != nil && c.conn.Connected()
}

// Address returns host:port of the controller.
func (c *Client) Address() string {
	return c.conn.Address()
}

// Slot returns the configured processor slot.
func (c *Client) Slot() byte {
	return c.slot
}

// Micro800 reports whether requests are sent unrouted.
func (c *Client) Micro800() bool {
	return c.micro800
}

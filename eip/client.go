// Package eip implements the EtherNet/IP encapsulation layer: TCP session
// registration, unconnected explicit messaging and ListIdentity.
package eip

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"signaltap/logging"
)

// ErrNotConnected is returned when a request is made without a registered session.
var ErrNotConnected = errors.New("eip: not connected")

// Client is a single TCP encapsulation session with one target.
// Requests are serialized; one request is in flight at a time.
type Client struct {
	host    string
	port    int
	timeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	session uint32
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout bounds dialing and each request/response exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPort overrides the default EtherNet/IP port.
func WithPort(port int) Option {
	return func(c *Client) {
		if port > 0 {
			c.port = port
		}
	}
}

// NewClient creates an unconnected client. address may carry an explicit
// ":port"; otherwise DefaultPort is used.
func NewClient(address string, opts ...Option) *Client {
	host, port := splitAddress(address)
	c := &Client{
		host:    host,
		port:    port,
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func splitAddress(address string) (string, int) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return address, DefaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return address, DefaultPort
	}
	return host, port
}

// Address returns host:port of the target.
func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// Timeout returns the per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Connected reports whether a session is registered.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.session != 0
}

// Session returns the registered session handle, or 0.
func (c *Client) Session() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Connect dials the target and registers a session.
func (c *Client) Connect(ctx context.Context) error {
	addr := c.Address()
	logging.DebugConnect("eip", addr)

	d := net.Dialer{Timeout: c.timeout, KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logging.DebugConnectError("eip", addr, err)
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = conn
	c.session = 0

	session, err := c.registerSession()
	if err != nil {
		_ = conn.Close()
		c.conn = nil
		logging.DebugConnectError("eip", addr, err)
		return fmt.Errorf("register session with %s: %w", addr, err)
	}
	c.session = session

	logging.DebugConnectSuccess("eip", addr, fmt.Sprintf("session=0x%08X", session))
	return nil
}

// Close unregisters the session and closes the socket. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		c.session = 0
		return nil
	}

	logging.DebugDisconnect("eip", c.Address(), "close requested")

	if c.session != 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
		_ = c.send(encap{command: CmdUnRegisterSession, session: c.session})
	}
	err := c.conn.Close()
	c.conn = nil
	c.session = 0
	return err
}

func (c *Client) registerSession() (uint32, error) {
	// Protocol version 1, option flags 0.
	resp, err := c.transact(encap{command: CmdRegisterSession, data: []byte{0x01, 0x00, 0x00, 0x00}})
	if err != nil {
		return 0, err
	}
	if resp.status != 0 {
		return 0, &StatusError{Command: CmdRegisterSession, Status: resp.status}
	}
	if resp.session == 0 {
		return 0, fmt.Errorf("target returned session handle 0")
	}
	return resp.session, nil
}

// SendRRData sends an unconnected message and returns the reply packet.
func (c *Client) SendRRData(packet Packet) (*Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.session == 0 {
		return nil, ErrNotConnected
	}

	cmd := commandData{packet: packet.Bytes()}
	resp, err := c.transact(encap{command: CmdSendRRData, session: c.session, data: cmd.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("SendRRData: %w", err)
	}
	if resp.status != 0 {
		return nil, &StatusError{Command: CmdSendRRData, Status: resp.status}
	}

	data, err := parseCommandData(resp.data)
	if err != nil {
		return nil, fmt.Errorf("SendRRData: %w", err)
	}
	reply, err := ParsePacket(data.packet)
	if err != nil {
		return nil, fmt.Errorf("SendRRData: %w", err)
	}
	return reply, nil
}

// transact sends one frame and reads one reply within the client timeout.
// Caller holds c.mu.
func (c *Client) transact(msg encap) (*encap, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.send(msg); err != nil {
		return nil, err
	}
	return c.recv()
}

func (c *Client) send(msg encap) error {
	if len(msg.data) > maxPayload {
		return fmt.Errorf("payload of %d bytes exceeds %d", len(msg.data), maxPayload)
	}
	frame := msg.Bytes()
	logging.DebugTX("eip", frame)
	if _, err := c.conn.Write(frame); err != nil {
		logging.DebugError("eip", "write", err)
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *Client) recv() (*encap, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		logging.DebugError("eip", "read header", err)
		return nil, fmt.Errorf("read header: %w", err)
	}
	msg, err := parseHeader(header)
	if err != nil {
		return nil, err
	}
	if int(msg.length) > maxPayload {
		return nil, fmt.Errorf("reply payload of %d bytes exceeds %d", msg.length, maxPayload)
	}
	// Session 0 is legal in replies to session-less commands like ListIdentity.
	if msg.session != 0 && c.session != 0 && msg.session != c.session {
		return nil, fmt.Errorf("reply for session 0x%08X, ours is 0x%08X", msg.session, c.session)
	}

	msg.data = make([]byte, msg.length)
	if _, err := io.ReadFull(c.conn, msg.data); err != nil {
		logging.DebugError("eip", "read payload", err)
		return nil, fmt.Errorf("read payload: %w", err)
	}
	logging.DebugRX("eip", append(header, msg.data...))
	return &msg, nil
}

// Package valkey stores PLC read and write outcomes in Valkey/Redis and
// optionally announces them over Pub/Sub.
package valkey

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"signaltap/config"
	"signaltap/events"
	"signaltap/logging"
)

// joinKey builds a Valkey key from segments, trimming colons from each.
func joinKey(segments ...string) string {
	var parts []string
	for _, s := range segments {
		s = strings.Trim(s, ":")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ":")
}

// ErrNotRunning is returned by Publish before Start or after Stop.
var ErrNotRunning = errors.New("valkey publisher not running")

// TagMessage is the value stored for a tag read.
type TagMessage struct {
	Namespace string    `json:"namespace"`
	PLC       string    `json:"plc"`
	Tag       string    `json:"tag"`
	Value     any       `json:"value"`
	Type      string    `json:"type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteResponse is the value stored for a tag write.
type WriteResponse struct {
	Namespace string    `json:"namespace"`
	PLC       string    `json:"plc"`
	Tag       string    `json:"tag"`
	Value     any       `json:"value"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthMessage is the value stored after a connection test.
type HealthMessage struct {
	Namespace string    `json:"namespace"`
	PLC       string    `json:"plc"`
	Online    bool      `json:"online"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is one key to set, and whether its change is announced.
type Record struct {
	Key      string
	Data     []byte
	Announce bool
}

// Publisher writes events to one Valkey server.
type Publisher struct {
	config *config.ValkeyConfig
	prefix string

	client  *redis.Client
	running bool
	mu      sync.RWMutex
}

// NewPublisher creates a publisher. An empty key prefix falls back to the
// namespace.
func NewPublisher(cfg *config.ValkeyConfig, namespace string) *Publisher {
	prefix := strings.Trim(cfg.KeyPrefix, ":")
	if prefix == "" {
		prefix = namespace
	}
	return &Publisher{config: cfg, prefix: prefix}
}

// Name returns the publisher's configured name.
func (p *Publisher) Name() string {
	return p.config.Name
}

// Start connects and pings the server.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := &redis.Options{
		Addr:         p.config.Address,
		Password:     p.config.Password,
		DB:           p.config.Database,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	if p.config.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)
	debugLog("Attempting to connect to Valkey at %s (DB: %d, TLS: %v)",
		p.config.Address, p.config.Database, p.config.UseTLS)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		debugLog("Valkey connection failed: %v", err)
		client.Close()
		return fmt.Errorf("failed to connect to Valkey at %s: %w", p.config.Address, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		client.Close()
		return nil
	}
	p.client = client
	p.running = true

	debugLog("Successfully connected to Valkey at %s", p.config.Address)
	return nil
}

// Stop closes the connection.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	client := p.client
	p.client = nil
	p.running = false
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	debugLog("Disconnecting from Valkey at %s", p.config.Address)
	return client.Close()
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Address returns the server address.
func (p *Publisher) Address() string {
	return p.config.Address
}

// TagKey returns the key holding a tag's last read value.
func (p *Publisher) TagKey(plc, tag string) string {
	return joinKey(p.prefix, plc, "tags", tag)
}

// WriteKey returns the key holding a tag's last write result.
func (p *Publisher) WriteKey(plc, tag string) string {
	return joinKey(p.prefix, plc, "writes", tag)
}

// HealthKey returns the key holding a PLC's last connection test.
func (p *Publisher) HealthKey(plc string) string {
	return joinKey(p.prefix, plc, "health")
}

// ChangeChannels returns the Pub/Sub channels for a PLC.
func (p *Publisher) ChangeChannels(plc string) []string {
	return []string{
		joinKey(p.prefix, plc, "changes"),
		joinKey(p.prefix, "_all", "changes"),
	}
}

// Record builds the key and value for an event. Failed reads and scans are
// not stored.
func (p *Publisher) Record(e events.Event) (Record, bool) {
	plc := e.Source()
	ts := e.Timestamp.UTC()

	var (
		key      string
		msg      any
		announce bool
	)
	switch {
	case e.Type == events.TagRead && e.Success:
		key = p.TagKey(plc, e.Tag)
		msg = TagMessage{Namespace: p.prefix, PLC: plc, Tag: e.Tag, Value: e.Value, Type: e.DataType, Timestamp: ts}
		announce = true
	case e.Type == events.TagWritten:
		key = p.WriteKey(plc, e.Tag)
		msg = WriteResponse{Namespace: p.prefix, PLC: plc, Tag: e.Tag, Value: e.Value, Success: e.Success, Error: e.Error, Timestamp: ts}
		announce = e.Success
	case e.Type == events.ConnectionTested:
		key = p.HealthKey(plc)
		msg = HealthMessage{Namespace: p.prefix, PLC: plc, Online: e.Success, Error: e.Error, Timestamp: ts}
	default:
		return Record{}, false
	}

	data, err := json.Marshal(msg)
	if err != nil {
		debugLog("Failed to marshal %s for %s: %v", e.Type, key, err)
		return Record{}, false
	}
	return Record{Key: key, Data: data, Announce: announce && p.config.PublishChanges}, true
}

// Publish stores the event and announces it when configured.
func (p *Publisher) Publish(e events.Event) error {
	p.mu.RLock()
	client := p.client
	running := p.running
	ttl := p.config.KeyTTL
	p.mu.RUnlock()
	if !running || client == nil {
		return ErrNotRunning
	}

	rec, ok := p.Record(e)
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Set(ctx, rec.Key, rec.Data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", rec.Key, err)
	}
	if !rec.Announce {
		return nil
	}

	pipe := client.Pipeline()
	for _, ch := range p.ChangeChannels(e.Source()) {
		pipe.Publish(ctx, ch, rec.Data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", rec.Key, err)
	}
	return nil
}

func debugLog(format string, args ...any) {
	logging.DebugLog("valkey", format, args...)
}

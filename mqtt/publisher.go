// Package mqtt publishes PLC read and write outcomes to MQTT brokers.
package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"signaltap/config"
	"signaltap/events"
	"signaltap/logging"
)

func logMQTT(format string, args ...any) {
	logging.DebugLog("mqtt", format, args...)
}

// ErrNotRunning is returned by Publish before Start or after Stop.
var ErrNotRunning = errors.New("mqtt publisher not running")

// Publisher handles one broker connection.
type Publisher struct {
	config    *config.MQTTConfig
	rootTopic string
	client    pahomqtt.Client
	running   bool
	mu        sync.RWMutex
}

// TagMessage is the JSON structure published for a tag read.
type TagMessage struct {
	Topic     string `json:"topic"`
	PLC       string `json:"plc"`
	Tag       string `json:"tag"`
	Value     any    `json:"value"`
	Type      string `json:"type,omitempty"`
	Timestamp string `json:"timestamp"`
}

// WriteResponse is the JSON structure published for a tag write.
type WriteResponse struct {
	Topic     string `json:"topic"`
	PLC       string `json:"plc"`
	Tag       string `json:"tag"`
	Value     any    `json:"value"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewPublisher creates a publisher. An empty root topic falls back to the
// namespace.
func NewPublisher(cfg *config.MQTTConfig, namespace string) *Publisher {
	root := strings.Trim(cfg.RootTopic, "/")
	if root == "" {
		root = namespace
	}
	return &Publisher{config: cfg, rootTopic: root}
}

// Name returns the publisher's configured name.
func (p *Publisher) Name() string {
	return p.config.Name
}

// IsRunning returns whether the publisher is connected.
func (p *Publisher) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// Address returns the broker URL.
func (p *Publisher) Address() string {
	scheme := "tcp"
	if p.config.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, p.config.Broker, p.config.Port)
}

// Start connects to the broker.
func (p *Publisher) Start() error {
	p.mu.RLock()
	if p.running {
		p.mu.RUnlock()
		return nil
	}
	p.mu.RUnlock()

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(p.Address())
	if p.config.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	clientID := p.config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("%s-%s", p.rootTopic, p.config.Name)
	}
	opts.SetClientID(clientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)

	client := pahomqtt.NewClient(opts)
	logMQTT("Attempting to connect to MQTT broker %s", p.Address())

	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		logMQTT("MQTT connection timeout")
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		logMQTT("MQTT connection error: %v", token.Error())
		return token.Error()
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		client.Disconnect(100)
		return nil
	}
	p.client = client
	p.running = true
	p.mu.Unlock()

	logMQTT("Successfully connected to MQTT broker %s", p.Address())
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	p.mu.Lock()
	client := p.client
	wasRunning := p.running
	p.client = nil
	p.running = false
	p.mu.Unlock()

	if wasRunning && client != nil {
		client.Disconnect(250)
		logMQTT("Disconnected from MQTT broker %s", p.Address())
	}
}

// BuildTopic returns the topic carrying a tag's value.
func (p *Publisher) BuildTopic(plc, tag string) string {
	return fmt.Sprintf("%s/%s/tags/%s", p.rootTopic, plc, tag)
}

// WriteTopic returns the topic carrying a tag's write results.
func (p *Publisher) WriteTopic(plc, tag string) string {
	return fmt.Sprintf("%s/%s/write/%s/response", p.rootTopic, plc, tag)
}

// Message builds the topic and payload for an event. Only successful reads
// and all writes are published.
func (p *Publisher) Message(e events.Event) (topic string, payload []byte, ok bool) {
	ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
	plc := e.Source()

	var msg any
	switch {
	case e.Type == events.TagRead && e.Success:
		topic = p.BuildTopic(plc, e.Tag)
		msg = TagMessage{Topic: p.rootTopic, PLC: plc, Tag: e.Tag, Value: e.Value, Type: e.DataType, Timestamp: ts}
	case e.Type == events.TagWritten:
		topic = p.WriteTopic(plc, e.Tag)
		msg = WriteResponse{Topic: p.rootTopic, PLC: plc, Tag: e.Tag, Value: e.Value, Success: e.Success, Error: e.Error, Timestamp: ts}
	default:
		return "", nil, false
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		logMQTT("Failed to marshal %s for %s: %v", e.Type, topic, err)
		return "", nil, false
	}
	return topic, payload, true
}

// Publish sends the event. Events the publisher does not carry are ignored.
func (p *Publisher) Publish(e events.Event) error {
	p.mu.RLock()
	client := p.client
	running := p.running
	p.mu.RUnlock()
	if !running || client == nil {
		return ErrNotRunning
	}

	topic, payload, ok := p.Message(e)
	if !ok {
		return nil
	}

	// Write results are never retained.
	retain := p.config.Retain && e.Type == events.TagRead
	token := client.Publish(topic, p.config.QoS, retain, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	return token.Error()
}

// Manager fans events out to every running publisher.
type Manager struct {
	publishers map[string]*Publisher
	mu         sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{publishers: make(map[string]*Publisher)}
}

// Add adds a publisher, replacing any with the same name.
func (m *Manager) Add(pub *Publisher) {
	m.mu.Lock()
	old := m.publishers[pub.Name()]
	m.publishers[pub.Name()] = pub
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// Get returns a publisher by name.
func (m *Manager) Get(name string) *Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.publishers[name]
}

// List returns all publishers sorted by name.
func (m *Manager) List() []*Publisher {
	m.mu.RLock()
	result := make([]*Publisher, 0, len(m.publishers))
	for _, pub := range m.publishers {
		result = append(result, pub)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// LoadFromConfig creates publishers from configuration.
func (m *Manager) LoadFromConfig(cfgs []config.MQTTConfig, namespace string) {
	for i := range cfgs {
		m.Add(NewPublisher(&cfgs[i], namespace))
	}
}

// StartAll starts the enabled publishers and returns how many started.
func (m *Manager) StartAll() int {
	started := 0
	for _, pub := range m.List() {
		if !pub.config.Enabled || pub.IsRunning() {
			continue
		}
		if err := pub.Start(); err != nil {
			logMQTT("Failed to start %s: %v", pub.Name(), err)
			continue
		}
		logMQTT("Started %s (%s)", pub.Name(), pub.Address())
		started++
	}
	return started
}

// StopAll stops all publishers.
func (m *Manager) StopAll() {
	for _, pub := range m.List() {
		pub.Stop()
	}
}

// AnyRunning reports whether at least one publisher is connected.
func (m *Manager) AnyRunning() bool {
	for _, pub := range m.List() {
		if pub.IsRunning() {
			return true
		}
	}
	return false
}

// Name identifies the manager as an event sink.
func (m *Manager) Name() string {
	return "mqtt"
}

// Publish sends the event through every running publisher.
func (m *Manager) Publish(e events.Event) error {
	var errs []error
	for _, pub := range m.List() {
		if !pub.IsRunning() {
			continue
		}
		if err := pub.Publish(e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", pub.Name(), err))
		}
	}
	return errors.Join(errs...)
}

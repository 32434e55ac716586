// Package config handles configuration persistence for the SignalTap service.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration.
type Config struct {
	Namespace string         `yaml:"namespace"` // root segment for sink topics and keys
	Server    ServerConfig   `yaml:"server"`
	PLC       PLCConfig      `yaml:"plc"`
	Auth      AuthConfig     `yaml:"auth"`
	Logging   LoggingConfig  `yaml:"logging"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Events    EventsConfig   `yaml:"events"`
	MQTT      []MQTTConfig   `yaml:"mqtt,omitempty"`
	Valkey    []ValkeyConfig `yaml:"valkey,omitempty"`
	Kafka     []KafkaConfig  `yaml:"kafka,omitempty"`

	// dataMu protects all fields against concurrent access while saving.
	dataMu sync.Mutex `yaml:"-"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	APIPrefix         string        `yaml:"api_prefix"`
	CORSOrigins       []string      `yaml:"cors_origins"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// Addr returns host:port for the listener.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PLCConfig holds defaults and limits for PLC sessions. Timeouts are seconds.
type PLCConfig struct {
	DefaultSlot       int `yaml:"default_slot"`
	DefaultTimeout    int `yaml:"default_timeout"`
	MaxTimeout        int `yaml:"max_timeout"`
	MaxSessionsPerPLC int `yaml:"max_sessions_per_plc"`
}

// AuthConfig enables HTTP basic auth on the API routes.
type AuthConfig struct {
	Enabled bool      `yaml:"enabled"`
	Realm   string    `yaml:"realm"`
	Users   []APIUser `yaml:"users,omitempty"`
}

// APIUser is a basic auth account.
type APIUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// LoggingConfig holds the service log level.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EventsConfig sizes the event queue feeding the sinks.
type EventsConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// MQTTConfig holds MQTT sink configuration.
type MQTTConfig struct {
	Name      string `yaml:"name"`
	Enabled   bool   `yaml:"enabled"`
	Broker    string `yaml:"broker"`
	Port      int    `yaml:"port"`
	ClientID  string `yaml:"client_id"`
	Username  string `yaml:"username,omitempty"`
	Password  string `yaml:"password,omitempty"`
	UseTLS    bool   `yaml:"use_tls,omitempty"`
	RootTopic string `yaml:"root_topic,omitempty"` // defaults to the namespace
	QoS       byte   `yaml:"qos,omitempty"`
	Retain    bool   `yaml:"retain,omitempty"`
}

// ValkeyConfig holds Valkey/Redis sink configuration.
type ValkeyConfig struct {
	Name           string        `yaml:"name"`
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"` // host:port format
	Password       string        `yaml:"password,omitempty"`
	Database       int           `yaml:"database"`
	UseTLS         bool          `yaml:"use_tls,omitempty"`
	KeyPrefix      string        `yaml:"key_prefix,omitempty"` // defaults to the namespace
	KeyTTL         time.Duration `yaml:"key_ttl,omitempty"`    // 0 = no expiry
	PublishChanges bool          `yaml:"publish_changes,omitempty"`
}

// KafkaConfig holds Kafka sink configuration.
type KafkaConfig struct {
	Name          string   `yaml:"name"`
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic,omitempty"` // defaults to {namespace}.events
	UseTLS        bool     `yaml:"use_tls,omitempty"`
	TLSSkipVerify bool     `yaml:"tls_skip_verify,omitempty"`
	SASLMechanism string   `yaml:"sasl_mechanism,omitempty"` // PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Username      string   `yaml:"username,omitempty"`
	Password      string   `yaml:"password,omitempty"`
	RequiredAcks  int      `yaml:"required_acks,omitempty"` // -1=all, 0=none, 1=leader
	MaxRetries    int      `yaml:"max_retries,omitempty"`
}

// SASL mechanisms accepted for Kafka.
const (
	SASLPlain       = "PLAIN"
	SASLScramSHA256 = "SCRAM-SHA-256"
	SASLScramSHA512 = "SCRAM-SHA-512"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Namespace: "signaltap",
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			APIPrefix:         "/api",
			CORSOrigins:       []string{"*"},
			ReadHeaderTimeout: 10 * time.Second,
		},
		PLC: PLCConfig{
			DefaultSlot:       0,
			DefaultTimeout:    10,
			MaxTimeout:        120,
			MaxSessionsPerPLC: 2,
		},
		Auth: AuthConfig{
			Realm: "SignalTap",
		},
		Logging: LoggingConfig{Level: "info"},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Events:  EventsConfig{QueueSize: 256},
	}
}

// DefaultPath returns the default configuration file path (~/.signaltap/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".signaltap", "config.yaml")
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Keys absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the directory if needed.
func (c *Config) Save(path string) error {
	c.dataMu.Lock()
	data, err := yaml.Marshal(c)
	c.dataMu.Unlock() // release after marshal, before I/O
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	// Password hashes and sink credentials live here.
	return os.WriteFile(path, data, 0600)
}

// PLCDefaultTimeout returns the default PLC timeout as a duration.
func (c *Config) PLCDefaultTimeout() time.Duration {
	return time.Duration(c.PLC.DefaultTimeout) * time.Second
}

// PLCMaxTimeout returns the largest accepted PLC timeout as a duration.
func (c *Config) PLCMaxTimeout() time.Duration {
	return time.Duration(c.PLC.MaxTimeout) * time.Second
}

// FindUser returns the API user with the given username, or nil if not found.
func (c *Config) FindUser(username string) *APIUser {
	for i := range c.Auth.Users {
		if c.Auth.Users[i].Username == username {
			return &c.Auth.Users[i]
		}
	}
	return nil
}

// SetUser adds a user or replaces the hash of an existing one.
func (c *Config) SetUser(user APIUser) {
	if u := c.FindUser(user.Username); u != nil {
		u.PasswordHash = user.PasswordHash
		return
	}
	c.Auth.Users = append(c.Auth.Users, user)
}

// Validate checks the configuration for errors. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Namespace != "" && !IsValidNamespace(c.Namespace) {
		add("invalid namespace %q: must contain only alphanumeric characters, hyphens, underscores and dots", c.Namespace)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port %d out of range", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.APIPrefix, "/") {
		add("server.api_prefix %q must start with /", c.Server.APIPrefix)
	}
	if c.Server.ReadHeaderTimeout < 0 {
		add("server.read_header_timeout must not be negative")
	}

	if c.PLC.DefaultSlot < 0 || c.PLC.DefaultSlot > 255 {
		add("plc.default_slot %d out of range 0-255", c.PLC.DefaultSlot)
	}
	if c.PLC.DefaultTimeout < 1 {
		add("plc.default_timeout must be at least 1 second")
	}
	if c.PLC.MaxTimeout < c.PLC.DefaultTimeout {
		add("plc.max_timeout %d is below plc.default_timeout %d", c.PLC.MaxTimeout, c.PLC.DefaultTimeout)
	}
	if c.PLC.MaxSessionsPerPLC < 1 {
		add("plc.max_sessions_per_plc must be at least 1")
	}

	if c.Auth.Enabled && len(c.Auth.Users) == 0 {
		add("auth is enabled but no users are configured")
	}
	for _, u := range c.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			add("auth user %q needs a username and a password_hash", u.Username)
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level %q must be debug, info, warn or error", c.Logging.Level)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("metrics.path %q must start with /", c.Metrics.Path)
	}
	if c.Events.QueueSize < 1 {
		add("events.queue_size must be at least 1")
	}

	names := make(map[string]bool)
	unique := func(kind, name string) {
		if name == "" {
			add("%s sink without a name", kind)
			return
		}
		key := kind + "/" + name
		if names[key] {
			add("duplicate %s sink %q", kind, name)
		}
		names[key] = true
	}
	for _, m := range c.MQTT {
		unique("mqtt", m.Name)
		if m.Enabled && m.Broker == "" {
			add("mqtt %q: broker is required", m.Name)
		}
		if m.QoS > 2 {
			add("mqtt %q: qos %d must be 0, 1 or 2", m.Name, m.QoS)
		}
	}
	for _, v := range c.Valkey {
		unique("valkey", v.Name)
		if v.Enabled && v.Address == "" {
			add("valkey %q: address is required", v.Name)
		}
	}
	for _, k := range c.Kafka {
		unique("kafka", k.Name)
		if k.Enabled && len(k.Brokers) == 0 {
			add("kafka %q: at least one broker is required", k.Name)
		}
		switch strings.ToUpper(k.SASLMechanism) {
		case "", SASLPlain, SASLScramSHA256, SASLScramSHA512:
		default:
			add("kafka %q: unknown sasl_mechanism %q", k.Name, k.SASLMechanism)
		}
		if k.RequiredAcks < -1 || k.RequiredAcks > 1 {
			add("kafka %q: required_acks %d must be -1, 0 or 1", k.Name, k.RequiredAcks)
		}
	}

	return errors.Join(errs...)
}

// IsValidNamespace returns true if the namespace is valid.
// Valid namespaces contain only alphanumeric characters, hyphens, underscores, and dots.
func IsValidNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for _, r := range ns {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.') {
			return false
		}
	}
	return true
}

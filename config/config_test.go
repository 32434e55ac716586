package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.APIPrefix != "/api" {
		t.Errorf("expected /api prefix, got %s", cfg.Server.APIPrefix)
	}
	if cfg.PLC.DefaultTimeout != 10 || cfg.PLCDefaultTimeout() != 10*time.Second {
		t.Errorf("expected default timeout 10s, got %d", cfg.PLC.DefaultTimeout)
	}
	if cfg.PLC.MaxSessionsPerPLC != 2 {
		t.Errorf("expected 2 sessions per PLC, got %d", cfg.PLC.MaxSessionsPerPLC)
	}
	if cfg.Auth.Enabled {
		t.Error("auth should be off by default")
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("unexpected metrics defaults: %+v", cfg.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadAndSave(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing file yields defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(tmpDir, "nope.yaml"))
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 8000 {
			t.Errorf("expected default port, got %d", cfg.Server.Port)
		}
	})

	t.Run("partial file keeps other defaults", func(t *testing.T) {
		path := filepath.Join(tmpDir, "partial.yaml")
		content := `
server:
  port: 9000
plc:
  max_sessions_per_plc: 4
valkey:
  - name: cache
    enabled: true
    address: localhost:6379
    key_ttl: 30s
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9000 {
			t.Errorf("expected port 9000, got %d", cfg.Server.Port)
		}
		if cfg.Server.Host != "0.0.0.0" {
			t.Errorf("host default lost: %q", cfg.Server.Host)
		}
		if cfg.PLC.MaxSessionsPerPLC != 4 || cfg.PLC.DefaultTimeout != 10 {
			t.Errorf("plc = %+v", cfg.PLC)
		}
		if len(cfg.Valkey) != 1 || cfg.Valkey[0].KeyTTL != 30*time.Second {
			t.Errorf("valkey = %+v", cfg.Valkey)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := filepath.Join(tmpDir, "sub", "config.yaml")
		cfg := DefaultConfig()
		cfg.Auth.Enabled = true
		cfg.SetUser(APIUser{Username: "admin", PasswordHash: "$2a$10$hash"})
		cfg.MQTT = append(cfg.MQTT, MQTTConfig{Name: "plant", Enabled: true, Broker: "broker.local", Port: 1883, QoS: 1})
		cfg.Kafka = append(cfg.Kafka, KafkaConfig{Name: "audit", Brokers: []string{"k1:9092"}, SASLMechanism: SASLScramSHA512})

		if err := cfg.Save(path); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("config written with mode %v", info.Mode().Perm())
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if !loaded.Auth.Enabled || loaded.FindUser("admin") == nil {
			t.Errorf("auth lost: %+v", loaded.Auth)
		}
		if len(loaded.MQTT) != 1 || loaded.MQTT[0].QoS != 1 {
			t.Errorf("mqtt = %+v", loaded.MQTT)
		}
		if len(loaded.Kafka) != 1 || loaded.Kafka[0].SASLMechanism != SASLScramSHA512 {
			t.Errorf("kafka = %+v", loaded.Kafka)
		}
		if loaded.Server.ReadHeaderTimeout != 10*time.Second {
			t.Errorf("read_header_timeout = %v", loaded.Server.ReadHeaderTimeout)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.yaml")
		os.WriteFile(path, []byte("server: [1, 2"), 0644)
		if _, err := Load(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestSetUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetUser(APIUser{Username: "ops", PasswordHash: "one"})
	cfg.SetUser(APIUser{Username: "ops", PasswordHash: "two"})

	if len(cfg.Auth.Users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(cfg.Auth.Users))
	}
	if cfg.FindUser("ops").PasswordHash != "two" {
		t.Error("hash not replaced")
	}
	if cfg.FindUser("nobody") != nil {
		t.Error("found a user that does not exist")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"prefix", func(c *Config) { c.Server.APIPrefix = "api" }, "api_prefix"},
		{"slot", func(c *Config) { c.PLC.DefaultSlot = 300 }, "default_slot"},
		{"timeouts", func(c *Config) { c.PLC.MaxTimeout = 5 }, "max_timeout"},
		{"sessions", func(c *Config) { c.PLC.MaxSessionsPerPLC = 0 }, "max_sessions_per_plc"},
		{"auth without users", func(c *Config) { c.Auth.Enabled = true }, "no users"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"namespace", func(c *Config) { c.Namespace = "a/b" }, "namespace"},
		{"mqtt broker", func(c *Config) {
			c.MQTT = []MQTTConfig{{Name: "m", Enabled: true}}
		}, "broker is required"},
		{"duplicate sink", func(c *Config) {
			c.Valkey = []ValkeyConfig{{Name: "v", Address: "a:1"}, {Name: "v", Address: "b:1"}}
		}, "duplicate valkey"},
		{"sasl", func(c *Config) {
			c.Kafka = []KafkaConfig{{Name: "k", Brokers: []string{"k:9092"}, SASLMechanism: "GSSAPI"}}
		}, "sasl_mechanism"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestIsValidNamespace(t *testing.T) {
	for _, ns := range []string{"signaltap", "plant-1", "site_a.line2"} {
		if !IsValidNamespace(ns) {
			t.Errorf("IsValidNamespace(%q) = false", ns)
		}
	}
	for _, ns := range []string{"", "a b", "a/b", "a:b"} {
		if IsValidNamespace(ns) {
			t.Errorf("IsValidNamespace(%q) = true", ns)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	path := DefaultPath()
	if !strings.HasSuffix(path, filepath.Join(".signaltap", "config.yaml")) && path != "config.yaml" {
		t.Errorf("unexpected default path %q", path)
	}
}

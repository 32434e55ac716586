package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"signaltap/config"
	"signaltap/events"
)

func readEvent() events.Event {
	return events.Event{
		Type:      events.TagRead,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		PLC:       "192.168.1.10",
		Slot:      0,
		Tag:       "Speed",
		DataType:  "DINT",
		Value:     int32(1500),
		Success:   true,
	}
}

// TestPublisher_NewPublisher tests publisher creation.
func TestPublisher_NewPublisher(t *testing.T) {
	cfg := &config.MQTTConfig{
		Name:    "test",
		Broker:  "localhost",
		Port:    1883,
		Enabled: true,
	}
	pub := NewPublisher(cfg, "signaltap")

	if pub.Name() != "test" {
		t.Errorf("expected name 'test', got %q", pub.Name())
	}
	if pub.IsRunning() {
		t.Error("new publisher should not be running")
	}
	if got := pub.BuildTopic("10.0.0.1/0", "Speed"); got != "signaltap/10.0.0.1/0/tags/Speed" {
		t.Errorf("namespace should be the root topic, got %q", got)
	}
}

// TestPublisher_RootTopic tests that a configured root topic wins.
func TestPublisher_RootTopic(t *testing.T) {
	pub := NewPublisher(&config.MQTTConfig{RootTopic: "/plant/line1/"}, "signaltap")

	if got := pub.BuildTopic("10.0.0.1/2", "Temp"); got != "plant/line1/10.0.0.1/2/tags/Temp" {
		t.Errorf("BuildTopic = %q", got)
	}
	if got := pub.WriteTopic("10.0.0.1/2", "Temp"); got != "plant/line1/10.0.0.1/2/write/Temp/response" {
		t.Errorf("WriteTopic = %q", got)
	}
}

// TestPublisher_Address tests address formatting.
func TestPublisher_Address(t *testing.T) {
	tests := []struct {
		name string
		tls  bool
		port int
		want string
	}{
		{"tcp address", false, 1883, "tcp://localhost:1883"},
		{"ssl address", true, 8883, "ssl://localhost:8883"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := NewPublisher(&config.MQTTConfig{Broker: "localhost", Port: tt.port, UseTLS: tt.tls}, "test")
			if got := pub.Address(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestPublisher_Message tests which events are published and their payloads.
func TestPublisher_Message(t *testing.T) {
	pub := NewPublisher(&config.MQTTConfig{Name: "m"}, "signaltap")

	t.Run("successful read", func(t *testing.T) {
		topic, payload, ok := pub.Message(readEvent())
		if !ok {
			t.Fatal("read should be published")
		}
		if topic != "signaltap/192.168.1.10/0/tags/Speed" {
			t.Errorf("topic = %q", topic)
		}

		var decoded map[string]any
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("unmarshal error: %v", err)
		}
		for _, field := range []string{"topic", "plc", "tag", "value", "type", "timestamp"} {
			if _, ok := decoded[field]; !ok {
				t.Errorf("missing required field: %s", field)
			}
		}
		if decoded["value"] != float64(1500) {
			t.Errorf("value = %v", decoded["value"])
		}
		if decoded["timestamp"] != "2024-03-01T12:00:00Z" {
			t.Errorf("timestamp = %v", decoded["timestamp"])
		}
	})

	t.Run("failed read is skipped", func(t *testing.T) {
		e := readEvent()
		e.Success = false
		e.Error = "tag not found"
		if _, _, ok := pub.Message(e); ok {
			t.Error("failed read should not be published")
		}
	})

	t.Run("failed write carries the error", func(t *testing.T) {
		e := readEvent()
		e.Type = events.TagWritten
		e.Success = false
		e.Error = "bad value"

		topic, payload, ok := pub.Message(e)
		if !ok {
			t.Fatal("write should be published")
		}
		if topic != "signaltap/192.168.1.10/0/write/Speed/response" {
			t.Errorf("topic = %q", topic)
		}
		var resp WriteResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Success || resp.Error != "bad value" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("scans and tests are skipped", func(t *testing.T) {
		for _, typ := range []events.Type{events.TagsScanned, events.ConnectionTested} {
			if _, _, ok := pub.Message(events.Event{Type: typ, Success: true}); ok {
				t.Errorf("%s should not be published", typ)
			}
		}
	})
}

func TestPublisher_PublishNotRunning(t *testing.T) {
	pub := NewPublisher(&config.MQTTConfig{Name: "m"}, "signaltap")
	if err := pub.Publish(readEvent()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
	pub.Stop()
}

func TestManager(t *testing.T) {
	m := NewManager()
	m.LoadFromConfig([]config.MQTTConfig{
		{Name: "b", Broker: "b.local", Port: 1883},
		{Name: "a", Broker: "a.local", Port: 1883},
	}, "signaltap")

	list := m.List()
	if len(list) != 2 || list[0].Name() != "a" || list[1].Name() != "b" {
		t.Fatalf("List = %v", list)
	}
	if m.Get("a") == nil || m.Get("missing") != nil {
		t.Error("Get lookup wrong")
	}

	// Nothing enabled, nothing started.
	if n := m.StartAll(); n != 0 {
		t.Errorf("StartAll started %d", n)
	}
	if m.AnyRunning() {
		t.Error("no publisher should be running")
	}
	// Stopped publishers are skipped, not reported.
	if err := m.Publish(readEvent()); err != nil {
		t.Errorf("Publish with nothing running: %v", err)
	}
	if m.Name() != "mqtt" {
		t.Errorf("Name = %q", m.Name())
	}
	m.StopAll()
}

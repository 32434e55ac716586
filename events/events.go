// Package events carries the outcome of PLC reads and writes to optional
// sinks (MQTT, Valkey, Kafka) without holding up the request that caused them.
package events

import (
	"fmt"
	"time"
)

// Type identifies the kind of event.
type Type int

const (
	TagRead Type = iota + 1
	TagWritten
	TagsScanned
	ConnectionTested
)

var typeNames = map[Type]string{
	TagRead:          "tag_read",
	TagWritten:       "tag_written",
	TagsScanned:      "tags_scanned",
	ConnectionTested: "connection_tested",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type_%d", int(t))
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is one PLC operation outcome.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	PLC       string    `json:"plc"` // ip address
	Slot      int       `json:"slot"`
	Tag       string    `json:"tag,omitempty"`
	DataType  string    `json:"data_type,omitempty"`
	Value     any       `json:"value,omitempty"`
	Count     int       `json:"count,omitempty"` // tags found by a scan
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

// Source returns "ip/slot", the PLC segment used in topics and keys.
func (e Event) Source() string {
	return fmt.Sprintf("%s/%d", e.PLC, e.Slot)
}

// Sink receives events from the bus. Publish runs on the bus goroutine and
// should not block for long.
type Sink interface {
	Name() string
	Publish(e Event) error
}

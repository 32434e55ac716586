package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"signaltap/config"
	"signaltap/events"
	"signaltap/logging"
)

// publishJob is a pending write to one producer.
type publishJob struct {
	producer *Producer
	key      []byte
	payload  []byte
}

// MaxPublishWorkers is the number of goroutines writing to Kafka.
const MaxPublishWorkers = 4

// MaxPublishQueueSize is the maximum number of pending publish jobs.
const MaxPublishQueueSize = 1000

// Manager manages multiple Kafka producers and writes events through a
// bounded worker pool, so a slow cluster never stalls the event bus.
type Manager struct {
	producers map[string]*Producer
	mu        sync.RWMutex

	publishQueue chan publishJob
	wg           sync.WaitGroup
	stopOnce     sync.Once
}

// NewManager creates a manager and starts its workers.
func NewManager() *Manager {
	m := &Manager{
		producers:    make(map[string]*Producer),
		publishQueue: make(chan publishJob, MaxPublishQueueSize),
	}
	for i := 0; i < MaxPublishWorkers; i++ {
		m.wg.Add(1)
		go m.publishWorker()
	}
	return m
}

func (m *Manager) publishWorker() {
	defer m.wg.Done()

	for job := range m.publishQueue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := job.producer.Produce(ctx, job.key, job.payload); err != nil {
			logKafka("Failed to publish %s: %v", job.key, err)
		}
		cancel()
	}
}

// LoadFromConfig creates producers from configuration.
func (m *Manager) LoadFromConfig(cfgs []config.KafkaConfig, namespace string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range cfgs {
		m.producers[cfgs[i].Name] = NewProducer(&cfgs[i], namespace)
	}
}

// GetProducer returns a producer by cluster name.
func (m *Manager) GetProducer(name string) *Producer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.producers[name]
}

// List returns all producers sorted by name.
func (m *Manager) List() []*Producer {
	m.mu.RLock()
	result := make([]*Producer, 0, len(m.producers))
	for _, p := range m.producers {
		result = append(result, p)
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// StartAll connects the enabled clusters and returns how many connected.
func (m *Manager) StartAll() int {
	started := 0
	for _, p := range m.List() {
		if !p.config.Enabled || p.GetStatus() == StatusConnected {
			continue
		}
		if err := p.Connect(); err != nil {
			logKafka("Failed to connect %s: %v", p.Name(), err)
			continue
		}
		started++
	}
	return started
}

// StopAll stops the workers, waits for queued messages and disconnects.
// The manager cannot be restarted.
func (m *Manager) StopAll() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		close(m.publishQueue)
		m.publishQueue = nil
		m.mu.Unlock()
		m.wg.Wait()
	})
	for _, p := range m.List() {
		p.Disconnect()
	}
}

// AnyPublishing reports whether at least one cluster is connected.
func (m *Manager) AnyPublishing() bool {
	for _, p := range m.List() {
		if p.GetStatus() == StatusConnected {
			return true
		}
	}
	return false
}

// Name identifies the manager as an event sink.
func (m *Manager) Name() string {
	return "kafka"
}

// MessageKey returns the partition key for an event: the PLC source, plus
// the tag when there is one, so a tag's events stay ordered.
func MessageKey(e events.Event) []byte {
	if e.Tag == "" {
		return []byte(e.Source())
	}
	return []byte(e.Source() + "." + e.Tag)
}

// Publish queues the event for every connected cluster. Every event type is
// published. A full queue drops the event.
func (m *Manager) Publish(e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := MessageKey(e)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.publishQueue == nil {
		return fmt.Errorf("kafka manager stopped")
	}

	dropped := 0
	for _, p := range m.producers {
		if p.GetStatus() != StatusConnected {
			continue
		}
		select {
		case m.publishQueue <- publishJob{producer: p, key: key, payload: payload}:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("publish queue full, dropped %s for %d clusters", key, dropped)
	}
	return nil
}

func logKafka(format string, args ...any) {
	logging.DebugLog("kafka", format, args...)
}

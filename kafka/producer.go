package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"signaltap/config"
	"signaltap/logging"
)

// ConnectionStatus represents the state of a Kafka connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "Disconnected"
	case StatusConnecting:
		return "Connecting"
	case StatusConnected:
		return "Connected"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Producer writes events to one cluster's topic.
type Producer struct {
	config *config.KafkaConfig
	topic  string
	writer *kafka.Writer
	status ConnectionStatus

	lastErr error
	mu      sync.RWMutex

	messagesSent  int64
	messagesError int64
	lastSendTime  time.Time
}

// NewProducer creates a producer for the configured or namespace topic.
func NewProducer(cfg *config.KafkaConfig, namespace string) *Producer {
	return &Producer{
		config: cfg,
		topic:  TopicFor(cfg, namespace),
		status: StatusDisconnected,
	}
}

// Name returns the cluster's configured name.
func (p *Producer) Name() string {
	return p.config.Name
}

// Topic returns the topic events are written to.
func (p *Producer) Topic() string {
	return p.topic
}

// GetStatus returns the current connection status.
func (p *Producer) GetStatus() ConnectionStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// GetError returns the last error.
func (p *Producer) GetError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

// GetStats returns producer statistics.
func (p *Producer) GetStats() (sent, errors int64, lastSend time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.messagesSent, p.messagesError, p.lastSendTime
}

func (p *Producer) fail(err error) error {
	p.mu.Lock()
	p.status = StatusError
	p.lastErr = err
	p.mu.Unlock()
	logging.DebugLog("kafka", "CONNECT %s: FAILED - %v", p.config.Name, err)
	return err
}

// Connect checks that a broker answers, then creates the topic writer.
func (p *Producer) Connect() error {
	if len(p.config.Brokers) == 0 {
		return p.fail(fmt.Errorf("no brokers configured"))
	}
	mechanism, err := SASLMechanism(p.config)
	if err != nil {
		return p.fail(err)
	}

	p.mu.Lock()
	p.status = StatusConnecting
	p.lastErr = nil
	p.mu.Unlock()

	logging.DebugLog("kafka", "CONNECT %s: connecting to brokers %v", p.config.Name, p.config.Brokers)

	dialer := &kafka.Dialer{
		Timeout:       10 * time.Second,
		DualStack:     true,
		TLS:           TLSConfig(p.config),
		SASLMechanism: mechanism,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := dialer.DialContext(ctx, "tcp", p.config.Brokers[0])
	if err != nil {
		return p.fail(fmt.Errorf("failed to connect: %w", err))
	}
	conn.Close()

	acks := p.config.RequiredAcks
	if acks == 0 {
		acks = DefaultRequiredAcks
	}
	retries := p.config.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	writer := &kafka.Writer{
		Addr:     kafka.TCP(p.config.Brokers...),
		Topic:    p.topic,
		Balancer: &kafka.Hash{},
		Transport: &kafka.Transport{
			DialTimeout: 10 * time.Second,
			TLS:         TLSConfig(p.config),
			SASL:        mechanism,
		},
		RequiredAcks:           kafka.RequiredAcks(acks),
		MaxAttempts:            retries,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}

	p.mu.Lock()
	old := p.writer
	p.writer = writer
	p.status = StatusConnected
	p.mu.Unlock()
	if old != nil {
		old.Close()
	}

	logging.DebugLog("kafka", "CONNECT %s: connected, writing to topic '%s'", p.config.Name, p.topic)
	return nil
}

// Disconnect closes the writer.
func (p *Producer) Disconnect() {
	p.mu.Lock()
	writer := p.writer
	p.writer = nil
	p.status = StatusDisconnected
	p.lastErr = nil
	p.mu.Unlock()

	if writer != nil {
		writer.Close()
		logging.DebugLog("kafka", "DISCONNECT %s: disconnected", p.config.Name)
	}
}

// Produce sends one message and waits for the acknowledgement.
func (p *Producer) Produce(ctx context.Context, key, value []byte) error {
	p.mu.RLock()
	writer := p.writer
	status := p.status
	p.mu.RUnlock()
	if status != StatusConnected || writer == nil {
		return fmt.Errorf("kafka cluster '%s' not connected", p.config.Name)
	}

	start := time.Now()
	err := writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value, Time: start})
	if err != nil {
		p.mu.Lock()
		p.messagesError++
		p.lastErr = err
		p.mu.Unlock()
		logging.DebugLog("kafka", "PRODUCE %s: FAILED topic '%s' after %v: %v", p.config.Name, p.topic, time.Since(start), err)
		return fmt.Errorf("kafka produce failed: %w", err)
	}

	if d := time.Since(start); d > 100*time.Millisecond {
		logging.DebugLog("kafka", "PRODUCE %s: topic '%s' took %v", p.config.Name, p.topic, d)
	}

	p.mu.Lock()
	p.messagesSent++
	p.lastSendTime = time.Now()
	p.lastErr = nil
	p.mu.Unlock()
	return nil
}

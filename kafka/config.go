// Package kafka streams PLC operation events to Kafka topics.
package kafka

import (
	"crypto/tls"
	"fmt"

	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"

	"signaltap/config"
)

// Defaults applied to unset producer settings.
const (
	DefaultRequiredAcks = -1 // all replicas
	DefaultMaxRetries   = 3
)

// TopicFor returns the configured topic or {namespace}.events.
func TopicFor(cfg *config.KafkaConfig, namespace string) string {
	if cfg.Topic != "" {
		return cfg.Topic
	}
	return namespace + ".events"
}

// TLSConfig returns a TLS configuration, or nil if TLS is disabled.
func TLSConfig(cfg *config.KafkaConfig) *tls.Config {
	if !cfg.UseTLS {
		return nil
	}
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.TLSSkipVerify,
	}
}

// SASLMechanism returns the configured SASL mechanism. No username means no
// authentication.
func SASLMechanism(cfg *config.KafkaConfig) (sasl.Mechanism, error) {
	if cfg.Username == "" {
		return nil, nil
	}

	switch cfg.SASLMechanism {
	case "", config.SASLPlain:
		return plain.Mechanism{
			Username: cfg.Username,
			Password: cfg.Password,
		}, nil
	case config.SASLScramSHA256:
		return scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
	case config.SASLScramSHA512:
		return scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism %q", cfg.SASLMechanism)
	}
}

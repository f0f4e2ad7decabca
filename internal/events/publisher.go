// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"consent-reading-service/internal/observability/metrics"
)

// Default topic names.
const (
	DefaultTopicProgress  = "consent.reading.progress"
	DefaultTopicCompleted = "consent.reading.completed"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher publishes reading events to separate Kafka topics: per-statement
// progress and per-session completion.
type Publisher struct {
	writerProgress  messageWriter
	writerCompleted messageWriter
	principal       string
	topicProgress   string
	topicCompleted  string
	enabled         bool
	metrics         *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers        []string
	TopicProgress  string
	TopicCompleted string
	Principal      string
	Enabled        bool
}

// New creates a new Kafka event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	// Handle nil config case
	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			topicProgress:  DefaultTopicProgress,
			topicCompleted: DefaultTopicCompleted,
			metrics:        m,
		}
	}

	topicProgress := orDefault(cfg.TopicProgress, DefaultTopicProgress)
	topicCompleted := orDefault(cfg.TopicCompleted, DefaultTopicCompleted)

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:      cfg.Principal,
			topicProgress:  topicProgress,
			topicCompleted: topicCompleted,
			metrics:        m,
		}
	}

	// Custom dialer with longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // keep a session's events on one partition
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			Transport:    transport,
		}
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicProgress", topicProgress).
		Str("topicCompleted", topicCompleted).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerProgress:  newWriter(topicProgress),
		writerCompleted: newWriter(topicCompleted),
		principal:       cfg.Principal,
		topicProgress:   topicProgress,
		topicCompleted:  topicCompleted,
		enabled:         true,
		metrics:         m,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Enabled reports whether events reach Kafka rather than only the log.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

// PublishProgress publishes a statement-completed event to the progress topic.
func (p *Publisher) PublishProgress(ctx context.Context, key, eventType string, event any) error {
	return p.publish(ctx, p.writerProgress, p.topicProgress, eventType, key, event)
}

// PublishCompleted publishes a session event to the completed topic.
func (p *Publisher) PublishCompleted(ctx context.Context, key, eventType string, event any) error {
	return p.publish(ctx, p.writerCompleted, p.topicCompleted, eventType, key, event)
}

// publish is the internal method that writes to a specific Kafka writer.
func (p *Publisher) publish(ctx context.Context, writer messageWriter, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var errs []error
	if p.writerProgress != nil {
		if e := p.writerProgress.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing progress writer")
			errs = append(errs, e)
		}
	}
	if p.writerCompleted != nil {
		if e := p.writerCompleted.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing completed writer")
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"neostack/eventservice/pkg/logging"
)

const kafkaOpTimeout = 5 * time.Second

// KafkaBroker publishes events to a single topic, using the channel name as
// the record key so all events for one channel stay ordered within a
// partition. The channel also rides along as a header for consumers that
// filter without decoding the body.
type KafkaBroker struct {
	brokers []string
	topic   string
	logger  logging.Logger
	client  *kgo.Client
}

// NewKafkaBroker creates a Kafka-backed broker. The connection is not opened
// until Connect.
func NewKafkaBroker(brokers []string, topic string, logger logging.Logger) *KafkaBroker {
	return &KafkaBroker{
		brokers: brokers,
		topic:   topic,
		logger:  logger,
	}
}

// Connect creates the franz-go client and verifies broker reachability.
func (b *KafkaBroker) Connect(ctx context.Context) error {
	if len(b.brokers) == 0 {
		return fmt.Errorf("at least one kafka broker is required")
	}
	if b.topic == "" {
		return fmt.Errorf("kafka topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(b.brokers...),
		kgo.ClientID("herald"),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1000000),
	)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, kafkaOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return fmt.Errorf("ping kafka: %w", err)
	}

	b.client = client
	b.logger.WithFields(logging.Fields{
		"brokers": b.brokers,
		"topic":   b.topic,
	}).Info("Connected to Kafka broker")
	return nil
}

// Publish produces one record keyed by channel.
func (b *KafkaBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.client == nil {
		return fmt.Errorf("kafka broker not connected")
	}

	record := &kgo.Record{
		Topic: b.topic,
		Key:   []byte(channel),
		Value: payload,
		Headers: []kgo.RecordHeader{
			{Key: "channel", Value: []byte(channel)},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaOpTimeout)
	defer cancel()

	if err := b.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce: %w", err)
	}
	return nil
}

// HealthCheck pings the cluster.
func (b *KafkaBroker) HealthCheck(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("kafka broker not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaOpTimeout)
	defer cancel()

	if err := b.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check: %w", err)
	}
	return nil
}

// Close releases the producer.
func (b *KafkaBroker) Close() error {
	if b.client != nil {
		b.client.Close()
	}
	return nil
}

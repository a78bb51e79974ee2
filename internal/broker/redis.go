package broker

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"neostack/eventservice/pkg/logging"
)

const redisOpTimeout = 5 * time.Second

// RedisBroker publishes through Redis pub/sub. One PUBLISH per event; the
// broker fans out to whatever is subscribed on the other side.
type RedisBroker struct {
	url    string
	logger logging.Logger
	client goredis.UniversalClient
}

// NewRedisBroker creates a Redis-backed broker for the given URL. The
// connection is not opened until Connect.
func NewRedisBroker(url string, logger logging.Logger) *RedisBroker {
	return &RedisBroker{
		url:    url,
		logger: logger,
	}
}

// Connect parses the URL, opens the connection and verifies it with a ping.
func (b *RedisBroker) Connect(ctx context.Context) error {
	if b.url == "" {
		return fmt.Errorf("redis url is required")
	}

	opts, err := goredis.ParseURL(b.url)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = redisOpTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = redisOpTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = redisOpTimeout
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping redis: %w", err)
	}

	b.client = client
	b.logger.WithField("addr", opts.Addr).Info("Connected to Redis broker")
	return nil
}

// Publish delivers payload to channel via PUBLISH. Bounded so a slow broker
// never hangs the publishing handler.
func (b *RedisBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.client == nil {
		return fmt.Errorf("redis broker not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// HealthCheck pings the connection.
func (b *RedisBroker) HealthCheck(ctx context.Context) error {
	if b.client == nil {
		return fmt.Errorf("redis broker not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// Close releases the connection.
func (b *RedisBroker) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

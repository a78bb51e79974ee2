// Package broker abstracts the pub/sub backend the gateway publishes
// through. Channel semantics live in the gateway; a backend only needs to
// move opaque payloads to named channels.
package broker

import "context"

// Client is one pub/sub backend connection.
type Client interface {
	// Connect establishes the backend connection. It must be called before
	// Publish and is safe to call once per client.
	Connect(ctx context.Context) error
	// Publish delivers payload to the named channel.
	Publish(ctx context.Context, channel string, payload []byte) error
	// HealthCheck reports whether the backend is reachable.
	HealthCheck(ctx context.Context) error
	// Close releases the connection. The client cannot be reused after.
	Close() error
}

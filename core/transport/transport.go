package transport

import "context"

// Transport is the broker boundary the engine depends on. Publishes are
// fire-and-forget with persistent delivery; durability past the publish is
// the broker's job.
type Transport interface {
	// Publish routes a payload to the durable queue bound under routingKey.
	Publish(ctx context.Context, routingKey string, body []byte) error

	// Consume delivers messages from queue to handler, one at a time,
	// acknowledging each delivery after the handler returns. It blocks
	// until ctx is done or the connection fails.
	Consume(ctx context.Context, queue string, handler Handler) error

	// Close tears down the underlying connection.
	Close() error
}

// Handler processes one delivery. The returned error is logged by the
// consumer; the delivery is acknowledged either way, because completion
// handling is idempotent against the ledger and a crash-looping redelivery
// would stall every image behind it.
type Handler func(ctx context.Context, body []byte) error

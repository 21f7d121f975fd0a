// Package queue defines the interface for the durable work queue.
// The broker owns a message from delivery until the consumer deletes
// it; an undeleted message becomes visible again after its lease
// expires, which is the only retry mechanism at the transport level.
package queue

import (
	"context"
	"time"
)

// Message is one delivered unit of work. ReceiptHandle identifies
// this delivery for Delete; ReceiveCount is the broker's approximate
// count of deliveries, starting at 1.
type Message struct {
	Body          []byte
	ReceiptHandle string
	ReceiveCount  int
}

// Provider is the common interface for the work queue. Implementations
// must give at-least-once delivery with a per-message visibility lease.
type Provider interface {
	// Send enqueues one message body.
	Send(ctx context.Context, body []byte) error

	// Receive long-polls for up to maxMessages, waiting at most wait
	// before returning an empty slice. Delivered messages stay hidden
	// from other consumers until deleted or their lease expires.
	Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]Message, error)

	// Delete acknowledges one delivery, removing the message for good.
	Delete(ctx context.Context, receiptHandle string) error

	// Close releases any client connections.
	Close() error
}

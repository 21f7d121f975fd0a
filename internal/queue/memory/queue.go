// Package memory provides a queue implementation for local
// development and tests. It mimics broker semantics: delivered
// messages are leased for a visibility window, tracked with a receive
// count, and redelivered if not deleted before the lease expires.
package memory

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"cepcrawler/internal/queue"
)

const pollInterval = 5 * time.Millisecond

type stored struct {
	id             int
	body           []byte
	receiveCount   int
	invisibleUntil time.Time
}

// Queue is an in-memory queue.Provider with visibility leases.
type Queue struct {
	mu         sync.Mutex
	messages   []*stored
	nextID     int
	visibility time.Duration
	closed     bool
}

// NewQueue constructs a queue whose deliveries stay invisible for the
// given visibility window.
func NewQueue(visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	return &Queue{visibility: visibility}
}

// Send enqueues one message body.
func (q *Queue) Send(_ context.Context, body []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errors.New("queue closed")
	}
	q.nextID++
	copied := make([]byte, len(body))
	copy(copied, body)
	q.messages = append(q.messages, &stored{id: q.nextID, body: copied})
	return nil
}

// Receive returns up to maxMessages currently visible messages,
// leasing each for the visibility window. It polls until wait elapses
// or the context ends, then returns whatever it has (possibly none).
func (q *Queue) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]queue.Message, error) {
	if maxMessages < 1 {
		maxMessages = 1
	}
	deadline := time.Now().Add(wait)

	for {
		if msgs := q.takeVisible(maxMessages); len(msgs) > 0 {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (q *Queue) takeVisible(maxMessages int) []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var out []queue.Message
	for _, m := range q.messages {
		if len(out) == maxMessages {
			break
		}
		if m.invisibleUntil.After(now) {
			continue
		}
		m.receiveCount++
		m.invisibleUntil = now.Add(q.visibility)
		out = append(out, queue.Message{
			Body:          m.body,
			ReceiptHandle: strconv.Itoa(m.id) + ":" + strconv.Itoa(m.receiveCount),
			ReceiveCount:  m.receiveCount,
		})
	}
	return out
}

// Delete removes the message identified by the receipt handle. A
// handle from an expired lease still deletes the message; that matches
// broker behavior closely enough for tests.
func (q *Queue) Delete(_ context.Context, receiptHandle string) error {
	idPart, _, ok := strings.Cut(receiptHandle, ":")
	if !ok {
		return errors.New("malformed receipt handle")
	}
	id, err := strconv.Atoi(idPart)
	if err != nil {
		return errors.New("malformed receipt handle")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.id == id {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	// Already deleted; deleting twice is harmless.
	return nil
}

// Close marks the queue closed for sends.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// Len reports how many messages are stored, visible or not.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

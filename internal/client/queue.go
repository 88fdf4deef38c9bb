package client

import (
	"sync"

	"github.com/houseofmisfits/willow/internal/platform"
)

// messageQueue is a thread-safe FIFO queue for inbound messages.
//
// The queue is unbounded so a burst from the gateway never blocks the
// receive goroutine. Thread-safety covers external enqueuing (the gateway
// callback) while the Core's Run loop dequeues.
//
// A buffered signal channel (size 1) coalesces availability notifications
// and lets the Run loop wait with context awareness.
type messageQueue struct {
	mu       sync.Mutex
	messages []*platform.Message
	closed   bool
	signal   chan struct{}
}

func newMessageQueue() *messageQueue {
	return &messageQueue{
		messages: make([]*platform.Message, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the back of the queue.
// Returns false if the queue is closed.
func (q *messageQueue) Enqueue(msg *platform.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.messages = append(q.messages, msg)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (nil, false) if the queue is empty.
func (q *messageQueue) TryDequeue() (*platform.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return nil, false
	}
	msg := q.messages[0]

	// Nil out the slot so the backing array does not retain the message
	// until reallocation.
	q.messages[0] = nil
	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
	}
	return msg, true
}

// Wait returns a channel that signals when messages may be available. The
// channel closes when the queue closes, waking all waiters.
func (q *messageQueue) Wait() <-chan struct{} {
	return q.signal
}

func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Close signals that no more messages will be enqueued.
func (q *messageQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

package message

import "sync"

// Queue is an unbounded FIFO safe for one producer and one consumer running
// on different goroutines. Push and Pop never block.
type Queue struct {
	mu     sync.Mutex
	items  []Message
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends m and signals Notify. Signals coalesce: several pushes before
// the consumer wakes up produce one notification.
func (q *Queue) Push(m Message) {
	if m == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the oldest message. ok is false when the queue is empty.
func (q *Queue) Pop() (m Message, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	m = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return m, true
}

// Len returns the number of queued messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify fires after a Push. Consumers must drain with Pop until empty
// after each wake-up.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

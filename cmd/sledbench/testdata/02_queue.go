package queue

import (
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue is closed")

// Queue is a bounded FIFO with blocking semantics.
type Queue struct {
	mu      sync.Mutex
	notFull *sync.Cond
	notEmpt *sync.Cond

	buf    []any
	head   int
	tail   int
	count  int
	closed bool
}

func New(capacity int) *Queue {
	q := &Queue{buf: make([]any, capacity)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpt = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Push(v any) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == len(q.buf) && !q.closed {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}

	q.buf[q.tail] = v
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.notEmpt.Signal()
	return nil
}

func (q *Queue) Pop() (any, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpt.Wait()
	}
	if q.count == 0 {
		return nil, ErrClosed
	}

	v := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	return v, nil
}

func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpt.Broadcast()
}

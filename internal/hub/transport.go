package hub

import (
	"errors"
	"sync"
)

// ErrSendBufferFull is returned when a slow client's outbound queue is full.
var ErrSendBufferFull = errors.New("send buffer full")

const defaultSendBuffer = 64

// queue is a bounded outbound buffer shared by the network transports. The
// writer goroutine drains Messages until it is closed.
type queue struct {
	mu     sync.Mutex
	closed bool
	out    chan []byte
}

func newQueue(size int) *queue {
	if size <= 0 {
		size = defaultSendBuffer
	}
	return &queue{out: make(chan []byte, size)}
}

// Send enqueues data without blocking.
func (q *queue) Send(data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrTransportClosed
	}
	select {
	case q.out <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting messages and releases the writer. Safe to call twice.
func (q *queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.out)
	}
	return nil
}

// Open reports whether Close has not been called.
func (q *queue) Open() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.closed
}

// Messages is closed after Close once buffered messages are consumed.
func (q *queue) Messages() <-chan []byte {
	return q.out
}

package service

import (
	"sync"
	"timebot/internal/core/domain"
)

// Mailbox is an unbounded FIFO queue with any number of producers and a single consumer.
// Send never blocks. Items are delivered through the channel returned by Receive, which is
// closed once the mailbox is closed and every queued item has been delivered. The delivery
// goroutine only starts with the first Receive, so a mailbox nobody reads from holds none.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool

	notify   chan struct{}
	out      chan T
	stop     chan struct{}
	stopOnce sync.Once
	pumpOnce sync.Once
}

func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{
		notify: make(chan struct{}, 1),
		out:    make(chan T),
		stop:   make(chan struct{}),
	}
}

// Send enqueues v. It fails with domain.ErrMailboxClosed once the mailbox is closed.
func (m *Mailbox[T]) Send(v T) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return domain.ErrMailboxClosed
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	m.wake()

	return nil
}

func (m *Mailbox[T]) Receive() <-chan T {
	m.pumpOnce.Do(func() { go m.pump() })

	return m.out
}

// Close rejects further sends. Items already queued are still delivered.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.wake()
}

// Discard closes the mailbox and drops whatever is still queued.
func (m *Mailbox[T]) Discard() {
	m.Close()
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.queue)
}

func (m *Mailbox[T]) wake() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Mailbox[T]) pump() {
	defer close(m.out)

	for {
		select {
		case <-m.stop:
			return
		default:
		}

		m.mu.Lock()
		if len(m.queue) == 0 {
			closed := m.closed
			m.queue = nil
			m.mu.Unlock()

			if closed {
				return
			}

			select {
			case <-m.notify:
				continue
			case <-m.stop:
				return
			}
		}

		v := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.stop:
			return
		}
	}
}

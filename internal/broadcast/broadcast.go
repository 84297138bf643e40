// Package broadcast fans values out to many readers without letting a slow
// reader block the producer or reorder what it sees.
package broadcast

import "sync"

// Mailbox is an unbounded, ordered queue drained into a channel.
type Mailbox[T any] struct {
	mu     sync.Mutex
	queue  []T
	closed bool

	notify chan struct{}
	out    chan T
	done   chan struct{}
}

// NewMailbox starts a mailbox. Close must be called to release its goroutine.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{
		notify: make(chan struct{}, 1),
		out:    make(chan T),
		done:   make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailbox[T]) run() {
	defer close(m.out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.notify:
				continue
			case <-m.done:
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
		case <-m.done:
			return
		}
	}
}

// Put enqueues v. It never blocks and reports false after Close.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, v)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return true
}

// C delivers queued values in Put order. It is closed after Close.
func (m *Mailbox[T]) C() <-chan T { return m.out }

// Len returns the number of undelivered values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Close drops undelivered values and closes C. It is idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	close(m.done)
}

// Broadcaster delivers every published value to all subscribers. When
// replay is enabled, new subscribers first receive the latest value.
type Broadcaster[T any] struct {
	mu      sync.Mutex
	subs    map[*Mailbox[T]]struct{}
	replay  bool
	latest  T
	hasLast bool
	closed  bool
}

// New returns a Broadcaster. replay controls catch-up for late subscribers.
func New[T any](replay bool) *Broadcaster[T] {
	return &Broadcaster[T]{subs: map[*Mailbox[T]]struct{}{}, replay: replay}
}

// Subscribe registers a new mailbox. After Close it returns a closed mailbox.
func (b *Broadcaster[T]) Subscribe() *Mailbox[T] {
	m := NewMailbox[T]()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		m.Close()
		return m
	}
	if b.replay && b.hasLast {
		m.Put(b.latest)
	}
	b.subs[m] = struct{}{}
	return m
}

// Unsubscribe removes and closes m.
func (b *Broadcaster[T]) Unsubscribe(m *Mailbox[T]) {
	b.mu.Lock()
	delete(b.subs, m)
	b.mu.Unlock()
	m.Close()
}

// Publish enqueues v for every subscriber.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest, b.hasLast = v, true
	for m := range b.subs {
		m.Put(v)
	}
}

// Latest returns the last published value.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLast
}

// Len returns the number of subscribers.
func (b *Broadcaster[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes all mailboxes. Later Publish calls are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for m := range b.subs {
		m.Close()
	}
	b.subs = nil
}

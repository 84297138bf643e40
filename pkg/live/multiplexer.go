package live

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcore/internal/broadcast"
	"github.com/sttts/kcore/pkg/resources"
)

// Options tune reconnect behaviour.
type Options struct {
	// Backoff is the delay schedule between failed attempts. It is reset
	// after every successful list.
	Backoff wait.Backoff
	// UnavailableAfter is the number of consecutive failures after which
	// subscribers receive an Unavailable snapshot.
	UnavailableAfter int
	// PollInterval is used for transports without streaming support.
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       logr.Logger
}

// DefaultBackoff is a capped exponential backoff with jitter.
func DefaultBackoff() wait.Backoff {
	return wait.Backoff{
		Duration: 500 * time.Millisecond,
		Factor:   2,
		Jitter:   0.2,
		Steps:    math.MaxInt32,
		Cap:      30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.Backoff.Duration <= 0 {
		o.Backoff = DefaultBackoff()
	}
	if o.Backoff.Steps <= 0 {
		o.Backoff.Steps = math.MaxInt32
	}
	if o.UnavailableAfter <= 0 {
		o.UnavailableAfter = 5
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.Clock == nil {
		o.Clock = clock.RealClock{}
	}
	return o
}

// Multiplexer owns all live connections.
type Multiplexer struct {
	client *resources.Client
	opts   Options
	logger logr.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conns  map[Key]*connection
	closed bool
}

// New creates a Multiplexer. The logger defaults to the one in ctx, and
// cancelling ctx closes every connection.
func New(ctx context.Context, client *resources.Client, opts Options) *Multiplexer {
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = crlog.FromContext(ctx)
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Multiplexer{
		client: client,
		opts:   opts,
		logger: logger.WithName("live"),
		ctx:    ctx,
		cancel: cancel,
		conns:  map[Key]*connection{},
	}
}

// Subscribe registers interest in key. The first subscriber opens the
// connection; later subscribers share it and immediately receive the latest
// snapshot. The subscription ends when Close is called or ctx is done.
func (m *Multiplexer) Subscribe(ctx context.Context, key Key) (*Subscription, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, context.Canceled
	}
	c, ok := m.conns[key]
	if !ok {
		c = newConnection(m, key)
		m.conns[key] = c
		connectionsActive.WithLabelValues(key.Cluster, key.Kind.String()).Inc()
		go c.run()
	}
	c.refs++
	mb := c.broadcaster.Subscribe()
	m.mu.Unlock()

	s := &Subscription{m: m, conn: c, mailbox: mb, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

func (m *Multiplexer) release(c *connection, mb *broadcast.Mailbox[Snapshot]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.broadcaster.Unsubscribe(mb)
	c.refs--
	if c.refs > 0 {
		return
	}
	if m.conns[c.key] == c {
		delete(m.conns, c.key)
		connectionsActive.WithLabelValues(c.key.Cluster, c.key.Kind.String()).Dec()
	}
	c.stop()
}

// Connections returns the number of open connections.
func (m *Multiplexer) Connections() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// State returns the state of the connection for key, Idle if there is none.
func (m *Multiplexer) State(key Key) State {
	m.mu.Lock()
	c, ok := m.conns[key]
	m.mu.Unlock()
	if !ok {
		return StateIdle
	}
	return c.State()
}

// Close stops all connections and closes every subscription channel.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for key, c := range m.conns {
		c.stop()
		connectionsActive.WithLabelValues(key.Cluster, key.Kind.String()).Dec()
		delete(m.conns, key)
	}
	m.cancel()
}

// Subscription is one subscriber's view of a connection.
type Subscription struct {
	m       *Multiplexer
	conn    *connection
	mailbox *broadcast.Mailbox[Snapshot]

	once sync.Once
	done chan struct{}
}

// Key returns the subscribed key.
func (s *Subscription) Key() Key { return s.conn.key }

// Updates delivers snapshots in production order. It is closed by Close.
func (s *Subscription) Updates() <-chan Snapshot { return s.mailbox.C() }

// State returns the connection state. It is Closed once the last
// subscriber left.
func (s *Subscription) State() State { return s.conn.State() }

// Close unregisters the subscriber. The connection is released when the last
// subscriber closes. Close is idempotent.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.m.release(s.conn, s.mailbox)
	})
}

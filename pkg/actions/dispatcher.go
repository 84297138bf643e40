package actions

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"k8s.io/utils/clock"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"
)

// Work is the mutation an action performs. It runs at most once.
type Work func(ctx context.Context) error

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	Reporter Reporter
	// GracePeriod delays work so it can still be cancelled. Zero runs work
	// immediately.
	GracePeriod time.Duration
	Clock       clock.Clock
	Logger      logr.Logger
}

// Dispatcher starts actions.
type Dispatcher struct {
	reporter Reporter
	grace    time.Duration
	clock    clock.Clock
	logger   logr.Logger
}

// NewDispatcher returns a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	d := &Dispatcher{reporter: opts.Reporter, grace: opts.GracePeriod, clock: opts.Clock, logger: opts.Logger}
	if d.reporter == nil {
		d.reporter = ReporterFunc(func(Event) {})
	}
	if d.clock == nil {
		d.clock = clock.RealClock{}
	}
	return d
}

// Option tunes a single dispatch.
type Option func(*dispatchOptions)

type dispatchOptions struct {
	cancelURL string
	grace     *time.Duration
}

// WithCancelURL attaches the route a UI offers for cancelling the action.
func WithCancelURL(url string) Option {
	return func(o *dispatchOptions) { o.cancelURL = url }
}

// WithGracePeriod overrides the dispatcher's grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(o *dispatchOptions) { o.grace = &d }
}

// Dispatch reports the action as Pending and runs work once the grace period
// elapses uncancelled. Cancelling ctx before work started cancels the action;
// afterwards ctx is passed on to work.
func (d *Dispatcher) Dispatch(ctx context.Context, work Work, msgs Messages, opts ...Option) *Action {
	o := dispatchOptions{}
	for _, fn := range opts {
		fn(&o)
	}
	grace := d.grace
	if o.grace != nil {
		grace = *o.grace
	}
	logger := d.logger
	if logger.GetSink() == nil {
		logger = crlog.FromContext(ctx)
	}

	a := &Action{
		id:        uuid.NewString(),
		msgs:      msgs,
		cancelURL: o.cancelURL,
		reporter:  d.reporter,
		clock:     d.clock,
		state:     StatePending,
		cancelled: make(chan struct{}),
		done:      make(chan struct{}),
	}
	a.logger = logger.WithValues("action", a.id)

	a.mu.Lock()
	a.emit(StatePending, msgs.Start, nil)
	a.mu.Unlock()

	if grace <= 0 {
		go a.run(ctx, work)
		return a
	}
	// the timer exists before Dispatch returns so fake clocks see it
	timer := d.clock.NewTimer(grace)
	go func() {
		defer timer.Stop()
		select {
		case <-timer.C():
			a.run(ctx, work)
		case <-ctx.Done():
			a.Cancel()
		case <-a.cancelled:
		}
	}()
	return a
}

// Action is a dispatched unit of work.
type Action struct {
	id        string
	msgs      Messages
	cancelURL string
	reporter  Reporter
	clock     clock.Clock
	logger    logr.Logger

	mu        sync.Mutex
	state     State
	err       error
	cancelled chan struct{}
	done      chan struct{}
}

// ID returns the unique action id.
func (a *Action) ID() string { return a.id }

// CancelURL returns the cancel route given at dispatch.
func (a *Action) CancelURL() string { return a.cancelURL }

// State returns the current state.
func (a *Action) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Err returns the failure of an action in StateError.
func (a *Action) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Done is closed when the action reached a terminal state.
func (a *Action) Done() <-chan struct{} { return a.done }

// Wait blocks until the action finished or ctx is done.
func (a *Action) Wait(ctx context.Context) (State, error) {
	select {
	case <-a.done:
		return a.State(), a.Err()
	case <-ctx.Done():
		return a.State(), ctx.Err()
	}
}

// Cancel stops a pending action. It returns false once work has started
// or the action has finished; such calls have no effect.
func (a *Action) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StatePending {
		return false
	}
	a.emit(StateCancelled, a.msgs.Cancelled, nil)
	close(a.cancelled)
	close(a.done)
	return true
}

func (a *Action) run(ctx context.Context, work Work) {
	a.mu.Lock()
	if a.state != StatePending {
		a.mu.Unlock()
		return
	}
	a.emit(StateRunning, a.msgs.Start, nil)
	a.mu.Unlock()

	err := work(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.emit(StateError, a.msgs.Error, err)
	} else {
		a.emit(StateConfirmed, a.msgs.Success, nil)
	}
	close(a.done)
}

// emit transitions and reports. Callers hold a.mu.
func (a *Action) emit(s State, msg string, err error) {
	a.state = s
	a.err = err
	if s.Terminal() {
		actionsTotal.WithLabelValues(string(s)).Inc()
	}
	if err != nil {
		a.logger.Info("action failed", "message", msg, "err", err)
	} else {
		a.logger.V(1).Info("action state", "state", s, "message", msg)
	}
	a.reporter.Report(Event{
		ID:        a.id,
		State:     s,
		Message:   msg,
		CancelURL: a.cancelURL,
		Err:       err,
		Time:      a.clock.Now(),
	})
}

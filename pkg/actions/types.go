// Package actions runs user-triggered mutations with an optional grace
// period during which they can be cancelled, and reports every state change
// to a Reporter in transition order.
package actions

import (
	"time"

	"github.com/sttts/kcore/internal/broadcast"
)

// State is the lifecycle state of an action.
type State string

const (
	StatePending   State = "Pending"
	StateRunning   State = "Running"
	StateConfirmed State = "Confirmed"
	StateCancelled State = "Cancelled"
	StateError     State = "Error"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled || s == StateError
}

// Messages are the human-readable texts reported for an action.
type Messages struct {
	Start     string
	Success   string
	Error     string
	Cancelled string
}

// Event is one state change of an action.
type Event struct {
	ID        string
	State     State
	Message   string
	CancelURL string
	// Err is the failure reason for StateError.
	Err  error
	Time time.Time
}

// Reporter receives action events. Report is called with the action's lock
// held and must not block or call back into the action.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

// Report implements Reporter.
func (f ReporterFunc) Report(ev Event) { f(ev) }

type multiReporter []Reporter

func (m multiReporter) Report(ev Event) {
	for _, r := range m {
		r.Report(ev)
	}
}

// Reporters combines reporters. Each event goes to all of them in order.
func Reporters(rs ...Reporter) Reporter { return multiReporter(rs) }

// Bus broadcasts events to any number of listeners without blocking the
// dispatcher.
type Bus struct {
	b *broadcast.Broadcaster[Event]
}

// NewBus returns an empty bus.
func NewBus() *Bus { return &Bus{b: broadcast.New[Event](false)} }

// Report implements Reporter.
func (b *Bus) Report(ev Event) { b.b.Publish(ev) }

// Subscribe returns a listener receiving all events reported from now on.
func (b *Bus) Subscribe() *Listener { return &Listener{bus: b, mb: b.b.Subscribe()} }

// Close closes all listeners.
func (b *Bus) Close() { b.b.Close() }

// Listener is one bus subscription.
type Listener struct {
	bus *Bus
	mb  *broadcast.Mailbox[Event]
}

// Events delivers events in report order.
func (l *Listener) Events() <-chan Event { return l.mb.C() }

// Close stops delivery and closes Events.
func (l *Listener) Close() { l.bus.b.Unsubscribe(l.mb) }

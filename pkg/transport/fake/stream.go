package fake

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/sttts/kcore/pkg/transport"
)

// ErrStreamClosed is returned by Send after the stream ended.
var ErrStreamClosed = errors.New("fake: stream closed")

// Stream is a test-driven transport.Stream.
type Stream struct {
	Cluster string
	Path    string
	Options transport.StreamOptions

	in   chan []byte
	out  chan []byte
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	err       error
	sent      [][]byte
	cancelled int
}

var _ transport.Stream = &Stream{}

func newStream(cluster, path string, opts transport.StreamOptions) *Stream {
	s := &Stream{
		Cluster: cluster,
		Path:    path,
		Options: opts,
		in:      make(chan []byte),
		out:     make(chan []byte),
		done:    make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *Stream) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case data := <-s.in:
			select {
			case s.out <- data:
			case <-s.done:
				return
			}
		}
	}
}

// Emit delivers one frame to the reader. It returns false if the stream ended.
func (s *Stream) Emit(data []byte) bool {
	select {
	case s.in <- data:
		return true
	case <-s.done:
		return false
	}
}

// EmitJSON marshals v and delivers it as one frame.
func (s *Stream) EmitJSON(v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return s.Emit(data)
}

// EmitEvent delivers a watch event frame.
func (s *Stream) EmitEvent(eventType string, object map[string]any) bool {
	return s.EmitJSON(map[string]any{"type": eventType, "object": object})
}

// Close ends the stream from the remote side with err (nil for a normal close).
func (s *Stream) Close(err error) {
	s.finish(err)
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
	})
}

// ResultChan implements transport.Stream.
func (s *Stream) ResultChan() <-chan []byte { return s.out }

// Done implements transport.Stream.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err implements transport.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Send implements transport.Stream and records the frame.
func (s *Stream) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), data...))
	return nil
}

// Sent returns the frames written by the client.
func (s *Stream) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.sent...)
}

// Cancel implements transport.Stream.
func (s *Stream) Cancel() {
	s.mu.Lock()
	s.cancelled++
	s.mu.Unlock()
	s.finish(nil)
}

// Cancelled reports how often Cancel was called.
func (s *Stream) Cancelled() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Closed reports whether the stream ended.
func (s *Stream) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

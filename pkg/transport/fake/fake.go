// Package fake provides an in-memory Transport for tests. Responses are
// scripted per method and path, streams are driven by the test.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcore/pkg/transport"
)

// Call records one Request.
type Call struct {
	Cluster string
	Method  string
	Path    string
	Body    []byte
}

// Responder produces the response for a call.
type Responder func(call Call) ([]byte, error)

// StreamOpener may reject a stream open by returning an error.
type StreamOpener func(cluster, path string) error

type route struct {
	method  string
	path    string
	cluster string
	respond Responder
}

// Transport is a scripted transport.Transport.
type Transport struct {
	mu      sync.Mutex
	routes  []route
	calls   []Call
	streams []*Stream
	opener  StreamOpener
}

var _ transport.Transport = &Transport{}

// New returns an empty fake. Unscripted requests fail with NotFound.
func New() *Transport {
	return &Transport{}
}

// Handle registers a responder for method and path. The path is matched
// without its query string. An empty cluster matches every cluster. Later
// registrations win over earlier ones.
func (t *Transport) Handle(cluster, method, path string, r Responder) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, route{method: method, path: path, cluster: cluster, respond: r})
}

// Respond registers a JSON response for method and path in all clusters.
func (t *Transport) Respond(method, path string, body any) {
	t.RespondIn("", method, path, body)
}

// RespondIn registers a JSON response scoped to one cluster.
func (t *Transport) RespondIn(cluster, method, path string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("fake: marshal response: %v", err))
	}
	t.Handle(cluster, method, path, func(Call) ([]byte, error) { return data, nil })
}

// Fail registers an error for method and path in the given cluster.
func (t *Transport) Fail(cluster, method, path string, err error) {
	t.Handle(cluster, method, path, func(Call) ([]byte, error) { return nil, err })
}

// OnOpenStream installs a hook that may reject stream opens.
func (t *Transport) OnOpenStream(fn StreamOpener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opener = fn
}

// Request implements transport.Transport.
func (t *Transport) Request(ctx context.Context, cluster, method, path string, body []byte) ([]byte, error) {
	call := Call{Cluster: cluster, Method: method, Path: path, Body: append([]byte(nil), body...)}
	t.mu.Lock()
	t.calls = append(t.calls, call)
	var responder Responder
	bare, _, _ := strings.Cut(path, "?")
	for i := len(t.routes) - 1; i >= 0; i-- {
		r := t.routes[i]
		if r.method == method && r.path == bare && (r.cluster == "" || r.cluster == cluster) {
			responder = r.respond
			break
		}
	}
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if responder == nil {
		return nil, apierrors.NewNotFound(schema.GroupResource{Resource: "fake"}, bare)
	}
	type reply struct {
		data []byte
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		data, err := responder(call)
		ch <- reply{data, err}
	}()
	// a blocked responder behaves like a hanging server
	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Calls returns a copy of all recorded requests.
func (t *Transport) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount counts requests with the given method whose path (without query)
// equals path. An empty method matches all methods.
func (t *Transport) CallCount(method, path string) int {
	n := 0
	for _, c := range t.Calls() {
		bare, _, _ := strings.Cut(c.Path, "?")
		if (method == "" || c.Method == method) && bare == path {
			n++
		}
	}
	return n
}

// Deletes counts DELETE requests for path.
func (t *Transport) Deletes(path string) int {
	return t.CallCount(http.MethodDelete, path)
}

// OpenStream implements transport.Transport.
func (t *Transport) OpenStream(ctx context.Context, cluster, path string, opts transport.StreamOptions) (transport.Stream, error) {
	t.mu.Lock()
	opener := t.opener
	t.mu.Unlock()
	if opener != nil {
		if err := opener(cluster, path); err != nil {
			return nil, err
		}
	}

	s := newStream(cluster, path, opts)
	t.mu.Lock()
	t.streams = append(t.streams, s)
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
	return s, nil
}

// Streams returns all streams opened so far, in order.
func (t *Transport) Streams() []*Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Stream(nil), t.streams...)
}

// LastStream returns the most recently opened stream, or nil.
func (t *Transport) LastStream() *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.streams) == 0 {
		return nil
	}
	return t.streams[len(t.streams)-1]
}

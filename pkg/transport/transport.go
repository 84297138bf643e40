// Package transport defines the minimal capability surface the rest of kc
// depends on to talk to API servers. Concrete HTTP and websocket execution,
// credential handling and endpoint resolution live behind this interface.
package transport

import (
	"context"
	"errors"
	"net/http"
)

// ErrStreamUnsupported is returned by OpenStream when the transport cannot hold
// long-lived connections. Callers fall back to polling.
var ErrStreamUnsupported = errors.New("transport: streaming not supported")

// StreamOptions configures a long-lived stream.
type StreamOptions struct {
	// JSON marks the stream as a sequence of JSON documents (watch streams).
	// When false, frames are delivered as raw bytes.
	JSON bool
	// SubProtocols is the ordered list of acceptable websocket sub-protocols.
	SubProtocols []string
}

// Stream is a long-lived connection to an API server.
//
// ResultChan is closed when the stream ends for any reason. Err reports why the
// stream ended once Done is closed; it is nil for a normal remote close and for
// Cancel. Cancel is idempotent.
type Stream interface {
	ResultChan() <-chan []byte
	Send(data []byte) error
	Done() <-chan struct{}
	Err() error
	Cancel()
}

// Transport issues requests against a named cluster.
type Transport interface {
	// Request performs a single HTTP call and returns the response body.
	// Non-2xx responses are returned as errors, typically *apierrors.StatusError.
	Request(ctx context.Context, cluster, method, path string, body []byte) ([]byte, error)
	// OpenStream opens a long-lived connection. The returned stream is bound to
	// ctx: cancelling ctx cancels the stream.
	OpenStream(ctx context.Context, cluster, path string, opts StreamOptions) (Stream, error)
}

// Get is a convenience wrapper for GET requests.
func Get(ctx context.Context, t Transport, cluster, path string) ([]byte, error) {
	return t.Request(ctx, cluster, http.MethodGet, path, nil)
}

// Post is a convenience wrapper for POST requests.
func Post(ctx context.Context, t Transport, cluster, path string, body []byte) ([]byte, error) {
	return t.Request(ctx, cluster, http.MethodPost, path, body)
}

// Put is a convenience wrapper for PUT requests.
func Put(ctx context.Context, t Transport, cluster, path string, body []byte) ([]byte, error) {
	return t.Request(ctx, cluster, http.MethodPut, path, body)
}

// Delete is a convenience wrapper for DELETE requests.
func Delete(ctx context.Context, t Transport, cluster, path string) ([]byte, error) {
	return t.Request(ctx, cluster, http.MethodDelete, path, nil)
}

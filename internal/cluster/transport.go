package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"k8s.io/client-go/rest"
	clientws "k8s.io/client-go/transport/websocket"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcore/pkg/transport"
)

// Transport executes requests with client-go against kubeconfig clusters.
// An empty cluster name resolves to the current context.
type Transport struct {
	pool    *Pool
	current func() string
}

var _ transport.Transport = &Transport{}

// NewTransport returns a transport backed by pool. current names the cluster
// used for requests without an explicit cluster.
func NewTransport(pool *Pool, current func() string) *Transport {
	return &Transport{pool: pool, current: current}
}

func (t *Transport) resolve(cluster string) string {
	if cluster == "" && t.current != nil {
		return t.current()
	}
	return cluster
}

func (t *Transport) Request(ctx context.Context, cluster, method, path string, body []byte) ([]byte, error) {
	_, rc, err := t.pool.Get(t.resolve(cluster))
	if err != nil {
		return nil, err
	}
	req, err := newRequest(rc, method, path)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req = req.SetHeader("Content-Type", "application/json").Body(body)
	}
	return req.DoRaw(ctx)
}

func (t *Transport) OpenStream(ctx context.Context, cluster, path string, opts transport.StreamOptions) (transport.Stream, error) {
	name := t.resolve(cluster)
	cfg, rc, err := t.pool.Get(name)
	if err != nil {
		return nil, err
	}
	if len(opts.SubProtocols) > 0 {
		return dialWebSocket(ctx, cfg, path, opts.SubProtocols)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := newRequest(rc, http.MethodGet, path)
	if err != nil {
		cancel()
		return nil, err
	}
	body, err := req.Stream(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	s := newStream(ctx, cancel, func() error { return body.Close() })
	crlog.FromContext(ctx).V(4).Info("stream opened", "cluster", name, "path", path)
	go s.cancelOn(ctx)
	go s.readFrames(body, opts.JSON)
	return s, nil
}

func newRequest(rc *rest.RESTClient, method, path string) (*rest.Request, error) {
	u, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	req := rc.Verb(method).AbsPath(u.Path)
	for k, vs := range u.Query() {
		for _, v := range vs {
			req = req.Param(k, v)
		}
	}
	return req, nil
}

// stream adapts a response body or a websocket connection to transport.Stream.
type stream struct {
	out     chan []byte
	done    chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	closer  func() error
	send    func([]byte) error

	stopOnce   sync.Once
	finishOnce sync.Once
	mu         sync.Mutex
	err        error
}

func newStream(ctx context.Context, cancel context.CancelFunc, closer func() error) *stream {
	return &stream{
		ctx:     ctx,
		out:     make(chan []byte),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		cancel:  cancel,
		closer:  closer,
	}
}

func (s *stream) ResultChan() <-chan []byte { return s.out }
func (s *stream) Done() <-chan struct{}     { return s.done }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Send(data []byte) error {
	if s.send == nil {
		return errors.New("stream is read-only")
	}
	select {
	case <-s.done:
		return io.ErrClosedPipe
	default:
	}
	return s.send(data)
}

func (s *stream) Cancel() {
	s.stopOnce.Do(func() { close(s.stopped) })
	s.cancel()
	_ = s.closer()
}

func (s *stream) cancelOn(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Cancel()
	case <-s.done:
	}
}

func (s *stream) finish(err error) {
	s.finishOnce.Do(func() {
		// Cancel and context cancellation end the stream without an error.
		if s.ctx.Err() != nil || errors.Is(err, io.EOF) {
			err = nil
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.out)
		close(s.done)
		s.cancel()
		_ = s.closer()
	})
}

func (s *stream) deliver(frame []byte) bool {
	select {
	case s.out <- frame:
		return true
	case <-s.stopped:
		return false
	}
}

func (s *stream) readFrames(r io.Reader, jsonFrames bool) {
	if !jsonFrames {
		buf := make([]byte, 32*1024)
		for {
			n, err := r.Read(buf)
			if n > 0 && !s.deliver(bytes.Clone(buf[:n])) {
				s.finish(nil)
				return
			}
			if err != nil {
				s.finish(err)
				return
			}
		}
	}
	dec := json.NewDecoder(r)
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			s.finish(err)
			return
		}
		if !s.deliver(raw) {
			s.finish(nil)
			return
		}
	}
}

func dialWebSocket(ctx context.Context, cfg *rest.Config, path string, protocols []string) (transport.Stream, error) {
	u, err := serverURL(cfg.Host, path)
	if err != nil {
		return nil, err
	}
	// the client-go chain applies the kubeconfig's credentials, exec and
	// auth-provider plugins included.
	rt, holder, err := clientws.RoundTripperFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("websocket transport: %w", err)
	}
	dialCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(dialCtx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	conn, err := clientws.Negotiate(rt, holder, req, protocols...)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade %s: %w", path, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := newStream(ctx, cancel, conn.Close)
	var writeMu sync.Mutex
	s.send = func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.BinaryMessage, data)
	}
	go s.cancelOn(ctx)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					err = nil
				}
				s.finish(err)
				return
			}
			if !s.deliver(data) {
				s.finish(nil)
				return
			}
		}
	}()
	return s, nil
}

// serverURL joins the cluster host and an API path. The websocket round
// tripper switches the scheme to ws or wss.
func serverURL(host, path string) (string, error) {
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	base, err := url.Parse(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %w", host, err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + ref.Path
	base.RawQuery = ref.RawQuery
	return base.String(), nil
}

package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/client-go/rest"
	clocktesting "k8s.io/utils/clock/testing"

	kctesting "github.com/sttts/kcore/internal/testing"
	"github.com/sttts/kcore/pkg/transport"
)

type configs map[string]*rest.Config

func (c configs) RESTConfig(name string) (*rest.Config, error) {
	cfg, ok := c[name]
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	return cfg, nil
}

func newTestTransport(t *testing.T, h http.Handler) (*Transport, *Pool) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	pool := NewPool(configs{
		"a": {Host: srv.URL, BearerToken: "tok-a"},
	}, time.Minute, nil)
	t.Cleanup(pool.Stop)
	return NewTransport(pool, func() string { return "a" }), pool
}

func TestRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/namespaces/default/configmaps", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("labelSelector"); got != "app=x" {
			t.Errorf("labelSelector = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-a" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"kind":"ConfigMapList","apiVersion":"v1","items":[]}`)
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write(body)
		}
	})
	mux.HandleFunc("/api/v1/namespaces/default/configmaps/missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"kind":"Status","apiVersion":"v1","status":"Failure","reason":"NotFound","code":404,"message":"configmaps \"missing\" not found"}`)
	})
	tr, _ := newTestTransport(t, mux)
	ctx := context.Background()

	data, err := transport.Get(ctx, tr, "", "/api/v1/namespaces/default/configmaps?labelSelector=app%3Dx")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != `{"kind":"ConfigMapList","apiVersion":"v1","items":[]}` {
		t.Errorf("unexpected body %s", data)
	}

	body := []byte(`{"kind":"ConfigMap","apiVersion":"v1","metadata":{"name":"x"}}`)
	data, err = transport.Post(ctx, tr, "a", "/api/v1/namespaces/default/configmaps?labelSelector=app%3Dx", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("post echoed %s", data)
	}

	_, err = transport.Get(ctx, tr, "a", "/api/v1/namespaces/default/configmaps/missing")
	if !apierrors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}

	if _, err := transport.Get(ctx, tr, "nope", "/api/v1/pods"); err == nil {
		t.Fatal("expected error for unknown cluster")
	}
}

func TestJSONStream(t *testing.T) {
	tr, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("watch") != "1" {
			t.Errorf("missing watch param: %s", r.URL)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"type":"ADDED","object":{"kind":"Pod"}}`+"\n")
		w.(http.Flusher).Flush()
		_, _ = io.WriteString(w, `{"type":"DELETED","object":{"kind":"Pod"}}`)
	}))

	ctx := kctesting.Context(context.Background(), t.Name())
	s, err := tr.OpenStream(ctx, "a", "/api/v1/pods?watch=1", transport.StreamOptions{JSON: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var frames []string
	for f := range s.ResultChan() {
		frames = append(frames, string(f))
	}
	<-s.Done()
	if s.Err() != nil {
		t.Errorf("unexpected error: %v", s.Err())
	}
	want := []string{`{"type":"ADDED","object":{"kind":"Pod"}}`, `{"type":"DELETED","object":{"kind":"Pod"}}`}
	if fmt.Sprint(frames) != fmt.Sprint(want) {
		t.Errorf("frames = %v, want %v", frames, want)
	}
}

func TestStreamContextCancel(t *testing.T) {
	tr, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	s, err := tr.OpenStream(ctx, "a", "/api/v1/pods?watch=1", transport.StreamOptions{JSON: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	cancel()
	kctesting.Eventually(t, 5*time.Second, 5*time.Millisecond, func() bool {
		select {
		case <-s.Done():
			return true
		default:
			return false
		}
	}, "stream not done after context cancel")
	if s.Err() != nil {
		t.Errorf("unexpected error %v", s.Err())
	}
}

func TestStreamCancel(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	tr, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))

	s, err := tr.OpenStream(context.Background(), "a", "/api/v1/pods?watch=1", transport.StreamOptions{JSON: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Cancel()
	s.Cancel()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream not done after Cancel")
	}
	if s.Err() != nil {
		t.Errorf("Cancel must end the stream without error, got %v", s.Err())
	}
}

func TestWebSocketStream(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{"v4.channel.k8s.io"}}
	tr, _ := newTestTransport(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-a" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/v1/namespaces/kube-system/pods/shell/exec" {
			t.Errorf("path = %s", r.URL.Path)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if conn.Subprotocol() != "v4.channel.k8s.io" {
			t.Errorf("negotiated %q", conn.Subprotocol())
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, append([]byte{1}, msg[1:]...))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))

	s, err := tr.OpenStream(context.Background(), "a", "/api/v1/namespaces/kube-system/pods/shell/exec?stdin=true",
		transport.StreamOptions{SubProtocols: []string{"v5.channel.k8s.io", "v4.channel.k8s.io"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Send([]byte("\x00ls\n")); err != nil {
		t.Fatalf("send: %v", err)
	}
	frame, ok := <-s.ResultChan()
	if !ok || string(frame) != "\x01ls\n" {
		t.Fatalf("frame = %q, ok=%v", frame, ok)
	}
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("stream not done after remote close")
	}
	if s.Err() != nil {
		t.Errorf("normal close must not report an error, got %v", s.Err())
	}
	if err := s.Send([]byte("\x00x")); err == nil {
		t.Error("send after close must fail")
	}
}

func TestServerURL(t *testing.T) {
	for _, tc := range []struct{ host, path, want string }{
		{"https://example.com:6443", "/api/v1/x?a=b", "https://example.com:6443/api/v1/x?a=b"},
		{"http://127.0.0.1:8080/prefix/", "/api", "http://127.0.0.1:8080/prefix/api"},
		{"example.com", "/api", "https://example.com/api"},
	} {
		got, err := serverURL(tc.host, tc.path)
		if err != nil {
			t.Fatalf("%s: %v", tc.host, err)
		}
		if got != tc.want {
			t.Errorf("serverURL(%q, %q) = %q, want %q", tc.host, tc.path, got, tc.want)
		}
	}
}

func TestWebSocketUsesConfigTransportChain(t *testing.T) {
	upgrader := websocket.Upgrader{Subprotocols: []string{"v4.channel.k8s.io"}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Plugin-Token"); got != "from-plugin" {
			t.Errorf("X-Plugin-Token = %q", got)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Basic dTpw" {
			t.Errorf("Authorization = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 'o', 'k'})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(srv.Close)

	// WrapTransport stands in for an exec or auth-provider plugin.
	pool := NewPool(configs{"a": {
		Host:     srv.URL,
		Username: "u",
		Password: "p",
		WrapTransport: func(rt http.RoundTripper) http.RoundTripper {
			return roundTripperFunc(func(req *http.Request) (*http.Response, error) {
				req.Header.Set("X-Plugin-Token", "from-plugin")
				return rt.RoundTrip(req)
			})
		},
	}}, time.Minute, nil)
	t.Cleanup(pool.Stop)
	tr := NewTransport(pool, nil)

	s, err := tr.OpenStream(context.Background(), "a", "/api/v1/namespaces/default/pods/p/attach",
		transport.StreamOptions{SubProtocols: []string{"v4.channel.k8s.io"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	frame, ok := <-s.ResultChan()
	if !ok || string(frame) != "\x01ok" {
		t.Fatalf("frame = %q, ok=%v", frame, ok)
	}
}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestPoolEviction(t *testing.T) {
	clk := clocktesting.NewFakeClock(time.Now())
	pool := NewPool(configs{
		"a": {Host: "https://a.example.com"},
		"b": {Host: "https://b.example.com"},
	}, time.Minute, clk)

	_, rcA, err := pool.Get("a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	clk.Step(45 * time.Second)
	if _, _, err := pool.Get("b"); err != nil {
		t.Fatalf("get b: %v", err)
	}
	if _, again, _ := pool.Get("a"); again != rcA {
		t.Error("expected cached client for a")
	}
	if pool.Len() != 2 {
		t.Fatalf("Len = %d, want 2", pool.Len())
	}

	clk.Step(50 * time.Second)
	pool.evictIdle()
	if pool.Len() != 2 {
		t.Fatalf("a was touched 50s ago and b 50s ago; Len = %d", pool.Len())
	}
	clk.Step(20 * time.Second)
	pool.evictIdle()
	if pool.Len() != 0 {
		t.Fatalf("expected all idle clients evicted, Len = %d", pool.Len())
	}

	if _, _, err := pool.Get("c"); err == nil {
		t.Fatal("expected error for unknown cluster")
	}
}

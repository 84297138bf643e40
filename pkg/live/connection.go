package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utiljson "k8s.io/apimachinery/pkg/util/json"
	"k8s.io/apimachinery/pkg/watch"

	"github.com/sttts/kcore/internal/broadcast"
	"github.com/sttts/kcore/pkg/resources"
	"github.com/sttts/kcore/pkg/transport"
)

var (
	errExpired      = errors.New("resource version expired")
	errRemoteClosed = errors.New("watch closed by server")
)

// connection runs one list+watch loop. Only its run goroutine touches items,
// resourceVersion and failures.
type connection struct {
	m           *Multiplexer
	key         Key
	logger      logr.Logger
	broadcaster *broadcast.Broadcaster[Snapshot]

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// guarded by Multiplexer.mu
	refs int

	mu    sync.Mutex
	state State

	cluster         string
	items           map[string]*resources.Object
	resourceVersion string
	failures        int
	lastErr         error
}

func newConnection(m *Multiplexer, key Key) *connection {
	ctx, cancel := context.WithCancel(m.ctx)
	return &connection{
		m:           m,
		key:         key,
		logger:      m.logger.WithValues("key", key.String()),
		broadcaster: broadcast.New[Snapshot](true),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StateIdle,
		items:       map[string]*resources.Object{},
	}
}

func (c *connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	if c.state != s {
		c.logger.V(2).Info("state change", "from", c.state, "to", s)
	}
	c.state = s
}

func (c *connection) stop() {
	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.cancel()
	c.broadcaster.Close()
}

func (c *connection) run() {
	defer close(c.done)
	backoff := c.m.opts.Backoff
	for {
		c.setState(StateConnecting)
		healthy, err := c.syncOnce()
		if c.ctx.Err() != nil {
			return
		}
		if healthy {
			backoff = c.m.opts.Backoff
			c.failures = 0
		}
		if errors.Is(err, errExpired) {
			c.logger.V(1).Info("resource version expired, relisting")
			continue
		}
		c.failures++
		c.lastErr = err
		reconnectsTotal.WithLabelValues(c.key.Cluster, c.key.Kind.String()).Inc()
		c.logger.V(1).Info("connection failed", "failures", c.failures, "err", err)
		if c.failures == c.m.opts.UnavailableAfter {
			c.logger.Info("connection unavailable, still retrying", "err", err)
			c.publish(Unavailable)
		}

		c.setState(StateReconnecting)
		select {
		case <-c.m.opts.Clock.After(backoff.Step()):
		case <-c.ctx.Done():
			return
		}
	}
}

// syncOnce lists and then follows changes until the channel fails. healthy
// reports whether the watch or poll loop delivered at least once after the
// list; a successful list alone does not reset the backoff.
func (c *connection) syncOnce() (healthy bool, err error) {
	client := c.m.client
	list, err := client.List(c.ctx, c.key.Kind, c.key.Namespace, c.key.options()...)
	if err != nil {
		if isExpired(err) {
			return false, errExpired
		}
		return false, err
	}
	c.cluster = list.Cluster
	c.replace(list.Items, list.ResourceVersion)
	c.publish(Synced)

	ep := client.Endpoint(c.key.Kind)
	path := ep.WatchPath(c.key.Namespace, c.resourceVersion, c.key.options()...)
	stream, err := client.Transport().OpenStream(c.ctx, c.cluster, path, transport.StreamOptions{JSON: true})
	if errors.Is(err, transport.ErrStreamUnsupported) {
		return c.poll()
	}
	if err != nil {
		return false, fmt.Errorf("open watch: %w", err)
	}
	defer stream.Cancel()

	c.setState(StateStreaming)
	for frame := range stream.ResultChan() {
		changed, err := c.apply(frame)
		if err != nil {
			return healthy, err
		}
		healthy = true
		if changed {
			c.publish(Synced)
		}
	}
	if err := stream.Err(); err != nil {
		return healthy, err
	}
	return healthy, errRemoteClosed
}

func (c *connection) poll() (healthy bool, err error) {
	c.setState(StateStreaming)
	for {
		select {
		case <-c.m.opts.Clock.After(c.m.opts.PollInterval):
		case <-c.ctx.Done():
			return healthy, c.ctx.Err()
		}
		list, err := c.m.client.List(c.ctx, c.key.Kind, c.key.Namespace, c.key.options()...)
		if err != nil {
			return healthy, err
		}
		healthy = true
		if list.ResourceVersion != "" && list.ResourceVersion == c.resourceVersion {
			continue
		}
		c.replace(list.Items, list.ResourceVersion)
		c.publish(Synced)
	}
}

type watchEvent struct {
	Type   watch.EventType        `json:"type"`
	Object map[string]interface{} `json:"object"`
}

// apply folds one watch event into the item set.
func (c *connection) apply(frame []byte) (bool, error) {
	var ev watchEvent
	if err := utiljson.Unmarshal(frame, &ev); err != nil {
		return false, fmt.Errorf("decode watch event: %w", err)
	}
	u := &unstructured.Unstructured{Object: ev.Object}

	switch ev.Type {
	case watch.Bookmark:
		c.resourceVersion = u.GetResourceVersion()
		return false, nil
	case watch.Error:
		status := &metav1.Status{}
		code, _, _ := unstructured.NestedInt64(ev.Object, "code")
		msg, _, _ := unstructured.NestedString(ev.Object, "message")
		status.Code, status.Message = int32(code), msg
		if code == http.StatusGone {
			return false, errExpired
		}
		return false, &apierrors.StatusError{ErrStatus: *status}
	}

	if u.GetKind() == "" {
		u.SetKind(c.key.Kind.Kind)
	}
	if u.GetAPIVersion() == "" {
		u.SetAPIVersion(c.key.Kind.APIVersion())
	}
	obj, err := c.m.client.Wrap(c.key.Kind, u, c.cluster)
	if err != nil {
		c.logger.V(1).Info("skipping malformed watch object", "err", err)
		return false, nil
	}
	if rv := obj.ResourceVersion(); rv != "" {
		c.resourceVersion = rv
	}
	switch ev.Type {
	case watch.Added, watch.Modified:
		c.items[itemKey(obj)] = obj
	case watch.Deleted:
		delete(c.items, itemKey(obj))
	default:
		return false, nil
	}
	return true, nil
}

func (c *connection) replace(items []*resources.Object, rv string) {
	c.items = make(map[string]*resources.Object, len(items))
	for _, obj := range items {
		c.items[itemKey(obj)] = obj
	}
	c.resourceVersion = rv
}

func (c *connection) publish(health Health) {
	items := make([]*resources.Object, 0, len(c.items))
	for _, obj := range c.items {
		items = append(items, obj)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Namespace() != items[j].Namespace() {
			return items[i].Namespace() < items[j].Namespace()
		}
		return items[i].Name() < items[j].Name()
	})
	snap := Snapshot{Key: c.key, Items: items, ResourceVersion: c.resourceVersion, Health: health}
	if health == Unavailable {
		snap.Err = c.lastErr
	}
	snapshotsTotal.WithLabelValues(c.key.Cluster, c.key.Kind.String(), string(health)).Inc()
	c.broadcaster.Publish(snap)
}

// itemKey de-duplicates by UID, falling back to namespace/name for objects
// the server did not assign a UID to.
func itemKey(obj *resources.Object) string {
	if uid := obj.UID(); uid != "" {
		return string(uid)
	}
	return obj.Namespace() + "/" + obj.Name()
}

func isExpired(err error) bool {
	return apierrors.IsGone(err) || apierrors.IsResourceExpired(err)
}

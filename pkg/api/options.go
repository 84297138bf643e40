package api

import (
	"context"
	"net/url"
)

type clusterKey struct{}

// WithCluster returns a context that carries the ambient current cluster.
func WithCluster(ctx context.Context, cluster string) context.Context {
	return context.WithValue(ctx, clusterKey{}, cluster)
}

// ClusterFrom returns the ambient cluster stored in ctx, if any.
func ClusterFrom(ctx context.Context) string {
	c, _ := ctx.Value(clusterKey{}).(string)
	return c
}

// ResolveCluster picks the target cluster: an InCluster option wins over the
// ambient cluster in ctx, which wins over fallback.
func ResolveCluster(ctx context.Context, fallback func() string, opts ...Option) string {
	return buildOptions(opts).resolveCluster(ctx, fallback)
}

type options struct {
	cluster         string
	fieldSelector   string
	labelSelector   string
	resourceVersion string
}

// Option tunes a single operation.
type Option func(*options)

// InCluster targets an explicit cluster, overriding the ambient one.
func InCluster(cluster string) Option {
	return func(o *options) { o.cluster = cluster }
}

// Pinned returns a fresh copy of opts targeting cluster. The caller's slice is
// never written, so concurrent callers may share it.
func Pinned(opts []Option, cluster string) []Option {
	out := make([]Option, len(opts), len(opts)+1)
	copy(out, opts)
	return append(out, InCluster(cluster))
}

// WithFieldSelector restricts list and watch operations.
func WithFieldSelector(selector string) Option {
	return func(o *options) { o.fieldSelector = selector }
}

// WithLabelSelector restricts list and watch operations.
func WithLabelSelector(selector string) Option {
	return func(o *options) { o.labelSelector = selector }
}

// WithResourceVersion sets the resourceVersion query parameter.
func WithResourceVersion(rv string) Option {
	return func(o *options) { o.resourceVersion = rv }
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func (o *options) resolveCluster(ctx context.Context, fallback func() string) string {
	if o.cluster != "" {
		return o.cluster
	}
	if c := ClusterFrom(ctx); c != "" {
		return c
	}
	if fallback != nil {
		return fallback()
	}
	return ""
}

func (o *options) query() url.Values {
	q := url.Values{}
	if o.fieldSelector != "" {
		q.Set("fieldSelector", o.fieldSelector)
	}
	if o.labelSelector != "" {
		q.Set("labelSelector", o.labelSelector)
	}
	if o.resourceVersion != "" {
		q.Set("resourceVersion", o.resourceVersion)
	}
	return q
}

func withQuery(p string, q url.Values) string {
	if len(q) == 0 {
		return p
	}
	return p + "?" + q.Encode()
}

package multicluster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/live"
	"github.com/sttts/kcore/pkg/resources"
)

// ErrNoClusters is returned when an operation has no target cluster.
var ErrNoClusters = errors.New("no clusters selected")

// Options tune a Fanout.
type Options struct {
	// Timeout bounds each cluster's call. Zero means no timeout.
	Timeout time.Duration
	// Concurrency limits parallel calls. Zero means unlimited.
	Concurrency int
	// Multiplexer is required for Subscribe.
	Multiplexer *live.Multiplexer
}

// Fanout issues resource operations against a set of clusters.
type Fanout struct {
	client   *resources.Client
	clusters ClusterSet
	opts     Options
}

// NewFanout returns a Fanout over the clusters in set.
func NewFanout(client *resources.Client, set ClusterSet, opts Options) *Fanout {
	return &Fanout{client: client, clusters: set, opts: opts}
}

// On returns a Fanout that targets exactly clusters, e.g. a user's
// multi-select, instead of the active set.
func (f *Fanout) On(clusters ...string) *Fanout {
	return &Fanout{client: f.client, clusters: NewSelection(clusters...), opts: f.opts}
}

// Clusters returns the current targets.
func (f *Fanout) Clusters() []string { return f.clusters.Active() }

func do[T any](ctx context.Context, f *Fanout, fn func(ctx context.Context, cluster string) (T, error)) (Composite[T], error) {
	clusters := f.clusters.Active()
	if len(clusters) == 0 {
		return Composite[T]{}, ErrNoClusters
	}
	return Do(ctx, clusters, f.opts.Timeout, f.opts.Concurrency, fn), nil
}

// List lists desc in every cluster. Use Concat to merge the items; each
// object carries its origin cluster.
func (f *Fanout) List(ctx context.Context, desc api.Descriptor, namespace string, opts ...api.Option) (Composite[[]*resources.Object], error) {
	return do(ctx, f, func(ctx context.Context, cluster string) ([]*resources.Object, error) {
		list, err := f.client.List(ctx, desc, namespace, api.Pinned(opts, cluster)...)
		if err != nil {
			return nil, err
		}
		return list.Items, nil
	})
}

// Get fetches one object from every cluster.
func (f *Fanout) Get(ctx context.Context, desc api.Descriptor, namespace, name string) (Composite[*resources.Object], error) {
	return do(ctx, f, func(ctx context.Context, cluster string) (*resources.Object, error) {
		return f.client.Get(ctx, desc, namespace, name, api.InCluster(cluster))
	})
}

// Apply applies docs in every cluster. Within a cluster all documents are
// attempted; the cluster's error aggregates the failed ones. List documents
// are expanded into their items first.
func (f *Fanout) Apply(ctx context.Context, docs []*unstructured.Unstructured) (Composite[[]*resources.Object], error) {
	docs = resources.Flatten(docs)
	if err := resources.Validate(docs); err != nil {
		return Composite[[]*resources.Object]{}, err
	}
	return do(ctx, f, func(ctx context.Context, cluster string) ([]*resources.Object, error) {
		var applied []*resources.Object
		var errs []error
		for _, doc := range docs {
			obj, err := f.client.Apply(ctx, doc, api.InCluster(cluster))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", doc.GetKind(), doc.GetName(), err))
				continue
			}
			applied = append(applied, obj)
		}
		return applied, utilerrors.NewAggregate(errs)
	})
}

// Delete deletes one object in every cluster.
func (f *Fanout) Delete(ctx context.Context, desc api.Descriptor, namespace, name string) (Composite[struct{}], error) {
	return do(ctx, f, func(ctx context.Context, cluster string) (struct{}, error) {
		return struct{}{}, f.client.Delete(ctx, desc, namespace, name, api.InCluster(cluster))
	})
}

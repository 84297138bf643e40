package actions

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/multicluster"
	"github.com/sttts/kcore/pkg/resources"
)

// Applier dispatches create-or-replace and delete actions.
type Applier struct {
	dispatcher *Dispatcher
	client     *resources.Client
	fanout     multicluster.Options
}

// NewApplier returns an Applier. ApplyTo honours the per-cluster timeout and
// concurrency limit of fanout.
func NewApplier(d *Dispatcher, client *resources.Client, fanout multicluster.Options) *Applier {
	return &Applier{dispatcher: d, client: client, fanout: fanout}
}

// Apply validates docs and dispatches one action applying all of them to
// cluster in parallel. List documents are expanded first. Invalid input is
// returned as an error and nothing is dispatched.
func (a *Applier) Apply(ctx context.Context, docs []*unstructured.Unstructured, cluster, cancelURL string) (*Action, error) {
	items, err := prepare(docs)
	if err != nil {
		return nil, err
	}
	work := func(ctx context.Context) error {
		return a.applyAll(ctx, items, cluster)
	}
	return a.dispatcher.Dispatch(ctx, work, applyMessages(items), WithCancelURL(cancelURL)), nil
}

// ApplyTo is Apply against every cluster in clusters. Clusters fail
// independently; the action's error enumerates the failed ones.
func (a *Applier) ApplyTo(ctx context.Context, docs []*unstructured.Unstructured, clusters []string, cancelURL string) (*Action, error) {
	items, err := prepare(docs)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return nil, multicluster.ErrNoClusters
	}
	work := func(ctx context.Context) error {
		res := multicluster.Do(ctx, clusters, a.fanout.Timeout, a.fanout.Concurrency, func(ctx context.Context, cluster string) (struct{}, error) {
			return struct{}{}, a.applyAll(ctx, items, cluster)
		})
		return res.Err()
	}
	return a.dispatcher.Dispatch(ctx, work, applyMessages(items), WithCancelURL(cancelURL)), nil
}

// Delete dispatches the deletion of obj.
func (a *Applier) Delete(ctx context.Context, obj *resources.Object, cancelURL string) *Action {
	what := fmt.Sprintf("%s %s", obj.Kind(), obj.Name())
	msgs := Messages{
		Start:     fmt.Sprintf("Deleting %s…", what),
		Success:   fmt.Sprintf("Deleted %s.", what),
		Error:     fmt.Sprintf("Failed to delete %s.", what),
		Cancelled: fmt.Sprintf("Cancelled deleting %s.", what),
	}
	return a.dispatcher.Dispatch(ctx, obj.Delete, msgs, WithCancelURL(cancelURL))
}

func prepare(docs []*unstructured.Unstructured) ([]*unstructured.Unstructured, error) {
	items := resources.Flatten(docs)
	if err := resources.Validate(items); err != nil {
		return nil, err
	}
	return items, nil
}

func (a *Applier) applyAll(ctx context.Context, items []*unstructured.Unstructured, cluster string) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	var opts []api.Option
	if cluster != "" {
		opts = append(opts, api.InCluster(cluster))
	}
	for _, item := range items {
		item := item
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.client.Apply(ctx, item, opts...); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("failed to create %s: %w", describe(item, len(items) > 1), err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return utilerrors.NewAggregate(errs)
}

// describe names an item in messages. Batches add the apiVersion since
// kinds may repeat across groups.
func describe(item *unstructured.Unstructured, inBatch bool) string {
	s := fmt.Sprintf("%s %s", item.GetKind(), item.GetName())
	if inBatch {
		s += " in " + item.GetAPIVersion()
	}
	return s
}

func applyMessages(items []*unstructured.Unstructured) Messages {
	what := describe(items[0], false)
	if len(items) > 1 {
		what = fmt.Sprintf("%d resources", len(items))
	}
	return Messages{
		Start:     fmt.Sprintf("Applying %s…", what),
		Success:   fmt.Sprintf("Applied %s.", what),
		Error:     fmt.Sprintf("Failed to apply %s.", what),
		Cancelled: fmt.Sprintf("Cancelled applying %s.", what),
	}
}

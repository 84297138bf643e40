package multicluster

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/sttts/kcore/pkg/api"
)

// Result is the outcome of one cluster's call.
type Result[T any] struct {
	Cluster string
	Value   T
	Err     error
}

// Composite holds one Result per cluster in target order.
type Composite[T any] struct {
	Results []Result[T]
}

// Succeeded returns the results without error.
func (c Composite[T]) Succeeded() []Result[T] {
	var out []Result[T]
	for _, r := range c.Results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the results with an error.
func (c Composite[T]) Failed() []Result[T] {
	var out []Result[T]
	for _, r := range c.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Values returns the values of successful results.
func (c Composite[T]) Values() []T {
	var out []T
	for _, r := range c.Succeeded() {
		out = append(out, r.Value)
	}
	return out
}

// Err aggregates all failures, each prefixed with its cluster. It is nil
// when every cluster succeeded.
func (c Composite[T]) Err() error {
	var errs []error
	for _, r := range c.Failed() {
		errs = append(errs, fmt.Errorf("cluster %s: %w", r.Cluster, r.Err))
	}
	return utilerrors.NewAggregate(errs)
}

// Concat flattens the values of a composite of slices.
func Concat[T any](c Composite[[]T]) []T {
	var out []T
	for _, r := range c.Succeeded() {
		out = append(out, r.Value...)
	}
	return out
}

// Do calls fn for every cluster in parallel. Each call gets its own timeout
// (none if zero) and the cluster as ambient cluster of its context. At most
// limit calls run at once; limit <= 0 means no limit.
func Do[T any](ctx context.Context, clusters []string, timeout time.Duration, limit int, fn func(ctx context.Context, cluster string) (T, error)) Composite[T] {
	results := make([]Result[T], len(clusters))
	// errgroup for SetLimit only; calls report through results.
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, cluster := range clusters {
		i, cluster := i, cluster
		g.Go(func() error {
			cctx := api.WithCluster(ctx, cluster)
			if timeout > 0 {
				var cancel context.CancelFunc
				cctx, cancel = context.WithTimeout(cctx, timeout)
				defer cancel()
			}
			v, err := fn(cctx, cluster)
			results[i] = Result[T]{Cluster: cluster, Value: v, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return Composite[T]{Results: results}
}

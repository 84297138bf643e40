package multicluster

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sttts/kcore/internal/broadcast"
	"github.com/sttts/kcore/pkg/live"
	"github.com/sttts/kcore/pkg/resources"
)

// MergedSnapshot combines the latest snapshot of every cluster.
type MergedSnapshot struct {
	// Items are sorted by cluster, namespace and name.
	Items []*resources.Object
	// Clusters holds the latest snapshot per cluster that reported so far.
	Clusters map[string]live.Snapshot
	// Unavailable lists clusters whose latest snapshot is Unavailable.
	Unavailable []string
}

// MergedSubscription follows one key across clusters.
type MergedSubscription struct {
	subs    []*live.Subscription
	mailbox *broadcast.Mailbox[MergedSnapshot]

	once sync.Once
	done chan struct{}
}

// Subscribe follows key in every target cluster. key.Cluster is ignored.
// A new merged snapshot is delivered whenever any cluster reports.
func (f *Fanout) Subscribe(ctx context.Context, key live.Key) (*MergedSubscription, error) {
	if f.opts.Multiplexer == nil {
		return nil, errors.New("multicluster: no multiplexer configured")
	}
	clusters := f.clusters.Active()
	if len(clusters) == 0 {
		return nil, ErrNoClusters
	}

	ms := &MergedSubscription{mailbox: broadcast.NewMailbox[MergedSnapshot](), done: make(chan struct{})}
	for _, cluster := range clusters {
		k := key
		k.Cluster = cluster
		sub, err := f.opts.Multiplexer.Subscribe(ctx, k)
		if err != nil {
			ms.Close()
			return nil, err
		}
		ms.subs = append(ms.subs, sub)
	}

	in := make(chan live.Snapshot)
	for _, sub := range ms.subs {
		go func(sub *live.Subscription) {
			for snap := range sub.Updates() {
				select {
				case in <- snap:
				case <-ms.done:
					return
				}
			}
		}(sub)
	}
	go ms.merge(in)
	go func() {
		select {
		case <-ctx.Done():
			ms.Close()
		case <-ms.done:
		}
	}()
	return ms, nil
}

func (ms *MergedSubscription) merge(in <-chan live.Snapshot) {
	latest := map[string]live.Snapshot{}
	for {
		select {
		case snap := <-in:
			latest[snap.Key.Cluster] = snap
			ms.mailbox.Put(mergeSnapshots(latest))
		case <-ms.done:
			return
		}
	}
}

func mergeSnapshots(latest map[string]live.Snapshot) MergedSnapshot {
	out := MergedSnapshot{Clusters: make(map[string]live.Snapshot, len(latest))}
	for cluster, snap := range latest {
		out.Clusters[cluster] = snap
		out.Items = append(out.Items, snap.Items...)
		if snap.Health == live.Unavailable {
			out.Unavailable = append(out.Unavailable, cluster)
		}
	}
	sort.Strings(out.Unavailable)
	sort.SliceStable(out.Items, func(i, j int) bool {
		a, b := out.Items[i], out.Items[j]
		if a.Cluster() != b.Cluster() {
			return a.Cluster() < b.Cluster()
		}
		if a.Namespace() != b.Namespace() {
			return a.Namespace() < b.Namespace()
		}
		return a.Name() < b.Name()
	})
	return out
}

// Updates delivers merged snapshots in order. It is closed by Close.
func (ms *MergedSubscription) Updates() <-chan MergedSnapshot { return ms.mailbox.C() }

// Close releases every per-cluster subscription. It is idempotent.
func (ms *MergedSubscription) Close() {
	ms.once.Do(func() {
		close(ms.done)
		for _, sub := range ms.subs {
			sub.Close()
		}
		ms.mailbox.Close()
	})
}

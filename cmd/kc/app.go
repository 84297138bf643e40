package main

import (
	"context"
	"fmt"

	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcore/internal/cluster"
	"github.com/sttts/kcore/pkg/actions"
	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/appconfig"
	"github.com/sttts/kcore/pkg/kubeconfig"
	"github.com/sttts/kcore/pkg/live"
	"github.com/sttts/kcore/pkg/multicluster"
	"github.com/sttts/kcore/pkg/resources"
)

// app wires configuration, cluster access and the core components for one
// command invocation.
type app struct {
	cfg         *appconfig.Config
	kubeconfigs *kubeconfig.Manager
	pool        *cluster.Pool
	client      *resources.Client
	clusters    *multicluster.Selection
	fanout      *multicluster.Fanout
	mux         *live.Multiplexer
	bus         *actions.Bus
	applier     *actions.Applier
}

func newApp(ctx context.Context) (*app, error) {
	logger := crlog.FromContext(ctx)

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	km := kubeconfig.NewManager()
	if rootArgs.kubeconfig != "" {
		err = km.Load(rootArgs.kubeconfig)
	} else {
		err = km.Discover()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	active := rootArgs.contexts
	if len(active) == 0 {
		active = cfg.Kubernetes.Clusters.Active
	}
	if len(active) == 0 && km.Current() != "" {
		active = []string{km.Current()}
	}
	for _, name := range active {
		if _, ok := km.Context(name); !ok {
			return nil, fmt.Errorf("unknown context %q, available: %v", name, km.Names())
		}
	}
	logger.V(2).Info("clusters selected", "contexts", active)

	pool := cluster.NewPool(km, cfg.Kubernetes.Clusters.TTL.Duration, nil)
	pool.Start()
	client := resources.NewClient(resources.DefaultRegistry(), cluster.NewTransport(pool, km.Current),
		resources.WithCurrentCluster(km.Current))

	mux := live.New(ctx, client, live.Options{
		Backoff:          cfg.Backoff(),
		UnavailableAfter: cfg.Watch.UnavailableAfter,
		PollInterval:     cfg.Watch.PollInterval.Duration,
		Logger:           logger.WithName("live"),
	})
	selection := multicluster.NewSelection(active...)
	fanOpts := multicluster.Options{
		Timeout:     cfg.FanOut.Timeout.Duration,
		Concurrency: cfg.FanOut.Concurrency,
		Multiplexer: mux,
	}
	fanout := multicluster.NewFanout(client, selection, fanOpts)

	bus := actions.NewBus()
	dispatcher := actions.NewDispatcher(actions.DispatcherOptions{
		Reporter:    bus,
		GracePeriod: cfg.Actions.GracePeriod.Duration,
		Logger:      logger.WithName("actions"),
	})

	return &app{
		cfg:         cfg,
		kubeconfigs: km,
		pool:        pool,
		client:      client,
		clusters:    selection,
		fanout:      fanout,
		mux:         mux,
		bus:         bus,
		applier:     actions.NewApplier(dispatcher, client, fanOpts),
	}, nil
}

func loadConfig() (*appconfig.Config, error) {
	if rootArgs.config != "" {
		return appconfig.LoadFile(rootArgs.config)
	}
	return appconfig.Load()
}

func (a *app) Close() {
	a.mux.Close()
	a.bus.Close()
	a.pool.Stop()
}

// kind resolves a kind argument and the namespace it is addressed in.
func (a *app) kind(name string, allNamespaces bool) (api.Descriptor, string, error) {
	desc, ok := a.client.Registry().Lookup(name)
	if !ok {
		return api.Descriptor{}, "", fmt.Errorf("unknown kind %q", name)
	}
	switch {
	case !desc.Namespaced, allNamespaces:
		return desc, "", nil
	default:
		return desc, rootArgs.namespace, nil
	}
}

func (a *app) shellOptions() resources.ShellOptions {
	return resources.ShellOptions{
		Image:        a.cfg.NodeShell.Image,
		Namespace:    a.cfg.NodeShell.Namespace,
		ReadyTimeout: a.cfg.NodeShell.ReadyTimeout.Duration,
	}
}

// withApp runs fn with a fully wired app and a timeout-bound context.
func withApp(ctx context.Context, timeout bool, fn func(ctx context.Context, a *app) error) error {
	if timeout && rootArgs.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rootArgs.timeout)
		defer cancel()
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

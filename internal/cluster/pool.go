package cluster

import (
	"fmt"
	"sync"
	"time"

	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/utils/clock"
)

// ConfigSource resolves a cluster name to a REST config. kubeconfig.Manager
// implements it with context names as cluster names.
type ConfigSource interface {
	RESTConfig(name string) (*rest.Config, error)
}

type entry struct {
	config   *rest.Config
	client   *rest.RESTClient
	lastUsed time.Time
}

// Pool caches REST clients per cluster and evicts idle ones.
type Pool struct {
	source ConfigSource
	ttl    time.Duration
	clock  clock.WithTicker

	mu      sync.Mutex
	started bool
	closing chan struct{}
	items   map[string]*entry
}

// NewPool returns a pool. Clients unused for ttl are dropped by the
// eviction loop started with Start.
func NewPool(source ConfigSource, ttl time.Duration, clk clock.WithTicker) *Pool {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Pool{source: source, ttl: ttl, clock: clk, closing: make(chan struct{}), items: map[string]*entry{}}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	go p.evictLoop()
}

func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.closing:
	default:
		close(p.closing)
	}
	p.items = map[string]*entry{}
}

// Get returns the config and REST client for cluster, creating them if needed.
func (p *Pool) Get(cluster string) (*rest.Config, *rest.RESTClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.items[cluster]; ok {
		e.lastUsed = p.clock.Now()
		return e.config, e.client, nil
	}
	cfg, err := p.source.RESTConfig(cluster)
	if err != nil {
		return nil, nil, fmt.Errorf("client config for %q: %w", cluster, err)
	}
	cfg = rest.CopyConfig(cfg)
	cfg.NegotiatedSerializer = scheme.Codecs.WithoutConversion()
	if cfg.UserAgent == "" {
		cfg.UserAgent = rest.DefaultKubernetesUserAgent()
	}
	rc, err := rest.UnversionedRESTClientFor(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("rest client for %q: %w", cluster, err)
	}
	p.items[cluster] = &entry{config: cfg, client: rc, lastUsed: p.clock.Now()}
	return cfg, rc, nil
}

// Len returns the number of cached clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Pool) evictLoop() {
	interval := p.ttl / 2
	if interval <= 0 || interval > 30*time.Second {
		interval = 30 * time.Second
	}
	t := p.clock.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-p.closing:
			return
		case <-t.C():
			p.evictIdle()
		}
	}
}

func (p *Pool) evictIdle() {
	cutoff := p.clock.Now().Add(-p.ttl)
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, e := range p.items {
		if e.lastUsed.Before(cutoff) {
			delete(p.items, k)
		}
	}
}

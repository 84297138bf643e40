// Package kubeconfig discovers kubeconfig files. Every context is one
// cluster identifier for the rest of kc.
package kubeconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// Kubeconfig represents a kubeconfig file
type Kubeconfig struct {
	Path   string
	Config *api.Config
}

// Context represents a Kubernetes context
type Context struct {
	Name      string
	Cluster   string
	Server    string
	Namespace string
	User      string

	Kubeconfig *Kubeconfig
}

// Manager handles kubeconfig discovery. Context names must be unique; the
// first file that defines a name wins.
type Manager struct {
	mu          sync.RWMutex
	kubeconfigs []*Kubeconfig
	contexts    map[string]*Context
	current     string
}

// NewManager creates a new kubeconfig manager
func NewManager() *Manager {
	return &Manager{contexts: map[string]*Context{}}
}

// DefaultPaths returns $KUBECONFIG entries, or every file in ~/.kube with
// ~/.kube/config first.
func DefaultPaths() ([]string, error) {
	if env := os.Getenv(clientcmd.RecommendedConfigPathEnvVar); env != "" {
		return filepath.SplitList(env), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	return DirPaths(filepath.Join(homeDir, ".kube"))
}

// DirPaths lists candidate kubeconfig files in dir, config first. Hidden
// files and subdirectories such as the discovery cache are skipped.
func DirPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("kube directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.Name() == "config" {
			paths = append([]string{filepath.Join(dir, e.Name())}, paths...)
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}

// Discover loads the default kubeconfig locations.
func (m *Manager) Discover() error {
	paths, err := DefaultPaths()
	if err != nil {
		return err
	}
	return m.Load(paths...)
}

// Load reads the given files. Files that are not kubeconfigs are skipped.
// The current context is taken from the first file that has one.
func (m *Manager) Load(paths ...string) error {
	var loaded []*Kubeconfig
	for _, p := range paths {
		config, err := clientcmd.LoadFromFile(p)
		if err != nil {
			// missing or not a kubeconfig
			continue
		}
		loaded = append(loaded, &Kubeconfig{Path: p, Config: config})
	}
	if len(loaded) == 0 {
		return fmt.Errorf("no kubeconfig found in %s", strings.Join(paths, ", "))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.kubeconfigs = append(m.kubeconfigs, loaded...)
	m.buildContexts()
	return nil
}

// buildContexts rebuilds the context index. Callers hold m.mu.
func (m *Manager) buildContexts() {
	m.contexts = map[string]*Context{}
	m.current = ""
	for _, kubeconfig := range m.kubeconfigs {
		if m.current == "" && kubeconfig.Config.CurrentContext != "" {
			m.current = kubeconfig.Config.CurrentContext
		}
		for name, context := range kubeconfig.Config.Contexts {
			if _, exists := m.contexts[name]; exists {
				continue
			}
			namespace := context.Namespace
			if namespace == "" {
				namespace = "default"
			}
			var server string
			if cluster, ok := kubeconfig.Config.Clusters[context.Cluster]; ok {
				server = cluster.Server
			}
			m.contexts[name] = &Context{
				Name:       name,
				Cluster:    context.Cluster,
				Server:     server,
				Namespace:  namespace,
				User:       context.AuthInfo,
				Kubeconfig: kubeconfig,
			}
		}
	}
}

// Contexts returns all contexts sorted by name.
func (m *Manager) Contexts() []*Context {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Context, 0, len(m.contexts))
	for _, c := range m.contexts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns all context names sorted.
func (m *Manager) Names() []string {
	var names []string
	for _, c := range m.Contexts() {
		names = append(names, c.Name)
	}
	return names
}

// Context finds a context by name.
func (m *Manager) Context(name string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contexts[name]
	return c, ok
}

// Current returns the current context name, or "" if none is set.
func (m *Manager) Current() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetCurrentContext makes name current and writes it back to the file that
// defines it.
func (m *Manager) SetCurrentContext(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[name]
	if !ok {
		return fmt.Errorf("context %q not found", name)
	}
	m.current = name
	if c.Kubeconfig.Config.CurrentContext == name {
		return nil
	}
	c.Kubeconfig.Config.CurrentContext = name
	return clientcmd.WriteToFile(*c.Kubeconfig.Config, c.Kubeconfig.Path)
}

// RESTConfig creates a REST config for the named context.
func (m *Manager) RESTConfig(name string) (*rest.Config, error) {
	c, ok := m.Context(name)
	if !ok {
		return nil, fmt.Errorf("context %q not found", name)
	}
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		&clientcmd.ClientConfigLoadingRules{ExplicitPath: c.Kubeconfig.Path},
		&clientcmd.ConfigOverrides{CurrentContext: name},
	).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create client config for %s: %w", name, err)
	}
	return config, nil
}

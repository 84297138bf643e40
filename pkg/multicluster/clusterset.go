// Package multicluster runs operations against several clusters at once and
// collects every per-cluster outcome. A failing cluster never cancels or
// fails its siblings.
package multicluster

import "sync"

// ClusterSet supplies the clusters an operation targets. Active is read on
// every call and never written by this package.
type ClusterSet interface {
	Active() []string
}

// ClusterSetFunc adapts a function to ClusterSet.
type ClusterSetFunc func() []string

// Active implements ClusterSet.
func (f ClusterSetFunc) Active() []string { return f() }

// Selection is a mutable ClusterSet owned by a caller, e.g. the CLI flags or
// a cluster picker.
type Selection struct {
	mu       sync.RWMutex
	clusters []string
}

// NewSelection returns a selection of clusters.
func NewSelection(clusters ...string) *Selection {
	s := &Selection{}
	s.Set(clusters...)
	return s
}

// Active returns a copy of the selected clusters in selection order.
func (s *Selection) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.clusters...)
}

// Set replaces the selection. Duplicates and empty names are dropped.
func (s *Selection) Set(clusters ...string) {
	seen := map[string]bool{}
	var out []string
	for _, c := range clusters {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	s.mu.Lock()
	s.clusters = out
	s.mu.Unlock()
}

// Add selects cluster if it is not selected yet.
func (s *Selection) Add(cluster string) {
	s.Set(append(s.Active(), cluster)...)
}

// Remove deselects cluster.
func (s *Selection) Remove(cluster string) {
	var out []string
	for _, c := range s.Active() {
		if c != cluster {
			out = append(out, c)
		}
	}
	s.Set(out...)
}

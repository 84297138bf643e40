package resources

import (
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcore/pkg/api"
)

// Registry maps kind names, plural names and GVKs to descriptors. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	byName map[string]api.Descriptor
	byGVK  map[schema.GroupVersionKind]api.Descriptor
	all    []api.Descriptor
}

// NewRegistry builds a registry from descs. Duplicate GVKs or invalid
// descriptors are rejected.
func NewRegistry(descs ...api.Descriptor) (*Registry, error) {
	r := &Registry{
		byName: make(map[string]api.Descriptor),
		byGVK:  make(map[schema.GroupVersionKind]api.Descriptor),
	}
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		gvk := d.GroupVersionKind()
		if _, exists := r.byGVK[gvk]; exists {
			return nil, fmt.Errorf("duplicate descriptor for %s", gvk)
		}
		r.byGVK[gvk] = d
		r.all = append(r.all, d)
		for _, name := range []string{d.Kind, d.Plural, d.String()} {
			key := strings.ToLower(name)
			if _, taken := r.byName[key]; !taken {
				r.byName[key] = d
			}
		}
	}
	return r, nil
}

// DefaultRegistry returns a new registry holding the built-in kinds.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinKinds()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup finds a descriptor by kind ("Pod"), plural ("pods") or
// plural.group ("networkpolicies.networking.k8s.io"), case-insensitively.
func (r *Registry) Lookup(name string) (api.Descriptor, bool) {
	d, ok := r.byName[strings.ToLower(name)]
	return d, ok
}

// MustLookup is Lookup for names known at compile time.
func (r *Registry) MustLookup(name string) api.Descriptor {
	d, ok := r.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("resources: unknown kind %q", name))
	}
	return d
}

// ForGVK finds a descriptor by exact GroupVersionKind.
func (r *Registry) ForGVK(gvk schema.GroupVersionKind) (api.Descriptor, bool) {
	d, ok := r.byGVK[gvk]
	return d, ok
}

// Resolve returns the descriptor for a document's apiVersion and kind. Kinds
// unknown to the registry get a guessed plural; their scope follows
// namespaced, since only the server knows it for sure.
func (r *Registry) Resolve(apiVersion, kind string, namespaced bool) (api.Descriptor, error) {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return api.Descriptor{}, fmt.Errorf("parse apiVersion %q: %w", apiVersion, err)
	}
	gvk := gv.WithKind(kind)
	if d, ok := r.byGVK[gvk]; ok {
		return d, nil
	}
	if gvk.Version == "" || kind == "" {
		return api.Descriptor{}, fmt.Errorf("cannot resolve %q %q", apiVersion, kind)
	}
	plural, _ := meta.UnsafeGuessKindToResource(gvk)
	return api.Descriptor{
		Kind:         kind,
		Group:        gvk.Group,
		Version:      gvk.Version,
		Plural:       plural.Resource,
		Namespaced:   namespaced,
		DetailsRoute: strings.ToLower(kind),
	}, nil
}

// List returns all descriptors sorted by kind.
func (r *Registry) List() []api.Descriptor {
	out := append([]api.Descriptor(nil), r.all...)
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

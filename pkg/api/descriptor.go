// Package api turns a resource kind's group/version/plural metadata into bound
// REST operations. Namespaced and cluster-scoped kinds get distinct operation
// sets so a missing or superfluous namespace is a wiring error, not a runtime
// surprise.
package api

import (
	"fmt"
	"net/url"
	"path"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

// Descriptor is the static metadata of one resource kind. It is a comparable
// value and safe to use as a map key.
type Descriptor struct {
	Kind    string
	Group   string
	Version string
	// Plural is the REST path segment, e.g. "networkpolicies".
	Plural     string
	Namespaced bool
	// DetailsRoute names the human-facing details route, e.g. "pod".
	DetailsRoute string
}

// APIVersion returns the apiVersion string as found in documents.
func (d Descriptor) APIVersion() string {
	return d.GroupVersion().String()
}

// GroupVersion returns the API group and version.
func (d Descriptor) GroupVersion() schema.GroupVersion {
	return schema.GroupVersion{Group: d.Group, Version: d.Version}
}

// GroupVersionKind returns the kind's GVK.
func (d Descriptor) GroupVersionKind() schema.GroupVersionKind {
	return d.GroupVersion().WithKind(d.Kind)
}

// GroupVersionResource returns the kind's GVR.
func (d Descriptor) GroupVersionResource() schema.GroupVersionResource {
	return d.GroupVersion().WithResource(d.Plural)
}

// ListRoute is the details route pluralised the simple way.
func (d Descriptor) ListRoute() string {
	return d.DetailsRoute + "s"
}

// Validate checks that the descriptor can produce paths.
func (d Descriptor) Validate() error {
	switch {
	case d.Kind == "":
		return fmt.Errorf("api: descriptor missing kind")
	case d.Version == "":
		return fmt.Errorf("api: descriptor %s missing version", d.Kind)
	case d.Plural == "":
		return fmt.Errorf("api: descriptor %s missing plural name", d.Kind)
	}
	return nil
}

func (d Descriptor) String() string {
	if d.Group == "" {
		return d.Plural
	}
	return d.Plural + "." + d.Group
}

func (d Descriptor) basePath() string {
	if d.Group == "" {
		return "/api/" + d.Version
	}
	return "/apis/" + d.Group + "/" + d.Version
}

// CollectionPath returns the collection path. An empty namespace addresses
// all namespaces of a namespaced kind.
func (d Descriptor) CollectionPath(namespace string) string {
	if d.Namespaced && namespace != "" {
		return path.Join(d.basePath(), "namespaces", url.PathEscape(namespace), d.Plural)
	}
	return path.Join(d.basePath(), d.Plural)
}

// ItemPath returns the path of a single object.
func (d Descriptor) ItemPath(namespace, name string) string {
	return path.Join(d.CollectionPath(namespace), url.PathEscape(name))
}

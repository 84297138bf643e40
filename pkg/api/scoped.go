package api

import (
	"context"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// AllNamespaces lists a namespaced kind across every namespace.
const AllNamespaces = ""

// NamespacedAPI is the operation set of a namespaced kind.
type NamespacedAPI struct {
	e *Endpoint
}

// Endpoint returns the underlying endpoint.
func (a *NamespacedAPI) Endpoint() *Endpoint { return a.e }

// List lists objects in namespace, or across all namespaces for AllNamespaces.
func (a *NamespacedAPI) List(ctx context.Context, namespace string, opts ...Option) (*unstructured.UnstructuredList, error) {
	return a.e.ListAt(ctx, namespace, opts...)
}

// Get fetches namespace/name.
func (a *NamespacedAPI) Get(ctx context.Context, namespace, name string, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.GetAt(ctx, namespace, name, opts...)
}

// Delete deletes namespace/name.
func (a *NamespacedAPI) Delete(ctx context.Context, namespace, name string, opts ...Option) error {
	return a.e.DeleteAt(ctx, namespace, name, opts...)
}

// Post creates doc in its namespace.
func (a *NamespacedAPI) Post(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.Post(ctx, doc, opts...)
}

// Put replaces doc.
func (a *NamespacedAPI) Put(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.Put(ctx, doc, opts...)
}

// Apply creates or replaces doc.
func (a *NamespacedAPI) Apply(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.Apply(ctx, doc, opts...)
}

// ClusterAPI is the operation set of a cluster-scoped kind.
type ClusterAPI struct {
	e *Endpoint
}

// Endpoint returns the underlying endpoint.
func (a *ClusterAPI) Endpoint() *Endpoint { return a.e }

// List lists all objects.
func (a *ClusterAPI) List(ctx context.Context, opts ...Option) (*unstructured.UnstructuredList, error) {
	return a.e.ListAt(ctx, "", opts...)
}

// Get fetches name.
func (a *ClusterAPI) Get(ctx context.Context, name string, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.GetAt(ctx, "", name, opts...)
}

// Delete deletes name.
func (a *ClusterAPI) Delete(ctx context.Context, name string, opts ...Option) error {
	return a.e.DeleteAt(ctx, "", name, opts...)
}

// Post creates doc.
func (a *ClusterAPI) Post(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.Post(ctx, doc, opts...)
}

// Put replaces doc.
func (a *ClusterAPI) Put(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.Put(ctx, doc, opts...)
}

// Apply creates or replaces doc.
func (a *ClusterAPI) Apply(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	return a.e.Apply(ctx, doc, opts...)
}

package api

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/sttts/kcore/pkg/transport"
)

// DefaultNamespace is used by Apply for namespaced documents without a namespace.
const DefaultNamespace = "default"

// Endpoint binds a Descriptor to a Transport. Its methods take an explicit
// namespace and check it against the descriptor's scope; most callers use the
// scoped views returned by Namespaced and ClusterScoped.
type Endpoint struct {
	desc           Descriptor
	transport      transport.Transport
	defaultCluster func() string
}

// EndpointOption configures an Endpoint.
type EndpointOption func(*Endpoint)

// WithDefaultCluster sets the cluster used when neither an explicit override
// nor an ambient cluster in the context is present.
func WithDefaultCluster(fn func() string) EndpointOption {
	return func(e *Endpoint) { e.defaultCluster = fn }
}

// NewEndpoint creates an Endpoint. It panics on an invalid descriptor since
// descriptors are static program data.
func NewEndpoint(desc Descriptor, t transport.Transport, opts ...EndpointOption) *Endpoint {
	if err := desc.Validate(); err != nil {
		panic(err)
	}
	if t == nil {
		panic("api: transport must not be nil")
	}
	e := &Endpoint{desc: desc, transport: t}
	for _, fn := range opts {
		fn(e)
	}
	return e
}

// Descriptor returns the bound descriptor.
func (e *Endpoint) Descriptor() Descriptor { return e.desc }

// Transport returns the underlying transport.
func (e *Endpoint) Transport() transport.Transport { return e.transport }

// Namespaced returns the namespaced operation set. It panics for
// cluster-scoped kinds.
func (e *Endpoint) Namespaced() *NamespacedAPI {
	if !e.desc.Namespaced {
		panic(fmt.Sprintf("api: %s is cluster-scoped", e.desc.Kind))
	}
	return &NamespacedAPI{e: e}
}

// ClusterScoped returns the cluster-scoped operation set. It panics for
// namespaced kinds.
func (e *Endpoint) ClusterScoped() *ClusterAPI {
	if e.desc.Namespaced {
		panic(fmt.Sprintf("api: %s is namespaced", e.desc.Kind))
	}
	return &ClusterAPI{e: e}
}

// ResolveCluster returns the cluster an operation with opts targets.
func (e *Endpoint) ResolveCluster(ctx context.Context, opts ...Option) string {
	return e.cluster(ctx, buildOptions(opts))
}

func (e *Endpoint) cluster(ctx context.Context, o *options) string {
	return o.resolveCluster(ctx, e.defaultCluster)
}

func (e *Endpoint) checkScope(namespace string, requireNamespace bool) error {
	var errs field.ErrorList
	p := field.NewPath("metadata", "namespace")
	switch {
	case e.desc.Namespaced && requireNamespace && namespace == "":
		errs = append(errs, field.Required(p, fmt.Sprintf("%s is namespaced", e.desc.Kind)))
	case !e.desc.Namespaced && namespace != "":
		errs = append(errs, field.Forbidden(p, fmt.Sprintf("%s is cluster-scoped", e.desc.Kind)))
	}
	return errs.ToAggregate()
}

// ListPath returns the list URL including query parameters.
func (e *Endpoint) ListPath(namespace string, opts ...Option) string {
	return withQuery(e.desc.CollectionPath(namespace), buildOptions(opts).query())
}

// WatchPath returns the watch URL starting at resourceVersion.
func (e *Endpoint) WatchPath(namespace, resourceVersion string, opts ...Option) string {
	o := buildOptions(opts)
	o.resourceVersion = resourceVersion
	q := o.query()
	q.Set("watch", "1")
	q.Set("allowWatchBookmarks", "true")
	return withQuery(e.desc.CollectionPath(namespace), q)
}

// ListAt lists objects. An empty namespace lists across all namespaces.
func (e *Endpoint) ListAt(ctx context.Context, namespace string, opts ...Option) (*unstructured.UnstructuredList, error) {
	if err := e.checkScope(namespace, false); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	data, err := transport.Get(ctx, e.transport, e.cluster(ctx, o), withQuery(e.desc.CollectionPath(namespace), o.query()))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", e.desc, err)
	}
	return DecodeList(data, e.desc)
}

// GetAt fetches one object.
func (e *Endpoint) GetAt(ctx context.Context, namespace, name string, opts ...Option) (*unstructured.Unstructured, error) {
	if err := e.checkScope(namespace, true); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, field.ErrorList{field.Required(field.NewPath("metadata", "name"), "")}.ToAggregate()
	}
	o := buildOptions(opts)
	data, err := transport.Get(ctx, e.transport, e.cluster(ctx, o), e.desc.ItemPath(namespace, name))
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", e.desc, name, err)
	}
	return e.decodeItem(data)
}

// DeleteAt deletes one object.
func (e *Endpoint) DeleteAt(ctx context.Context, namespace, name string, opts ...Option) error {
	if err := e.checkScope(namespace, true); err != nil {
		return err
	}
	if name == "" {
		return field.ErrorList{field.Required(field.NewPath("metadata", "name"), "")}.ToAggregate()
	}
	o := buildOptions(opts)
	if _, err := transport.Delete(ctx, e.transport, e.cluster(ctx, o), e.desc.ItemPath(namespace, name)); err != nil {
		return fmt.Errorf("delete %s %s: %w", e.desc, name, err)
	}
	return nil
}

// Post creates doc.
func (e *Endpoint) Post(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	namespace, err := e.docNamespace(doc)
	if err != nil {
		return nil, err
	}
	body, err := EncodeObject(doc)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	data, err := transport.Post(ctx, e.transport, e.cluster(ctx, o), e.desc.CollectionPath(namespace), body)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", e.desc, doc.GetName(), err)
	}
	return e.decodeItem(data)
}

// Put replaces doc.
func (e *Endpoint) Put(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	namespace, err := e.docNamespace(doc)
	if err != nil {
		return nil, err
	}
	body, err := EncodeObject(doc)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	data, err := transport.Put(ctx, e.transport, e.cluster(ctx, o), e.desc.ItemPath(namespace, doc.GetName()), body)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", e.desc, doc.GetName(), err)
	}
	return e.decodeItem(data)
}

// Apply creates doc or replaces the live object of the same name.
func (e *Endpoint) Apply(ctx context.Context, doc *unstructured.Unstructured, opts ...Option) (*unstructured.Unstructured, error) {
	obj := doc.DeepCopy()
	switch {
	case e.desc.Namespaced && obj.GetNamespace() == "":
		obj.SetNamespace(DefaultNamespace)
	case !e.desc.Namespaced:
		obj.SetNamespace("")
	}
	live, err := e.GetAt(ctx, obj.GetNamespace(), obj.GetName(), opts...)
	switch {
	case apierrors.IsNotFound(err):
		return e.Post(ctx, obj, opts...)
	case err != nil:
		return nil, err
	}
	obj.SetResourceVersion(live.GetResourceVersion())
	return e.Put(ctx, obj, opts...)
}

func (e *Endpoint) docNamespace(doc *unstructured.Unstructured) (string, error) {
	var errs field.ErrorList
	if doc.GetName() == "" {
		errs = append(errs, field.Required(field.NewPath("metadata", "name"), ""))
	}
	if err := e.checkScope(doc.GetNamespace(), true); err != nil {
		return "", err
	}
	return doc.GetNamespace(), errs.ToAggregate()
}

func (e *Endpoint) decodeItem(data []byte) (*unstructured.Unstructured, error) {
	u, err := DecodeObject(data)
	if err != nil {
		return nil, err
	}
	if u.GetKind() == "" {
		u.SetKind(e.desc.Kind)
	}
	if u.GetAPIVersion() == "" {
		u.SetAPIVersion(e.desc.APIVersion())
	}
	return u, nil
}

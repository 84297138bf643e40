package resources

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/transport"
)

// Client binds a Registry to a Transport and hands out objects that know how
// to update and delete themselves.
type Client struct {
	registry       *Registry
	transport      transport.Transport
	defaultCluster func() string

	mu        sync.Mutex
	endpoints map[api.Descriptor]*api.Endpoint
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCurrentCluster sets the fallback cluster for operations that carry no
// explicit or ambient cluster.
func WithCurrentCluster(fn func() string) ClientOption {
	return func(c *Client) { c.defaultCluster = fn }
}

// NewClient creates a Client.
func NewClient(registry *Registry, t transport.Transport, opts ...ClientOption) *Client {
	c := &Client{registry: registry, transport: t, endpoints: map[api.Descriptor]*api.Endpoint{}}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

// Registry returns the kind registry.
func (c *Client) Registry() *Registry { return c.registry }

// Transport returns the underlying transport.
func (c *Client) Transport() transport.Transport { return c.transport }

// Endpoint returns the cached endpoint for desc.
func (c *Client) Endpoint(desc api.Descriptor) *api.Endpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep, ok := c.endpoints[desc]; ok {
		return ep
	}
	var opts []api.EndpointOption
	if c.defaultCluster != nil {
		opts = append(opts, api.WithDefaultCluster(c.defaultCluster))
	}
	ep := api.NewEndpoint(desc, c.transport, opts...)
	c.endpoints[desc] = ep
	return ep
}

// ObjectList is the result of a list call.
type ObjectList struct {
	Cluster         string
	ResourceVersion string
	Items           []*Object
}

// List lists objects of kind desc. For cluster-scoped kinds namespace must be empty.
func (c *Client) List(ctx context.Context, desc api.Descriptor, namespace string, opts ...api.Option) (*ObjectList, error) {
	ep := c.Endpoint(desc)
	cluster := ep.ResolveCluster(ctx, opts...)
	list, err := ep.ListAt(ctx, namespace, api.Pinned(opts, cluster)...)
	if err != nil {
		return nil, err
	}
	out := &ObjectList{Cluster: cluster, ResourceVersion: list.GetResourceVersion()}
	for i := range list.Items {
		obj, err := c.wrap(desc, &list.Items[i], cluster)
		if err != nil {
			return nil, fmt.Errorf("list %s: item %d: %w", desc, i, err)
		}
		out.Items = append(out.Items, obj)
	}
	return out, nil
}

// Get fetches one object.
func (c *Client) Get(ctx context.Context, desc api.Descriptor, namespace, name string, opts ...api.Option) (*Object, error) {
	ep := c.Endpoint(desc)
	cluster := ep.ResolveCluster(ctx, opts...)
	u, err := ep.GetAt(ctx, namespace, name, api.Pinned(opts, cluster)...)
	if err != nil {
		return nil, err
	}
	return c.wrap(desc, u, cluster)
}

// Delete deletes one object.
func (c *Client) Delete(ctx context.Context, desc api.Descriptor, namespace, name string, opts ...api.Option) error {
	return c.Endpoint(desc).DeleteAt(ctx, namespace, name, opts...)
}

// Apply creates or replaces doc, resolving its kind through the registry.
func (c *Client) Apply(ctx context.Context, doc *unstructured.Unstructured, opts ...api.Option) (*Object, error) {
	if err := validateDocument(doc, nil).ToAggregate(); err != nil {
		return nil, err
	}
	desc, err := c.registry.Resolve(doc.GetAPIVersion(), doc.GetKind(), doc.GetNamespace() != "")
	if err != nil {
		return nil, err
	}
	ep := c.Endpoint(desc)
	cluster := ep.ResolveCluster(ctx, opts...)
	stored, err := ep.Apply(ctx, doc, api.Pinned(opts, cluster)...)
	if err != nil {
		return nil, err
	}
	return c.wrap(desc, stored, cluster)
}

// Wrap binds doc to this client as an object of kind desc from cluster.
func (c *Client) Wrap(desc api.Descriptor, doc *unstructured.Unstructured, cluster string) (*Object, error) {
	return c.wrap(desc, doc, cluster)
}

// Kind is a handle for one kind bound to a client.
type Kind struct {
	client *Client
	desc   api.Descriptor
}

// For returns a handle for desc.
func (c *Client) For(desc api.Descriptor) Kind { return Kind{client: c, desc: desc} }

// Pods returns the Pod handle.
func (c *Client) Pods() Kind { return c.For(PodKind) }

// Nodes returns the Node handle.
func (c *Client) Nodes() Kind { return c.For(NodeKind) }

// Deployments returns the Deployment handle.
func (c *Client) Deployments() Kind { return c.For(DeploymentKind) }

// Descriptor returns the kind metadata.
func (k Kind) Descriptor() api.Descriptor { return k.desc }

// List lists objects of this kind.
func (k Kind) List(ctx context.Context, namespace string, opts ...api.Option) (*ObjectList, error) {
	return k.client.List(ctx, k.desc, namespace, opts...)
}

// Get fetches one object of this kind.
func (k Kind) Get(ctx context.Context, namespace, name string, opts ...api.Option) (*Object, error) {
	return k.client.Get(ctx, k.desc, namespace, name, opts...)
}

// Delete deletes one object of this kind.
func (k Kind) Delete(ctx context.Context, namespace, name string, opts ...api.Option) error {
	return k.client.Delete(ctx, k.desc, namespace, name, opts...)
}

func (c *Client) wrap(desc api.Descriptor, doc *unstructured.Unstructured, cluster string) (*Object, error) {
	obj, err := New(desc, doc)
	if err != nil {
		return nil, err
	}
	obj.cluster = cluster
	obj.client = c
	return obj, nil
}

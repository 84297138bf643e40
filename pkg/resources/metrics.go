package resources

import (
	"context"
	"sort"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/sttts/kcore/pkg/api"
)

// NodeMetricsKind is served by metrics-server, which is not always installed.
var NodeMetricsKind = api.Descriptor{Kind: "NodeMetrics", Group: "metrics.k8s.io", Version: "v1beta1", Plural: "nodes", DetailsRoute: "nodemetrics"}

// NodeUsage is the current resource usage of one node.
type NodeUsage struct {
	Name   string
	CPU    resource.Quantity
	Memory resource.Quantity
}

// NodeMetrics lists node usage from the metrics API, sorted by node name.
func (c *Client) NodeMetrics(ctx context.Context, opts ...api.Option) ([]NodeUsage, error) {
	list, err := c.List(ctx, NodeMetricsKind, "", opts...)
	if err != nil {
		return nil, err
	}
	out := make([]NodeUsage, 0, len(list.Items))
	for _, obj := range list.Items {
		u := NodeUsage{Name: obj.Name()}
		if q, err := resource.ParseQuantity(obj.String("usage", "cpu")); err == nil {
			u.CPU = q
		}
		if q, err := resource.ParseQuantity(obj.String("usage", "memory")); err == nil {
			u.Memory = q
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

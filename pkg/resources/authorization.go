package resources

import (
	"context"
	"encoding/json"
	"fmt"

	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/transport"
)

const selfSubjectAccessReviewPath = "/apis/authorization.k8s.io/v1/selfsubjectaccessreviews"

// Authorization asks the server whether the current user may perform verb
// on this object. Any failure is returned as an error, never as allowed.
func (o *Object) Authorization(ctx context.Context, verb string) (bool, error) {
	if o.client == nil {
		return false, fmt.Errorf("%s %s is not bound to a client", o.Kind(), o.Name())
	}
	attrs := authorizationv1.ResourceAttributes{
		Namespace: o.Namespace(),
		Verb:      verb,
		Group:     o.desc.Group,
		Version:   o.desc.Version,
		Resource:  o.desc.Plural,
		Name:      o.Name(),
	}
	return o.client.CanI(ctx, attrs, o.clusterOption()...)
}

// CanI posts a SelfSubjectAccessReview for attrs.
func (c *Client) CanI(ctx context.Context, attrs authorizationv1.ResourceAttributes, opts ...api.Option) (bool, error) {
	review := authorizationv1.SelfSubjectAccessReview{
		TypeMeta: metav1.TypeMeta{APIVersion: "authorization.k8s.io/v1", Kind: "SelfSubjectAccessReview"},
		Spec:     authorizationv1.SelfSubjectAccessReviewSpec{ResourceAttributes: &attrs},
	}
	body, err := json.Marshal(&review)
	if err != nil {
		return false, err
	}
	cluster := api.ResolveCluster(ctx, c.defaultCluster, opts...)
	data, err := transport.Post(ctx, c.transport, cluster, selfSubjectAccessReviewPath, body)
	if err != nil {
		return false, fmt.Errorf("access review %s %s: %w", attrs.Verb, attrs.Resource, err)
	}
	var result authorizationv1.SelfSubjectAccessReview
	if err := json.Unmarshal(data, &result); err != nil {
		return false, fmt.Errorf("decode access review: %w", err)
	}
	return result.Status.Allowed, nil
}

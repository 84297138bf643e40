package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/duration"
	"k8s.io/apimachinery/pkg/util/validation/field"
	yaml "sigs.k8s.io/yaml"

	"github.com/sttts/kcore/pkg/api"
)

// Object wraps one server document of a known kind. The wrapped document is
// never modified; Update and Delete talk to the server and leave the wrapper
// as it was.
type Object struct {
	desc    api.Descriptor
	doc     *unstructured.Unstructured
	cluster string
	client  *Client
}

// New wraps doc as an object of kind desc. It returns a validation error when
// doc lacks kind or metadata.name, or names a different kind.
func New(desc api.Descriptor, doc *unstructured.Unstructured) (*Object, error) {
	if err := validateDocument(doc, nil).ToAggregate(); err != nil {
		return nil, err
	}
	if doc.GetKind() != desc.Kind {
		return nil, field.ErrorList{field.Invalid(field.NewPath("kind"), doc.GetKind(), fmt.Sprintf("expected %s", desc.Kind))}.ToAggregate()
	}
	return &Object{desc: desc, doc: doc.DeepCopy()}, nil
}

func validateDocument(doc *unstructured.Unstructured, p *field.Path) field.ErrorList {
	var errs field.ErrorList
	if doc == nil {
		return append(errs, field.Required(p, "document is empty"))
	}
	if doc.GetKind() == "" {
		errs = append(errs, field.Required(p.Child("kind"), "please set a kind to the resource"))
	}
	if doc.GetName() == "" {
		errs = append(errs, field.Required(p.Child("metadata", "name"), "resource has no name"))
	}
	return errs
}

// Descriptor returns the kind metadata.
func (o *Object) Descriptor() api.Descriptor { return o.desc }

// Kind returns the document's kind.
func (o *Object) Kind() string { return o.doc.GetKind() }

// APIVersion returns the document's apiVersion.
func (o *Object) APIVersion() string { return o.doc.GetAPIVersion() }

// Name returns metadata.name.
func (o *Object) Name() string { return o.doc.GetName() }

// Namespace returns metadata.namespace, empty for cluster-scoped kinds.
func (o *Object) Namespace() string { return o.doc.GetNamespace() }

// UID returns metadata.uid.
func (o *Object) UID() types.UID { return o.doc.GetUID() }

// ResourceVersion returns metadata.resourceVersion.
func (o *Object) ResourceVersion() string { return o.doc.GetResourceVersion() }

// Labels returns a copy of metadata.labels.
func (o *Object) Labels() map[string]string { return o.doc.GetLabels() }

// Annotations returns a copy of metadata.annotations.
func (o *Object) Annotations() map[string]string { return o.doc.GetAnnotations() }

// OwnerReferences returns the owner links of the object.
func (o *Object) OwnerReferences() []metav1.OwnerReference { return o.doc.GetOwnerReferences() }

// CreationTimestamp returns metadata.creationTimestamp.
func (o *Object) CreationTimestamp() time.Time { return o.doc.GetCreationTimestamp().Time }

// Cluster returns the cluster the object was fetched from, if known.
func (o *Object) Cluster() string { return o.cluster }

// Age returns the time since creation. It is recomputed on every call.
func (o *Object) Age() time.Duration { return o.AgeAt(time.Now()) }

// AgeAt returns the age relative to now. Objects without a creation
// timestamp, or created in the future, have age zero.
func (o *Object) AgeAt(now time.Time) time.Duration {
	created := o.CreationTimestamp()
	if created.IsZero() || now.Before(created) {
		return 0
	}
	return now.Sub(created)
}

// HumanAge formats Age the way kubectl does.
func (o *Object) HumanAge() string {
	if o.CreationTimestamp().IsZero() {
		return "<unknown>"
	}
	return duration.HumanDuration(o.Age())
}

// Value looks up a field by path. The second result is false when any
// segment is missing.
func (o *Object) Value(fields ...string) (interface{}, bool) {
	v, found, err := unstructured.NestedFieldNoCopy(o.doc.Object, fields...)
	if err != nil || !found {
		return nil, false
	}
	return runtime.DeepCopyJSONValue(v), true
}

// String looks up a string field, returning "" when absent or not a string.
func (o *Object) String(fields ...string) string {
	s, _, _ := unstructured.NestedString(o.doc.Object, fields...)
	return s
}

// Unstructured returns a deep copy of the wrapped document.
func (o *Object) Unstructured() *unstructured.Unstructured { return o.doc.DeepCopy() }

// MarshalJSON serializes the wrapped document.
func (o *Object) MarshalJSON() ([]byte, error) { return json.Marshal(o.doc.Object) }

// YAML serializes the wrapped document as YAML.
func (o *Object) YAML() ([]byte, error) { return yaml.Marshal(o.doc.Object) }

// DetailsLink returns the UI route of the object.
func (o *Object) DetailsLink() string {
	parts := []string{o.clusterPrefix(), o.desc.ListRoute()}
	if o.desc.Namespaced {
		parts = append(parts, url.PathEscape(o.Namespace()))
	}
	parts = append(parts, url.PathEscape(o.Name()))
	return path.Join(parts...)
}

// ListLink returns the UI route listing objects of this kind.
func (o *Object) ListLink() string {
	return path.Join(o.clusterPrefix(), o.desc.ListRoute())
}

func (o *Object) clusterPrefix() string {
	if o.cluster == "" {
		return "/"
	}
	return "/c/" + url.PathEscape(o.cluster)
}

func (o *Object) endpoint() (*api.Endpoint, error) {
	if o.client == nil {
		return nil, fmt.Errorf("%s %s is not bound to a client", o.Kind(), o.Name())
	}
	return o.client.Endpoint(o.desc), nil
}

func (o *Object) clusterOption() []api.Option {
	if o.cluster == "" {
		return nil
	}
	return []api.Option{api.InCluster(o.cluster)}
}

// Delete deletes the object on the server.
func (o *Object) Delete(ctx context.Context) error {
	ep, err := o.endpoint()
	if err != nil {
		return err
	}
	return ep.DeleteAt(ctx, o.Namespace(), o.Name(), o.clusterOption()...)
}

// Update replaces the object on the server with doc and returns the stored
// result. The receiver keeps the old document.
func (o *Object) Update(ctx context.Context, doc *unstructured.Unstructured) (*Object, error) {
	ep, err := o.endpoint()
	if err != nil {
		return nil, err
	}
	if err := validateDocument(doc, nil).ToAggregate(); err != nil {
		return nil, err
	}
	stored, err := ep.Put(ctx, doc, o.clusterOption()...)
	if err != nil {
		return nil, err
	}
	return o.client.wrap(o.desc, stored, o.cluster)
}

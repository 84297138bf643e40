package resources

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/transport/fake"
)

func podDoc(ns, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "Pod",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": ns,
			"uid":       "uid-" + name,
		},
	}}
}

func TestNewValidatesDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     *unstructured.Unstructured
		wantErr string
	}{
		{"missing name", &unstructured.Unstructured{Object: map[string]interface{}{"kind": "Pod"}}, "metadata.name"},
		{"missing kind", &unstructured.Unstructured{Object: map[string]interface{}{"metadata": map[string]interface{}{"name": "a"}}}, "kind"},
		{"wrong kind", &unstructured.Unstructured{Object: map[string]interface{}{"kind": "Node", "metadata": map[string]interface{}{"name": "a"}}}, "expected Pod"},
		{"nil", nil, "document is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(PodKind, tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestObjectAccessors(t *testing.T) {
	doc := podDoc("team-a", "web")
	doc.SetLabels(map[string]string{"app": "web"})
	obj, err := New(PodKind, doc)
	if err != nil {
		t.Fatal(err)
	}
	if obj.Name() != "web" || obj.Namespace() != "team-a" || obj.UID() != "uid-web" {
		t.Fatalf("unexpected identity %s/%s %s", obj.Namespace(), obj.Name(), obj.UID())
	}
	if obj.Labels()["app"] != "web" {
		t.Fatalf("labels = %v", obj.Labels())
	}
	if _, ok := obj.Value("spec", "nodeName"); ok {
		t.Fatal("missing field reported as present")
	}
	if v, ok := obj.Value("metadata", "name"); !ok || v != "web" {
		t.Fatalf("Value(metadata.name) = %v, %v", v, ok)
	}

	// the wrapper owns a copy
	doc.SetName("changed")
	if obj.Name() != "web" {
		t.Fatal("wrapper follows mutations of the input document")
	}
	u := obj.Unstructured()
	u.SetName("mutated")
	if obj.Name() != "web" {
		t.Fatal("wrapper follows mutations of Unstructured()")
	}
}

func TestObjectAge(t *testing.T) {
	doc := podDoc("default", "old")
	created := time.Now().Add(-2 * time.Hour).UTC().Truncate(time.Second)
	doc.SetCreationTimestamp(metav1Time(created))
	obj, err := New(PodKind, doc)
	if err != nil {
		t.Fatal(err)
	}
	now := created.Add(time.Hour)
	first := obj.AgeAt(now)
	second := obj.AgeAt(now.Add(time.Minute))
	if first != time.Hour || second <= first {
		t.Fatalf("ages %v then %v", first, second)
	}
	if got := obj.AgeAt(created.Add(-time.Minute)); got != 0 {
		t.Fatalf("future creation age = %v", got)
	}
	if a, b := obj.Age(), obj.Age(); b < a {
		t.Fatalf("age went backwards: %v then %v", a, b)
	}
	if obj.HumanAge() != "2h" {
		t.Fatalf("HumanAge = %q", obj.HumanAge())
	}

	fresh, _ := New(PodKind, podDoc("default", "new"))
	if fresh.Age() != 0 || fresh.HumanAge() != "<unknown>" {
		t.Fatalf("no timestamp: age %v, human %q", fresh.Age(), fresh.HumanAge())
	}
}

func TestObjectLinks(t *testing.T) {
	tr := fake.New()
	tr.Respond(http.MethodGet, "/api/v1/namespaces/prod/pods/web", podDoc("prod", "web").Object)
	tr.Respond(http.MethodGet, "/api/v1/nodes/n1", map[string]interface{}{"kind": "Node", "apiVersion": "v1", "metadata": map[string]interface{}{"name": "n1"}})
	c := NewClient(DefaultRegistry(), tr)
	ctx := api.WithCluster(context.Background(), "east")

	pod, err := c.Pods().Get(ctx, "prod", "web")
	if err != nil {
		t.Fatal(err)
	}
	if got := pod.DetailsLink(); got != "/c/east/pods/prod/web" {
		t.Fatalf("DetailsLink = %q", got)
	}
	if got := pod.ListLink(); got != "/c/east/pods" {
		t.Fatalf("ListLink = %q", got)
	}
	node, err := c.Nodes().Get(ctx, "", "n1")
	if err != nil {
		t.Fatal(err)
	}
	if got := node.DetailsLink(); got != "/c/east/nodes/n1" {
		t.Fatalf("node DetailsLink = %q", got)
	}

	detached, _ := New(PodKind, podDoc("prod", "web"))
	if got := detached.DetailsLink(); got != "/pods/prod/web" {
		t.Fatalf("detached DetailsLink = %q", got)
	}
}

func TestObjectDeleteAndUpdate(t *testing.T) {
	tr := fake.New()
	tr.Respond(http.MethodGet, "/api/v1/namespaces/prod/pods", map[string]interface{}{
		"metadata": map[string]interface{}{"resourceVersion": "10"},
		"items":    []interface{}{podDoc("prod", "web").Object},
	})
	tr.Respond(http.MethodDelete, "/api/v1/namespaces/prod/pods/web", map[string]interface{}{})
	tr.Handle("", http.MethodPut, "/api/v1/namespaces/prod/pods/web", func(call fake.Call) ([]byte, error) {
		return call.Body, nil
	})
	c := NewClient(DefaultRegistry(), tr, WithCurrentCluster(func() string { return "west" }))

	list, err := c.Pods().List(context.Background(), "prod")
	if err != nil {
		t.Fatal(err)
	}
	if list.ResourceVersion != "10" || len(list.Items) != 1 || list.Cluster != "west" {
		t.Fatalf("unexpected list %+v", list)
	}
	obj := list.Items[0]

	doc := obj.Unstructured()
	doc.SetLabels(map[string]string{"tier": "frontend"})
	updated, err := obj.Update(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Labels()["tier"] != "frontend" || len(obj.Labels()) != 0 {
		t.Fatalf("update result %v, original %v", updated.Labels(), obj.Labels())
	}

	if err := obj.Delete(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, call := range tr.Calls() {
		if call.Cluster != "west" {
			t.Fatalf("call %s %s went to %q", call.Method, call.Path, call.Cluster)
		}
	}
	if tr.Deletes("/api/v1/namespaces/prod/pods/web") != 1 {
		t.Fatal("expected one delete")
	}
}

func TestUnboundObjectOperationsFail(t *testing.T) {
	obj, _ := New(PodKind, podDoc("default", "a"))
	if err := obj.Delete(context.Background()); err == nil {
		t.Fatal("expected error deleting unbound object")
	}
	if ok, err := obj.Authorization(context.Background(), "delete"); ok || err == nil {
		t.Fatalf("Authorization = %v, %v", ok, err)
	}
}

func TestAuthorization(t *testing.T) {
	tr := fake.New()
	tr.Respond(http.MethodGet, "/api/v1/namespaces/prod/pods/web", podDoc("prod", "web").Object)
	var review map[string]interface{}
	tr.Handle("", http.MethodPost, selfSubjectAccessReviewPath, func(call fake.Call) ([]byte, error) {
		if err := json.Unmarshal(call.Body, &review); err != nil {
			return nil, err
		}
		return []byte(`{"status":{"allowed":true}}`), nil
	})
	c := NewClient(DefaultRegistry(), tr)
	obj, err := c.Pods().Get(context.Background(), "prod", "web", api.InCluster("east"))
	if err != nil {
		t.Fatal(err)
	}

	ok, err := obj.Authorization(context.Background(), "delete")
	if err != nil || !ok {
		t.Fatalf("Authorization = %v, %v", ok, err)
	}
	attrs, _, _ := unstructured.NestedStringMap(review, "spec", "resourceAttributes")
	if attrs["verb"] != "delete" || attrs["resource"] != "pods" || attrs["namespace"] != "prod" || attrs["name"] != "web" {
		t.Fatalf("unexpected review attributes %v", attrs)
	}
	calls := tr.Calls()
	if last := calls[len(calls)-1]; last.Cluster != "east" {
		t.Fatalf("review sent to %q", last.Cluster)
	}

	tr.Fail("", http.MethodPost, selfSubjectAccessReviewPath, apierrors.NewServiceUnavailable("down"))
	ok, err = obj.Authorization(context.Background(), "delete")
	if ok || !apierrors.IsServiceUnavailable(err) {
		t.Fatalf("failed review = %v, %v", ok, err)
	}

	tr.Fail("", http.MethodPost, selfSubjectAccessReviewPath, apierrors.NewForbidden(schema.GroupResource{Group: "authorization.k8s.io", Resource: "selfsubjectaccessreviews"}, "", nil))
	if ok, err := obj.Authorization(context.Background(), "get"); ok || err == nil {
		t.Fatalf("forbidden review = %v, %v", ok, err)
	}
}

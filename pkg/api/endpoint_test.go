package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/sttts/kcore/pkg/transport/fake"
)

var (
	testPods = Descriptor{Kind: "Pod", Version: "v1", Plural: "pods", Namespaced: true, DetailsRoute: "pod"}
	testNPs  = Descriptor{Kind: "NetworkPolicy", Group: "networking.k8s.io", Version: "v1", Plural: "networkpolicies", Namespaced: true, DetailsRoute: "networkpolicy"}
	testNode = Descriptor{Kind: "Node", Version: "v1", Plural: "nodes", DetailsRoute: "node"}
)

func TestDescriptorPaths(t *testing.T) {
	tests := []struct {
		name      string
		desc      Descriptor
		namespace string
		item      string
		wantColl  string
		wantItem  string
	}{
		{"core namespaced", testPods, "default", "web", "/api/v1/namespaces/default/pods", "/api/v1/namespaces/default/pods/web"},
		{"core all namespaces", testPods, "", "", "/api/v1/pods", ""},
		{"group namespaced", testNPs, "prod", "deny", "/apis/networking.k8s.io/v1/namespaces/prod/networkpolicies", "/apis/networking.k8s.io/v1/namespaces/prod/networkpolicies/deny"},
		{"cluster-scoped ignores namespace", testNode, "ignored", "n1", "/api/v1/nodes", "/api/v1/nodes/n1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.desc.CollectionPath(tt.namespace); got != tt.wantColl {
				t.Fatalf("CollectionPath = %q, want %q", got, tt.wantColl)
			}
			if tt.item == "" {
				return
			}
			if got := tt.desc.ItemPath(tt.namespace, tt.item); got != tt.wantItem {
				t.Fatalf("ItemPath = %q, want %q", got, tt.wantItem)
			}
		})
	}
	if got := testNPs.APIVersion(); got != "networking.k8s.io/v1" {
		t.Fatalf("APIVersion = %q", got)
	}
	if got := testPods.APIVersion(); got != "v1" {
		t.Fatalf("APIVersion = %q", got)
	}
}

func TestScopedViewsPanicOnWrongScope(t *testing.T) {
	tr := fake.New()
	assertPanics(t, func() { NewEndpoint(testNode, tr).Namespaced() })
	assertPanics(t, func() { NewEndpoint(testPods, tr).ClusterScoped() })
	assertPanics(t, func() { NewEndpoint(Descriptor{Kind: "X"}, tr) })
}

func assertPanics(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	fn()
}

func TestListFillsKindAndUsesCluster(t *testing.T) {
	tr := fake.New()
	tr.Respond(http.MethodGet, "/api/v1/namespaces/default/pods", map[string]any{
		"kind":     "PodList",
		"metadata": map[string]any{"resourceVersion": "42"},
		"items": []any{
			map[string]any{"metadata": map[string]any{"name": "a", "namespace": "default", "uid": "1"}},
		},
	})
	pods := NewEndpoint(testPods, tr, WithDefaultCluster(func() string { return "fallback" })).Namespaced()

	ctx := WithCluster(context.Background(), "ambient")
	list, err := pods.List(ctx, "default", WithLabelSelector("app=web"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list.GetResourceVersion() != "42" || len(list.Items) != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
	if list.Items[0].GetKind() != "Pod" || list.Items[0].GetAPIVersion() != "v1" {
		t.Fatalf("kind/apiVersion not filled: %v", list.Items[0].Object)
	}

	calls := tr.Calls()
	if calls[0].Cluster != "ambient" {
		t.Fatalf("expected ambient cluster, got %q", calls[0].Cluster)
	}
	if !strings.Contains(calls[0].Path, "labelSelector=app%3Dweb") {
		t.Fatalf("missing selector in %q", calls[0].Path)
	}

	if _, err := pods.List(ctx, "default", InCluster("explicit")); err != nil {
		t.Fatalf("List: %v", err)
	}
	if _, err := pods.List(context.Background(), "default"); err != nil {
		t.Fatalf("List: %v", err)
	}
	calls = tr.Calls()
	if calls[1].Cluster != "explicit" || calls[2].Cluster != "fallback" {
		t.Fatalf("cluster resolution wrong: %q, %q", calls[1].Cluster, calls[2].Cluster)
	}
}

func TestNamespacedGetRequiresNamespace(t *testing.T) {
	tr := fake.New()
	pods := NewEndpoint(testPods, tr).Namespaced()
	_, err := pods.Get(context.Background(), "", "web")
	if err == nil || !strings.Contains(err.Error(), "metadata.namespace") {
		t.Fatalf("expected namespace validation error, got %v", err)
	}
	if len(tr.Calls()) != 0 {
		t.Fatalf("expected no network calls, got %d", len(tr.Calls()))
	}
}

func TestApplyCreatesOrReplaces(t *testing.T) {
	tr := fake.New()
	nps := NewEndpoint(testNPs, tr).Namespaced()
	doc := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "networking.k8s.io/v1",
		"kind":       "NetworkPolicy",
		"metadata":   map[string]interface{}{"name": "deny"},
	}}

	tr.Respond(http.MethodPost, "/apis/networking.k8s.io/v1/namespaces/default/networkpolicies", doc.Object)
	if _, err := nps.Apply(context.Background(), doc); err != nil {
		t.Fatalf("Apply (create): %v", err)
	}
	if n := tr.CallCount(http.MethodPost, "/apis/networking.k8s.io/v1/namespaces/default/networkpolicies"); n != 1 {
		t.Fatalf("expected 1 POST, got %d", n)
	}
	if doc.GetNamespace() != "" {
		t.Fatalf("Apply mutated its input")
	}

	item := "/apis/networking.k8s.io/v1/namespaces/default/networkpolicies/deny"
	tr.Respond(http.MethodGet, item, map[string]any{"metadata": map[string]any{"name": "deny", "resourceVersion": "7"}})
	tr.Respond(http.MethodPut, item, doc.Object)
	if _, err := nps.Apply(context.Background(), doc); err != nil {
		t.Fatalf("Apply (replace): %v", err)
	}
	var put *fake.Call
	for _, c := range tr.Calls() {
		if c.Method == http.MethodPut {
			c := c
			put = &c
		}
	}
	if put == nil || !strings.Contains(string(put.Body), `"resourceVersion":"7"`) {
		t.Fatalf("expected PUT carrying live resourceVersion, got %+v", put)
	}
}

func TestTransportErrorsAreReturned(t *testing.T) {
	tr := fake.New()
	tr.Fail("", http.MethodDelete, "/api/v1/nodes/n1", apierrors.NewForbidden(schema.GroupResource{Resource: "nodes"}, "n1", errors.New("nope")))
	err := NewEndpoint(testNode, tr).ClusterScoped().Delete(context.Background(), "n1")
	if !apierrors.IsForbidden(err) {
		t.Fatalf("expected wrapped forbidden error, got %v", err)
	}
}

func TestWatchPath(t *testing.T) {
	e := NewEndpoint(testPods, fake.New())
	got := e.WatchPath("default", "12", WithFieldSelector("spec.nodeName=n1"))
	for _, want := range []string{"/api/v1/namespaces/default/pods?", "watch=1", "resourceVersion=12", "allowWatchBookmarks=true", "fieldSelector=spec.nodeName%3Dn1"} {
		if !strings.Contains(got, want) {
			t.Fatalf("WatchPath %q missing %q", got, want)
		}
	}
}

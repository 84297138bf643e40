package multicluster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	kctesting "github.com/sttts/kcore/internal/testing"
	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/live"
	"github.com/sttts/kcore/pkg/resources"
	"github.com/sttts/kcore/pkg/transport/fake"
)

const nsPath = "/api/v1/namespaces"

func namespaceList(names ...string) map[string]interface{} {
	var items []interface{}
	for _, n := range names {
		items = append(items, map[string]interface{}{
			"kind": "Namespace", "apiVersion": "v1",
			"metadata": map[string]interface{}{"name": n, "uid": "uid-" + n},
		})
	}
	return map[string]interface{}{"metadata": map[string]interface{}{"resourceVersion": "1"}, "items": items}
}

func threeClusters(t *testing.T) (*fake.Transport, *Fanout) {
	t.Helper()
	kctesting.SetupLogging()
	tr := fake.New()
	tr.RespondIn("a", http.MethodGet, nsPath, namespaceList("default", "team-a"))
	tr.Fail("b", http.MethodGet, nsPath, apierrors.NewServiceUnavailable("b is down"))
	tr.RespondIn("c", http.MethodGet, nsPath, namespaceList("default"))
	client := resources.NewClient(resources.DefaultRegistry(), tr)
	return tr, NewFanout(client, NewSelection("a", "b", "c"), Options{Timeout: time.Second})
}

func TestListCollectsPartialFailures(t *testing.T) {
	_, f := threeClusters(t)
	res, err := f.List(context.Background(), resources.NamespaceKind, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 3 || len(res.Succeeded()) != 2 {
		t.Fatalf("results %+v", res.Results)
	}
	failed := res.Failed()
	if len(failed) != 1 || failed[0].Cluster != "b" || !apierrors.IsServiceUnavailable(failed[0].Err) {
		t.Fatalf("failed %+v", failed)
	}
	if err := res.Err(); err == nil || !strings.Contains(err.Error(), "cluster b") {
		t.Fatalf("aggregate error %v", err)
	}

	items := Concat(res)
	if len(items) != 3 {
		t.Fatalf("merged %d items", len(items))
	}
	clusters := map[string]int{}
	for _, o := range items {
		clusters[o.Cluster()]++
	}
	if clusters["a"] != 2 || clusters["c"] != 1 {
		t.Fatalf("origin tags %v", clusters)
	}
}

func TestDoRunsIndependently(t *testing.T) {
	var running, peak int32
	res := Do(context.Background(), []string{"a", "b", "c", "d"}, 50*time.Millisecond, 2, func(ctx context.Context, cluster string) (string, error) {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		if api.ClusterFrom(ctx) != cluster {
			return "", errors.New("ambient cluster not set")
		}
		if cluster == "b" {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "ok-" + cluster, nil
	})
	if peak > 2 {
		t.Fatalf("ran %d calls in parallel, limit 2", peak)
	}
	if got := res.Values(); len(got) != 3 || got[0] != "ok-a" || got[2] != "ok-d" {
		t.Fatalf("values %v", got)
	}
	if f := res.Failed(); len(f) != 1 || !errors.Is(f[0].Err, context.DeadlineExceeded) {
		t.Fatalf("failed %+v", f)
	}
}

func TestApplyOnExplicitClusters(t *testing.T) {
	tr, f := threeClusters(t)
	tr.Handle("", http.MethodPost, "/api/v1/namespaces/default/configmaps", func(call fake.Call) ([]byte, error) {
		if call.Cluster == "b" {
			return nil, apierrors.NewForbidden(resources.ConfigMapKind.GroupVersionResource().GroupResource(), "settings", errors.New("denied"))
		}
		return call.Body, nil
	})
	doc := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1", "kind": "ConfigMap",
		"metadata": map[string]interface{}{"name": "settings"},
	}}

	res, err := f.On("a", "b").Apply(context.Background(), []*unstructured.Unstructured{doc})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 2 || res.Results[0].Err != nil || res.Results[1].Err == nil {
		t.Fatalf("results %+v", res.Results)
	}
	if !strings.Contains(res.Err().Error(), "ConfigMap settings") {
		t.Fatalf("error does not name the item: %v", res.Err())
	}
	for _, call := range tr.Calls() {
		if call.Cluster == "c" {
			t.Fatal("explicit target list ignored")
		}
	}

	bad := &unstructured.Unstructured{Object: map[string]interface{}{"kind": "ConfigMap"}}
	before := len(tr.Calls())
	if _, err := f.Apply(context.Background(), []*unstructured.Unstructured{doc, bad}); err == nil {
		t.Fatal("expected validation error")
	}
	if len(tr.Calls()) != before {
		t.Fatal("invalid batch reached the network")
	}
}

func TestListSharedOptionsStayPerCluster(t *testing.T) {
	kctesting.SetupLogging()
	tr := fake.New()
	var clusters []string
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("c%d", i)
		clusters = append(clusters, name)
		tr.RespondIn(name, http.MethodGet, nsPath, namespaceList("ns-"+name))
	}
	client := resources.NewClient(resources.DefaultRegistry(), tr)
	f := NewFanout(client, NewSelection(clusters...), Options{Timeout: time.Second})

	// spare capacity lets a careless append share the backing array
	opts := make([]api.Option, 1, 4)
	opts[0] = api.WithLabelSelector("app=web")

	for round := 0; round < 20; round++ {
		res, err := f.List(context.Background(), resources.NamespaceKind, "", opts...)
		if err != nil {
			t.Fatal(err)
		}
		if err := res.Err(); err != nil {
			t.Fatal(err)
		}
		for _, r := range res.Results {
			if len(r.Value) != 1 || r.Value[0].Cluster() != r.Cluster || r.Value[0].Name() != "ns-"+r.Cluster {
				t.Fatalf("round %d: cluster %s got %v", round, r.Cluster, r.Value)
			}
		}
	}
	for _, call := range tr.Calls() {
		if !strings.Contains(call.Path, "labelSelector=app") {
			t.Fatalf("selector lost on %s %s", call.Cluster, call.Path)
		}
	}
	if len(opts) != 1 {
		t.Fatalf("caller options modified: %d", len(opts))
	}
}

func TestApplyExpandsListDocuments(t *testing.T) {
	tr, f := threeClusters(t)
	tr.Handle("", http.MethodPost, "/api/v1/namespaces/default/configmaps", func(call fake.Call) ([]byte, error) {
		return call.Body, nil
	})
	list := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1", "kind": "List",
		"items": []interface{}{
			map[string]interface{}{"apiVersion": "v1", "kind": "ConfigMap", "metadata": map[string]interface{}{"name": "one"}},
			map[string]interface{}{"apiVersion": "v1", "kind": "ConfigMap", "metadata": map[string]interface{}{"name": "two"}},
		},
	}}

	res, err := f.On("a", "c").Apply(context.Background(), []*unstructured.Unstructured{list})
	if err != nil {
		t.Fatal(err)
	}
	if err := res.Err(); err != nil {
		t.Fatal(err)
	}
	for _, r := range res.Results {
		if len(r.Value) != 2 {
			t.Fatalf("cluster %s applied %d items", r.Cluster, len(r.Value))
		}
	}
	if n := tr.CallCount(http.MethodPost, "/api/v1/namespaces/default/configmaps"); n != 4 {
		t.Fatalf("posts = %d", n)
	}
}

func TestNoClusters(t *testing.T) {
	client := resources.NewClient(resources.DefaultRegistry(), fake.New())
	f := NewFanout(client, ClusterSetFunc(func() []string { return nil }), Options{})
	if _, err := f.List(context.Background(), resources.PodKind, ""); !errors.Is(err, ErrNoClusters) {
		t.Fatalf("err = %v", err)
	}
}

func TestSelection(t *testing.T) {
	s := NewSelection("a", "b", "a", "")
	s.Add("c")
	s.Add("b")
	s.Remove("a")
	if got := strings.Join(s.Active(), ","); got != "b,c" {
		t.Fatalf("selection %s", got)
	}
}

func TestSubscribeMergesClusters(t *testing.T) {
	tr, f := threeClusters(t)
	mux := live.New(context.Background(), resources.NewClient(resources.DefaultRegistry(), tr), live.Options{UnavailableAfter: 1})
	defer mux.Close()
	f.opts.Multiplexer = mux

	sub, err := f.On("a", "c").Subscribe(context.Background(), live.Key{Kind: resources.NamespaceKind})
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	var merged MergedSnapshot
	kctesting.Eventually(t, 2*time.Second, time.Millisecond, func() bool {
		select {
		case merged = <-sub.Updates():
		default:
		}
		return len(merged.Clusters) == 2
	}, "no merged snapshot from both clusters")
	if len(merged.Items) != 3 || merged.Items[0].Cluster() != "a" || merged.Items[2].Cluster() != "c" {
		t.Fatalf("merged items %d", len(merged.Items))
	}
	if mux.Connections() != 2 {
		t.Fatalf("connections %d", mux.Connections())
	}
	sub.Close()
	if mux.Connections() != 0 {
		t.Fatalf("connections after close %d", mux.Connections())
	}
}

package kubeconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

func writeKubeconfig(t *testing.T, path, current string, contexts map[string]string) {
	t.Helper()
	config := api.NewConfig()
	config.CurrentContext = current
	for name, server := range contexts {
		config.Clusters[name+"-cluster"] = &api.Cluster{Server: server}
		config.AuthInfos[name+"-user"] = &api.AuthInfo{Token: "token-" + name}
		config.Contexts[name] = &api.Context{Cluster: name + "-cluster", AuthInfo: name + "-user"}
	}
	if err := clientcmd.WriteToFile(*config, path); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverDirectory(t *testing.T) {
	dir := t.TempDir()
	writeKubeconfig(t, filepath.Join(dir, "config"), "east", map[string]string{"east": "https://east:6443"})
	writeKubeconfig(t, filepath.Join(dir, "lab"), "lab", map[string]string{"lab": "https://lab:6443", "east": "https://shadow:6443"})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("{{ not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "cache"), 0o755); err != nil {
		t.Fatal(err)
	}

	paths, err := DirPaths(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(paths[0]) != "config" {
		t.Fatalf("config not first: %v", paths)
	}

	m := NewManager()
	if err := m.Load(paths...); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(m.Names(), ","); got != "east,lab" {
		t.Fatalf("contexts %s", got)
	}
	if m.Current() != "east" {
		t.Fatalf("current %q", m.Current())
	}
	east, ok := m.Context("east")
	if !ok || east.Server != "https://east:6443" || east.Namespace != "default" {
		t.Fatalf("east = %+v", east)
	}
}

func TestRESTConfigAndSwitch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config")
	writeKubeconfig(t, path, "east", map[string]string{"east": "https://east:6443", "west": "https://west:6443"})

	m := NewManager()
	if err := m.Load(path); err != nil {
		t.Fatal(err)
	}
	cfg, err := m.RESTConfig("west")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "https://west:6443" || cfg.BearerToken != "token-west" {
		t.Fatalf("rest config host %s token %s", cfg.Host, cfg.BearerToken)
	}
	if _, err := m.RESTConfig("nope"); err == nil {
		t.Fatal("expected error for unknown context")
	}

	if err := m.SetCurrentContext("west"); err != nil {
		t.Fatal(err)
	}
	reloaded, err := clientcmd.LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.CurrentContext != "west" || m.Current() != "west" {
		t.Fatalf("current context %q / %q", reloaded.CurrentContext, m.Current())
	}
}

func TestLoadWithoutKubeconfigs(t *testing.T) {
	m := NewManager()
	if err := m.Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultPathsFromEnv(t *testing.T) {
	t.Setenv(clientcmd.RecommendedConfigPathEnvVar, strings.Join([]string{"/a/config", "/b/config"}, string(filepath.ListSeparator)))
	paths, err := DefaultPaths()
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || paths[1] != "/b/config" {
		t.Fatalf("paths %v", paths)
	}
}

package appconfig

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	yaml "sigs.k8s.io/yaml"
)

// TestConfigDefaultsYAMLMatchesCode reads config-default.yaml from the repo root
// and compares it with the in-code defaults returned by Default().
func TestConfigDefaultsYAMLMatchesCode(t *testing.T) {
	path := filepath.Join("..", "..", "config-default.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Skipf("config-default.yaml not found: %v", err)
	}

	fromYAML := &Config{}
	if err := yaml.UnmarshalStrict(data, fromYAML); err != nil {
		t.Fatalf("unmarshal defaults yaml: %v", err)
	}
	if !reflect.DeepEqual(fromYAML, Default()) {
		t.Fatalf("config-default.yaml drifted from Default():\nyaml=%+v\ncode=%+v", fromYAML, Default())
	}
}

func TestLoadFileKeepsDefaultsForMissingKeys(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte("actions:\n  gracePeriod: 0s\nwatch:\n  unavailableAfter: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Actions.GracePeriod.Duration != 0 {
		t.Fatalf("grace period %v, want 0", cfg.Actions.GracePeriod.Duration)
	}
	if cfg.Watch.UnavailableAfter != 2 {
		t.Fatalf("unavailableAfter %d", cfg.Watch.UnavailableAfter)
	}
	if cfg.Watch.PollInterval.Duration != 10*time.Second || cfg.NodeShell.Image != Default().NodeShell.Image {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	b := cfg.Backoff()
	if b.Duration != 500*time.Millisecond || b.Cap != 30*time.Second || b.Factor != 2 {
		t.Fatalf("backoff %+v", b)
	}
}

func TestLoadFileMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFile(filepath.Join(dir, "absent.yaml"))
	if err != nil || !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("missing file: %v %+v", err, cfg)
	}

	p := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(p, []byte("watch:\n  unknownKey: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(p); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSaveFileRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "config.yaml")
	in := Default()
	in.Kubernetes.Clusters.Active = []string{"east", "west"}
	if err := SaveFile(p, in); err != nil {
		t.Fatal(err)
	}
	out, err := LoadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", in, out)
	}
}

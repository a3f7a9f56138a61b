package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, rel, contents string) {
	t.Helper()
	abs := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(abs, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func TestLoadMergesBaseAndEnvYAML(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vstate.yaml", "addr: \":8080\"\ndb:\n  driver: sqlite\n  dsn: base.db\nsnapshot_interval: 128\n")
	writeFile(t, root, "env/local/vstate.yaml", "db:\n  driver: memory\n")

	loader, err := NewLoader(root, Options{Service: "vstate", Env: "local"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	bundle, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	db, ok := bundle.Merged["db"].(map[string]any)
	if !ok {
		t.Fatalf("expected db object in merged config, got %#v", bundle.Merged["db"])
	}
	if db["driver"] != "memory" {
		t.Fatalf("expected env layer to override driver to memory, got %v", db["driver"])
	}
	if db["dsn"] != "base.db" {
		t.Fatalf("expected base layer dsn to survive the merge, got %v", db["dsn"])
	}
	if bundle.Merged["addr"] != ":8080" {
		t.Fatalf("expected base addr to survive, got %v", bundle.Merged["addr"])
	}

	if len(bundle.Docs) != 2 {
		t.Fatalf("expected 2 docs loaded, got %d: %+v", len(bundle.Docs), bundle.Docs)
	}
	if bundle.Docs[0].Tier != "base" || bundle.Docs[1].Tier != "env" {
		t.Fatalf("expected docs ordered base before env, got %+v", bundle.Docs)
	}
}

func TestLoadAppliesEnvVarOverridesWithHighestPrecedence(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vstate.yaml", "db:\n  driver: sqlite\n")

	t.Setenv("VSTATE_DB__DRIVER", "postgres")
	t.Setenv("VSTATE_SNAPSHOT_INTERVAL", "64")

	loader, err := NewLoader(root, Options{Service: "vstate", EnvPrefix: "VSTATE_"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	db, ok := bundle.Merged["db"].(map[string]any)
	if !ok {
		t.Fatalf("expected db object, got %#v", bundle.Merged["db"])
	}
	if db["driver"] != "postgres" {
		t.Fatalf("expected env var override to win over file, got %v", db["driver"])
	}

	if got, ok := bundle.Merged["snapshot_interval"]; !ok {
		t.Fatalf("expected snapshot_interval to be set from env var")
	} else if s, ok := got.(json.Number); !ok || s.String() != "64" {
		t.Fatalf("expected snapshot_interval=64, got %#v", got)
	}
}

func TestLoadIgnoresMissingOptionalLayers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vstate.yaml", "addr: \":9090\"\n")

	loader, err := NewLoader(root, Options{Service: "vstate", Env: "prod"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bundle.Merged["addr"] != ":9090" {
		t.Fatalf("expected base layer to still apply when env/prod/vstate.yaml is absent, got %+v", bundle.Merged)
	}
	if len(bundle.Docs) != 1 {
		t.Fatalf("expected exactly 1 doc (missing env layer skipped), got %+v", bundle.Docs)
	}
}

func TestNewLoaderRejectsMissingRoot(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "does-not-exist"), Options{Service: "vstate"}); err == nil {
		t.Fatal("expected an error for a nonexistent config root")
	}
}

func TestCanonicalJSONIsDeterministic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vstate.yaml", "b: 1\na: 2\nnested:\n  z: 1\n  y: 2\n")

	loader, err := NewLoader(root, Options{Service: "vstate"})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	bundle, err := loader.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := bundle.CanonicalJSON()
	if err != nil {
		t.Fatalf("CanonicalJSON: %v", err)
	}
	want := `{"a":2,"b":1,"nested":{"y":2,"z":1}}`
	if string(got) != want {
		t.Fatalf("canonical json mismatch:\ngot:  %s\nwant: %s", got, want)
	}
}

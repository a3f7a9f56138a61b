package config

import "testing"

func TestMergeRecursesIntoNestedMaps(t *testing.T) {
	dst := map[string]any{"db": map[string]any{"driver": "sqlite", "dsn": "a"}}
	src := map[string]any{"db": map[string]any{"driver": "postgres"}}

	out, rep := Merge(dst, src, MergeOptions{})
	if rep.HasWarnings() {
		t.Fatalf("unexpected warnings: %+v", rep.Warnings)
	}
	db := out["db"].(map[string]any)
	if db["driver"] != "postgres" {
		t.Fatalf("expected src to override driver, got %v", db["driver"])
	}
	if db["dsn"] != "a" {
		t.Fatalf("expected dst-only key to survive, got %v", db["dsn"])
	}
}

func TestMergeArrayReplaceIsDefault(t *testing.T) {
	dst := map[string]any{"tags": []any{"a", "b"}}
	src := map[string]any{"tags": []any{"c"}}

	out, _ := Merge(dst, src, MergeOptions{})
	tags := out["tags"].([]any)
	if len(tags) != 1 || tags[0] != "c" {
		t.Fatalf("expected default array policy to replace, got %+v", tags)
	}
}

func TestMergeArrayConcatBounded(t *testing.T) {
	dst := map[string]any{"tags": []any{"a", "b"}}
	src := map[string]any{"tags": []any{"c", "d"}}

	out, rep := Merge(dst, src, MergeOptions{ArrayPolicy: ArrayConcat, MaxConcatLen: 3})
	tags := out["tags"].([]any)
	if len(tags) != 3 {
		t.Fatalf("expected concat result bounded to 3, got %+v", tags)
	}
	if !rep.HasWarnings() {
		t.Fatal("expected a truncation warning")
	}
}

func TestMergeManyFoldsLayersInOrder(t *testing.T) {
	layers := []map[string]any{
		{"addr": ":8080", "db": map[string]any{"driver": "sqlite"}},
		{"db": map[string]any{"driver": "memory"}},
		nil,
		{"snapshot_interval": 64},
	}
	out, _ := MergeMany(layers, MergeOptions{})

	if out["addr"] != ":8080" {
		t.Fatalf("expected first layer's addr to survive, got %v", out["addr"])
	}
	if db := out["db"].(map[string]any); db["driver"] != "memory" {
		t.Fatalf("expected later layer to win, got %v", db["driver"])
	}
	if out["snapshot_interval"] != 64 {
		t.Fatalf("expected last layer's scalar to apply, got %v", out["snapshot_interval"])
	}
}

func TestMergeDepthLimitReplacesSubtree(t *testing.T) {
	dst := map[string]any{"a": map[string]any{"b": map[string]any{"c": 1}}}
	src := map[string]any{"a": map[string]any{"b": map[string]any{"c": 2}}}

	out, rep := Merge(dst, src, MergeOptions{MaxDepth: 1})
	if rep.DepthHit == 0 {
		t.Fatal("expected depth limit to trigger")
	}
	a := out["a"].(map[string]any)
	b := a["b"].(map[string]any)
	if b["c"] != 2 {
		t.Fatalf("expected src subtree to replace once depth is exceeded, got %+v", out)
	}
}

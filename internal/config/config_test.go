package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	tomlContent := `
stack_max = 8192
frames_max = 32
heap_grow_factor = 1.5
initial_gc_threshold = 2048
stress_gc = true
trace_execution = false
`
	if err := os.WriteFile(filepath.Join(dir, "briar.toml"), []byte(tomlContent), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.StackMax != 8192 {
		t.Errorf("stack_max = %d, want 8192", c.StackMax)
	}
	if c.FramesMax != 32 {
		t.Errorf("frames_max = %d, want 32", c.FramesMax)
	}
	if c.HeapGrowFactor != 1.5 {
		t.Errorf("heap_grow_factor = %v, want 1.5", c.HeapGrowFactor)
	}
	if !c.StressGC {
		t.Error("stress_gc = false, want true")
	}

	opts := c.Options()
	if opts.StackMax != 8192 || opts.FramesMax != 32 {
		t.Errorf("Options() did not carry over fields: %+v", opts)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed on missing file: %v", err)
	}
	if c.StackMax != 0 {
		t.Errorf("expected zero-value Config, got %+v", c)
	}
}

func TestFindAndLoadWalksUpward(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "briar.toml"), []byte("stress_gc = true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}

	c, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if !c.StressGC {
		t.Error("expected to find briar.toml in an ancestor directory")
	}
}

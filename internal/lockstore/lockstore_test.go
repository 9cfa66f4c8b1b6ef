package lockstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := New(t.TempDir())
	doc := s.Load()
	if doc.Version != SchemaVersion {
		t.Fatalf("expected schema version %d, got %d", SchemaVersion, doc.Version)
	}
	if len(doc.Skills) != 0 {
		t.Fatalf("expected empty skills, got %+v", doc.Skills)
	}
}

func TestPutGetRemove(t *testing.T) {
	s := New(t.TempDir())
	s.Put("greeter", "1.2.0")

	entry, ok := s.Get("greeter")
	if !ok {
		t.Fatal("expected greeter to be tracked")
	}
	if entry.Version != "1.2.0" {
		t.Fatalf("version mismatch: %q", entry.Version)
	}
	if entry.InstalledAt <= 0 {
		t.Fatalf("installedAt not recorded: %d", entry.InstalledAt)
	}

	s.Remove("greeter")
	if _, ok := s.Get("greeter"); ok {
		t.Fatal("expected greeter to be gone")
	}
	// Removing again must be a no-op.
	s.Remove("greeter")
}

func TestSaveShape(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	s.Put("greeter", "1.0.0")

	data, err := os.ReadFile(filepath.Join(root, ".lock", "lock.json"))
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("lock file is not valid json: %v", err)
	}
	if string(raw["version"]) != "1" {
		t.Fatalf("expected version 1, got %s", raw["version"])
	}
	var skills map[string]Entry
	if err := json.Unmarshal(raw["skills"], &skills); err != nil {
		t.Fatalf("decode skills: %v", err)
	}
	if skills["greeter"].Version != "1.0.0" {
		t.Fatalf("unexpected skills payload: %+v", skills)
	}
}

func TestCorruptFileSelfHeals(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	if err := os.MkdirAll(filepath.Dir(s.Path()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(s.Path(), []byte(`{"version":1,"skills":{tru`), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	doc := s.Load()
	if len(doc.Skills) != 0 {
		t.Fatalf("corrupt file should load as empty, got %+v", doc.Skills)
	}

	// The pipeline keeps going: a following Put replaces the garbage.
	s.Put("greeter", "1.0.0")
	if _, ok := s.Get("greeter"); !ok {
		t.Fatal("expected put after corruption to stick")
	}
}

func TestLoadSaveRoundTripIsNoOp(t *testing.T) {
	s := New(t.TempDir())
	s.Put("a", "1.0.0")
	s.Put("b", "2.0.0")

	first := s.Load()
	s.Save(first)
	second := s.Load()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("round trip changed document:\n%+v\n%+v", first, second)
	}
}

func TestSlugsSorted(t *testing.T) {
	s := New(t.TempDir())
	s.Put("zeta", "1.0.0")
	s.Put("alpha", "1.0.0")
	s.Put("mid", "1.0.0")
	got := s.Slugs()
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("slugs = %v, want %v", got, want)
	}
}

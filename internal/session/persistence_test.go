package session

import (
	"path/filepath"
	"testing"
)

func TestFileKV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	kv, err := NewFileKV(dir)
	if err != nil {
		t.Fatalf("NewFileKV: %v", err)
	}

	if _, ok, err := kv.Get(KeyActive); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}

	if err := kv.Set(KeyActive, "sess_42"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get(KeyActive)
	if err != nil || !ok || v != "sess_42" {
		t.Fatalf("Get after Set: v=%q ok=%v err=%v", v, ok, err)
	}

	if err := kv.Delete(KeyActive); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get(KeyActive); ok {
		t.Fatal("expected key gone after delete")
	}

	// Deleting an absent key is not an error.
	if err := kv.Delete(KeyActive); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}

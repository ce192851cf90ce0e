package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestComputeHash(t *testing.T) {
	tmpDir := t.TempDir()
	file1 := filepath.Join(tmpDir, "test1.txt")
	file2 := filepath.Join(tmpDir, "test2.txt")
	file3 := filepath.Join(tmpDir, "test1_copy.txt")

	os.WriteFile(file1, []byte("Hello, World!"), 0644)
	os.WriteFile(file2, []byte("Different content"), 0644)
	os.WriteFile(file3, []byte("Hello, World!"), 0644)

	hash1, err := ComputeHash(file1)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	hash2, err := ComputeHash(file2)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}
	hash3, err := ComputeHash(file3)
	if err != nil {
		t.Fatalf("ComputeHash failed: %v", err)
	}

	if hash1 != hash3 {
		t.Errorf("Same content should produce same hash: %s != %s", hash1, hash3)
	}
	if hash1 == hash2 {
		t.Errorf("Different content should produce different hash")
	}
	if len(hash1) != 32 {
		t.Errorf("Hash should be 32 chars, got %d", len(hash1))
	}
}

func TestComputeHashMissingFile(t *testing.T) {
	if _, err := ComputeHash(filepath.Join(t.TempDir(), "nope.epub")); err == nil {
		t.Error("ComputeHash should fail for a missing file")
	}
}

func TestStore(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	testHash := "abcdef1234567890abcdef1234567890"

	if _, ok := store.Position(testHash); ok {
		t.Error("Expected no position for unknown hash")
	}

	if err := store.SetPosition(testHash, Position{Chapter: 3, PageInChapter: 7}); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	pos, ok := store.Position(testHash)
	if !ok || pos.Chapter != 3 || pos.PageInChapter != 7 {
		t.Errorf("Position() = %+v, %v; want chapter 3 page 7", pos, ok)
	}
	if pos.UpdatedAt.IsZero() {
		t.Error("SetPosition should stamp UpdatedAt")
	}

	if err := store.Clear(testHash); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := store.Position(testHash); ok {
		t.Error("Expected no position after clear")
	}
}

func TestStorePersistence(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", tmpDir)

	testHash := "abcdef1234567890abcdef1234567890"

	store1, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	store1.SetPosition(testHash, Position{Chapter: 1, PageInChapter: 2})

	if _, err := os.Stat(filepath.Join(tmpDir, "leaf", "positions.json")); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	store2, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	pos, ok := store2.Position(testHash)
	if !ok || pos.Chapter != 1 || pos.PageInChapter != 2 {
		t.Errorf("Expected persisted chapter 1 page 2, got %+v", pos)
	}
}

func TestStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "positions.json"), []byte("{not json"), 0644)

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed on corrupt file: %v", err)
	}
	if err := store.SetPosition("h", Position{Chapter: 1}); err != nil {
		t.Fatalf("SetPosition failed: %v", err)
	}
	if _, ok := store.Position("h"); !ok {
		t.Error("Expected position after rewriting corrupt file")
	}
}

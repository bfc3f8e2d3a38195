package hashindex

import (
	"path/filepath"
	"testing"
)

func TestWholeIndex_PutLookupSnapshotLoad(t *testing.T) {
	idx := NewWholeIndex()
	h := HashText("Hello, world.")
	idx.Put(h, WholeHit{EntryID: 1, Target: "Bonjour le monde."})

	hit, ok := idx.Lookup(h)
	if !ok || hit.EntryID != 1 || hit.Target != "Bonjour le monde." {
		t.Fatalf("unexpected lookup result: %+v, ok=%v", hit, ok)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", idx.Len())
	}

	path := filepath.Join(t.TempDir(), "whole.lookup")
	if err := idx.Snapshot(path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	loaded, err := LoadWholeIndex(path)
	if err != nil {
		t.Fatalf("LoadWholeIndex: %v", err)
	}
	hit, ok = loaded.Lookup(h)
	if !ok || hit.EntryID != 1 || hit.Target != "Bonjour le monde." {
		t.Fatalf("unexpected reloaded lookup result: %+v, ok=%v", hit, ok)
	}
}

func TestWholeIndex_LookupMiss(t *testing.T) {
	idx := NewWholeIndex()
	if _, ok := idx.Lookup(HashText("absent")); ok {
		t.Fatal("expected no hit for an unindexed hash")
	}
}

func TestWholeIndex_Delete(t *testing.T) {
	idx := NewWholeIndex()
	h := HashText("x")
	idx.Put(h, WholeHit{EntryID: 1, Target: "y"})
	idx.Delete(h)
	if _, ok := idx.Lookup(h); ok {
		t.Fatal("expected hit to be gone after Delete")
	}
}

func TestLoadWholeIndex_MissingFileIsEmpty(t *testing.T) {
	idx, err := LoadWholeIndex(filepath.Join(t.TempDir(), "absent.lookup"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d entries", idx.Len())
	}
}

func TestLineIndex_PutLookupSnapshotLoad(t *testing.T) {
	idx := NewLineIndex()
	h := HashText("line one")
	idx.Put(h, LineHit{EntryID: 1, LineOrdinal: 0, TargetLine: "ligne un"})
	idx.Put(h, LineHit{EntryID: 2, LineOrdinal: 3, TargetLine: "ligne un bis"})

	hits, ok := idx.Lookup(h)
	if !ok || len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %v, ok=%v", hits, ok)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected total length 2, got %d", idx.Len())
	}

	path := filepath.Join(t.TempDir(), "line.lookup")
	if err := idx.Snapshot(path); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	loaded, err := LoadLineIndex(path)
	if err != nil {
		t.Fatalf("LoadLineIndex: %v", err)
	}
	hits, ok = loaded.Lookup(h)
	if !ok || len(hits) != 2 {
		t.Fatalf("unexpected reloaded hits: %v, ok=%v", hits, ok)
	}
}

func TestLineIndex_DeleteEntry(t *testing.T) {
	idx := NewLineIndex()
	h1 := HashText("a")
	h2 := HashText("b")
	idx.Put(h1, LineHit{EntryID: 1, LineOrdinal: 0, TargetLine: "x"})
	idx.Put(h2, LineHit{EntryID: 1, LineOrdinal: 1, TargetLine: "y"})
	idx.Put(h2, LineHit{EntryID: 2, LineOrdinal: 0, TargetLine: "z"})

	idx.DeleteEntry(1)

	if _, ok := idx.Lookup(h1); ok {
		t.Fatal("expected h1's bucket to be removed entirely")
	}
	hits, ok := idx.Lookup(h2)
	if !ok || len(hits) != 1 || hits[0].EntryID != 2 {
		t.Fatalf("expected only entry 2's hit to survive, got %v", hits)
	}
}

func TestHashText_IsDeterministic(t *testing.T) {
	if HashText("same") != HashText("same") {
		t.Fatal("expected HashText to be deterministic")
	}
	if HashText("a") == HashText("b") {
		t.Fatal("expected different inputs to hash differently")
	}
}

package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *PackJournal {
	t.Helper()
	j := NewPackJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err := j.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestPackJournal_SetGetRoundTrip(t *testing.T) {
	j := openTestJournal(t)

	packedAt := time.Now().Add(-time.Hour).Truncate(time.Second)
	rec := &PackRecord{
		Name:        "world",
		Fingerprint: "d:3:1024:1700000000000000000",
		Hash:        "abc123",
		PackedAt:    packedAt,
	}
	if err := j.Set(rec); err != nil {
		t.Fatal(err)
	}

	got, err := j.Get("world")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a record, got nil")
	}
	if got.Fingerprint != rec.Fingerprint || got.Hash != rec.Hash {
		t.Fatalf("record mismatch: got %+v", got)
	}
	if !got.PackedAt.Equal(packedAt) {
		t.Fatalf("expected packed_at %v, got %v", packedAt, got.PackedAt)
	}
}

func TestPackJournal_GetMissing(t *testing.T) {
	j := openTestJournal(t)

	got, err := j.Get("never-packed")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing record, got %+v", got)
	}
}

func TestPackJournal_SetReplaces(t *testing.T) {
	j := openTestJournal(t)

	first := &PackRecord{Name: "world", Fingerprint: "f:10:1", Hash: "h1", PackedAt: time.Now()}
	if err := j.Set(first); err != nil {
		t.Fatal(err)
	}
	second := &PackRecord{Name: "world", Fingerprint: "f:20:2", Hash: "h2", PackedAt: time.Now()}
	if err := j.Set(second); err != nil {
		t.Fatal(err)
	}

	got, err := j.Get("world")
	if err != nil {
		t.Fatal(err)
	}
	if got.Hash != "h2" || got.Fingerprint != "f:20:2" {
		t.Fatalf("expected replaced record, got %+v", got)
	}

	count, err := j.Count()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected 1 entry, got %d", count)
	}
}

func TestPackJournal_Delete(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Set(&PackRecord{Name: "world", Fingerprint: "f:1:1", Hash: "h", PackedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := j.Delete("world"); err != nil {
		t.Fatal(err)
	}
	got, err := j.Get("world")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected record gone, got %+v", got)
	}

	// deleting again is fine
	if err := j.Delete("world"); err != nil {
		t.Fatal(err)
	}
}

func TestPackJournal_DoubleOpen(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Open(); err == nil {
		t.Fatal("expected error on second open")
	}
}

func TestFingerprint_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "save.dat")
	if err := os.WriteFile(path, []byte("aaaa"), 0o644); err != nil {
		t.Fatal(err)
	}

	fp1, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	fp2, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp1 != fp2 {
		t.Fatalf("fingerprint not stable: %q vs %q", fp1, fp2)
	}

	// grow the file, fingerprint must move
	if err := os.WriteFile(path, []byte("aaaabbbb"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp3, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if fp3 == fp1 {
		t.Fatal("fingerprint unchanged after content change")
	}
}

func TestFingerprint_Dir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.sav"), []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}

	fp1, err := Fingerprint(dir)
	if err != nil {
		t.Fatal(err)
	}

	// adding a file changes the fingerprint
	if err := os.WriteFile(filepath.Join(dir, "b.sav"), []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}
	fp2, err := Fingerprint(dir)
	if err != nil {
		t.Fatal(err)
	}
	if fp2 == fp1 {
		t.Fatal("fingerprint unchanged after adding a file")
	}
}

func TestFingerprint_Missing(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "gone")); err == nil {
		t.Fatal("expected error for missing location")
	}
}

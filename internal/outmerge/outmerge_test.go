package outmerge

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestFinalizePrependsHeader(t *testing.T) {
	dir := t.TempDir()
	sorted := filepath.Join(dir, "sorted.tmp")
	if err := os.WriteFile(sorted, []byte("recordbytes"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	out := filepath.Join(dir, "final.las")
	if err := finalize(sorted, out, 100, 7); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if len(data) != 12+len("recordbytes") {
		t.Fatalf("unexpected output length %d", len(data))
	}
	nlive := binary.LittleEndian.Uint64(data[0:8])
	tspace := binary.LittleEndian.Uint32(data[8:12])
	if nlive != 7 {
		t.Fatalf("expected nlive 7, got %d", nlive)
	}
	if tspace != 100 {
		t.Fatalf("expected tspace 100, got %d", tspace)
	}
	if string(data[12:]) != "recordbytes" {
		t.Fatalf("record body mismatch: %q", data[12:])
	}

	if _, err := os.Stat(sorted); !os.IsNotExist(err) {
		t.Fatalf("expected scratch file to be removed")
	}
}

func TestCleanupShardsRemovesFiles(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a")
	p2 := filepath.Join(dir, "b")
	os.WriteFile(p1, []byte("x"), 0o644)
	os.WriteFile(p2, []byte("y"), 0o644)

	CleanupShards([]string{p1, p2})

	if _, err := os.Stat(p1); !os.IsNotExist(err) {
		t.Fatal("expected shard a removed")
	}
	if _, err := os.Stat(p2); !os.IsNotExist(err) {
		t.Fatal("expected shard b removed")
	}
}

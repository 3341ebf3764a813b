package ktable

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// entry is one synthetic k-mer table row: suffix bytes, count, lcp.
type entry struct {
	suf []byte
	cnt int64
	lcp uint8
}

func mustWritePart(t *testing.T, dir, root string, part, kbyte, ibyte int, entries []entry) {
	t.Helper()
	name := filepath.Join(dir, fmt.Sprintf(".%s.ktab.%d", root, part))
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("creating part: %v", err)
	}
	defer f.Close()

	binary.Write(f, binary.LittleEndian, int32(ibyte))
	binary.Write(f, binary.LittleEndian, int32(kbyte))
	binary.Write(f, binary.LittleEndian, int64(len(entries)))
	binary.Write(f, binary.LittleEndian, int32(14))
	for _, e := range entries {
		f.Write(e.suf)
		binary.Write(f, binary.LittleEndian, e.cnt)
		f.Write([]byte{e.lcp})
	}
}

func TestOpenAndIterateEntries(t *testing.T) {
	dir := t.TempDir()
	entries := []entry{
		{suf: []byte{1, 2, 3, 4, 5, 6}, cnt: 3, lcp: 0},
		{suf: []byte{1, 2, 3, 4, 5, 7}, cnt: 5, lcp: 10},
	}
	mustWritePart(t, dir, "g", 1, 8, 2, entries)

	s, err := Open(dir, "g", 1, 8, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", s.Len())
	}
	if s.Cnt() != 3 || s.Lcp() != 0 {
		t.Fatalf("unexpected first entry: cnt=%d lcp=%d", s.Cnt(), s.Lcp())
	}
	if !s.Next() {
		t.Fatal("expected a second entry")
	}
	if s.Cnt() != 5 || s.Lcp() != 10 {
		t.Fatalf("unexpected second entry: cnt=%d lcp=%d", s.Cnt(), s.Lcp())
	}
	if s.Next() {
		t.Fatal("expected the stream to be exhausted")
	}
}

func TestGotoRandomAccessEntry(t *testing.T) {
	dir := t.TempDir()
	entries := []entry{
		{suf: []byte{1, 1, 1, 1, 1, 1}, cnt: 1, lcp: 0},
		{suf: []byte{2, 2, 2, 2, 2, 2}, cnt: 2, lcp: 1},
		{suf: []byte{3, 3, 3, 3, 3, 3}, cnt: 3, lcp: 2},
	}
	mustWritePart(t, dir, "g", 1, 8, 2, entries)

	s, err := Open(dir, "g", 1, 8, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Goto(2); err != nil {
		t.Fatalf("Goto: %v", err)
	}
	if s.Cnt() != 3 {
		t.Fatalf("expected cnt 3 at index 2, got %d", s.Cnt())
	}
}

func TestKmerIsReadFromStub(t *testing.T) {
	dir := t.TempDir()
	entries := []entry{{suf: []byte{1, 2, 3, 4, 5, 6}, cnt: 1, lcp: 0}}
	mustWritePart(t, dir, "g", 1, 8, 2, entries)

	s, err := Open(dir, "g", 1, 8, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if s.Kmer() != 14 {
		t.Fatalf("expected kmer 14, got %d", s.Kmer())
	}
}

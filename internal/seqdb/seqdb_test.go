package seqdb

import "testing"

func TestNewFromContigsSortPermutation(t *testing.T) {
	db := NewFromContigs(
		[]string{"short", "long", "mid"},
		[][]byte{[]byte("ACGT"), []byte("ACGTACGTACGT"), []byte("ACGTACGT")},
	)
	perm := db.Perm()
	if len(perm) != 3 {
		t.Fatalf("expected 3 contigs, got %d", len(perm))
	}
	if db.Name(perm[0]) != "long" {
		t.Fatalf("expected longest contig first, got %q", db.Name(perm[0]))
	}
	if db.Name(perm[2]) != "short" {
		t.Fatalf("expected shortest contig last, got %q", db.Name(perm[2]))
	}
}

func TestBasesSlice(t *testing.T) {
	db := NewFromContigs([]string{"c0"}, [][]byte{[]byte("ACGTACGT")})
	got := string(db.Bases(0, 2, 6))
	if got != "GTAC" {
		t.Fatalf("got %q", got)
	}
}

func TestComplementReversesAndComplementsBases(t *testing.T) {
	got := string(Complement([]byte("ACGTN")))
	want := "NACGT"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestComplementOfComplementIsIdentity(t *testing.T) {
	seq := []byte("ACGTACGGTTAC")
	rc := Complement(seq)
	rrc := Complement(rc)
	if string(rrc) != string(seq) {
		t.Fatalf("double complement mismatch: got %q want %q", rrc, seq)
	}
}

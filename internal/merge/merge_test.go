package merge

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mrossi1-ilmn/FASTGA/internal/bitpack"
	"github.com/mrossi1-ilmn/FASTGA/internal/ktable"
	"github.com/mrossi1-ilmn/FASTGA/internal/postlist"
)

type recorder struct {
	pairs []Pair
}

func (r *recorder) Emit(tid, panel int, agree bool, p Pair) error {
	r.pairs = append(r.pairs, p)
	return nil
}

func writeKtabPart(t *testing.T, dir, root string, kbyte, ibyte int, sufs [][]byte, cnts []int64, lcps []uint8) {
	t.Helper()
	name := filepath.Join(dir, fmt.Sprintf(".%s.ktab.1", root))
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("creating ktab part: %v", err)
	}
	defer f.Close()
	binary.Write(f, binary.LittleEndian, int32(ibyte))
	binary.Write(f, binary.LittleEndian, int32(kbyte))
	binary.Write(f, binary.LittleEndian, int64(len(sufs)))
	binary.Write(f, binary.LittleEndian, int32(14))
	for i, s := range sufs {
		f.Write(s)
		binary.Write(f, binary.LittleEndian, cnts[i])
		f.Write([]byte{lcps[i]})
	}
}

func writePostPart(t *testing.T, dir, root string, pbyte, cbyte int, posts [][]byte) {
	t.Helper()
	name := filepath.Join(dir, fmt.Sprintf(".%s.post.1", root))
	f, err := os.Create(name)
	if err != nil {
		t.Fatalf("creating post part: %v", err)
	}
	defer f.Close()
	binary.Write(f, binary.LittleEndian, int32(pbyte))
	binary.Write(f, binary.LittleEndian, int32(cbyte))
	binary.Write(f, binary.LittleEndian, int64(len(posts)))
	for _, p := range posts {
		f.Write(p)
	}
}

func TestRunEmitsPairsBelowFrequencyCap(t *testing.T) {
	dir := t.TempDir()

	suf := []byte{1, 2, 3, 4, 5, 6}
	writeKtabPart(t, dir, "g1", 8, 2, [][]byte{suf}, []int64{2}, []uint8{0})
	writeKtabPart(t, dir, "g2", 8, 2, [][]byte{suf}, []int64{2}, []uint8{0})

	post := make([]byte, 7)
	writePostPart(t, dir, "g1", 7, 3, [][]byte{post, post})
	writePostPart(t, dir, "g2", 7, 3, [][]byte{post, post})

	k1, err := ktable.Open(dir, "g1", 1, 8, 2)
	if err != nil {
		t.Fatalf("opening k1: %v", err)
	}
	p1, err := postlist.Open(dir, "g1", 1)
	if err != nil {
		t.Fatalf("opening p1: %v", err)
	}
	k2, err := ktable.Open(dir, "g2", 1, 8, 2)
	if err != nil {
		t.Fatalf("opening k2: %v", err)
	}
	p2, err := postlist.Open(dir, "g2", 1)
	if err != nil {
		t.Fatalf("opening p2: %v", err)
	}

	sink := &recorder{}
	params := Params{Freq: 100, K: 14, K0: 1, Threads: 1, Layout: bitpack.PostLayout{Pbyte: 7, Cbyte: 3}}
	stats := Run(params, []*Genome{{KTab: k1, Post: p1}}, []*Genome{{KTab: k2, Post: p2}}, sink)

	if stats.NHits == 0 {
		t.Fatal("expected at least one emitted seed below the frequency cap")
	}
	if len(sink.pairs) == 0 {
		t.Fatal("expected at least one emitted pair")
	}
}

func TestRunSuppressesAboveFrequencyCap(t *testing.T) {
	dir := t.TempDir()

	suf := []byte{1, 2, 3, 4, 5, 6}
	writeKtabPart(t, dir, "g1", 8, 2, [][]byte{suf}, []int64{1}, []uint8{0})
	writeKtabPart(t, dir, "g2", 8, 2, [][]byte{suf}, []int64{5}, []uint8{0})

	post := make([]byte, 7)
	writePostPart(t, dir, "g1", 7, 3, [][]byte{post})
	writePostPart(t, dir, "g2", 7, 3, [][]byte{post, post, post, post, post})

	k1, _ := ktable.Open(dir, "g1", 1, 8, 2)
	p1, _ := postlist.Open(dir, "g1", 1)
	k2, _ := ktable.Open(dir, "g2", 1, 8, 2)
	p2, _ := postlist.Open(dir, "g2", 1)

	sink := &recorder{}
	params := Params{Freq: 3, K: 14, K0: 1, Threads: 1, Layout: bitpack.PostLayout{Pbyte: 7, Cbyte: 3}}
	Run(params, []*Genome{{KTab: k1, Post: p1}}, []*Genome{{KTab: k2, Post: p2}}, sink)

	if len(sink.pairs) != 0 {
		t.Fatalf("expected no pairs when the prefix group's count meets the frequency cap, got %d", len(sink.pairs))
	}
}

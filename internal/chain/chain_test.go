package chain

import (
	"strings"
	"testing"
)

type fakeSeqs struct {
	seqs map[int][]byte
}

func (f fakeSeqs) Bases(contig, lo, hi int) []byte { return f.seqs[contig][lo:hi] }
func (f fakeSeqs) Len(contig int) int              { return len(f.seqs[contig]) }

func repeatedSeq(n int) []byte {
	return []byte(strings.Repeat("ACGT", n/4+1))[:n]
}

func TestRunChainsAndAligns(t *testing.T) {
	seq := repeatedSeq(1000)
	a := fakeSeqs{seqs: map[int][]byte{0: seq}}
	b := fakeSeqs{seqs: map[int][]byte{0: seq}}

	params := Params{ChainBreak: 500, ChainMin: 100, AlignMin: 100, AlignRate: 0.7, TSpace: 100}
	w := NewWalker(params, a, b)

	var seeds []Seed
	for i := 0; i < 900; i += 20 {
		seeds = append(seeds, Seed{APost: int64(i), DiagBucket: 0, Drem: 0, Lcp: 20, BContig: 0})
	}
	runs := map[int][]Seed{0: seeds}

	var out []Hit
	w.Run(0, runs, false, &out)
	if len(out) == 0 {
		t.Fatal("expected at least one chained alignment for a diagonal run of seeds")
	}
	for _, h := range out {
		if h.Path.Len() < params.AlignMin {
			t.Fatalf("alignment shorter than AlignMin: %d", h.Path.Len())
		}
	}
}

func TestRunSkipsSparseChainBelowChainMin(t *testing.T) {
	seq := repeatedSeq(1000)
	a := fakeSeqs{seqs: map[int][]byte{0: seq}}
	b := fakeSeqs{seqs: map[int][]byte{0: seq}}

	params := Params{ChainBreak: 500, ChainMin: 100, AlignMin: 100, AlignRate: 0.7, TSpace: 100}
	w := NewWalker(params, a, b)

	seeds := []Seed{{APost: 0, DiagBucket: 0, Drem: 0, Lcp: 5, BContig: 0}}
	runs := map[int][]Seed{0: seeds}

	var out []Hit
	w.Run(0, runs, false, &out)
	if len(out) != 0 {
		t.Fatalf("expected no alignment from a single short seed, got %d", len(out))
	}
}

// TestRunSplitsOnChainBreakGap exercises the CHAIN_BREAK gap rule directly:
// two runs of seeds on the same diagonal bucket, separated by an A-post gap
// larger than ChainBreak, must be evaluated (and chained/aligned) as two
// independent chains rather than one continuous run spanning the gap.
func TestRunSplitsOnChainBreakGap(t *testing.T) {
	seq := repeatedSeq(3000)
	a := fakeSeqs{seqs: map[int][]byte{0: seq}}
	b := fakeSeqs{seqs: map[int][]byte{0: seq}}

	params := Params{ChainBreak: 200, ChainMin: 100, AlignMin: 100, AlignRate: 0.7, TSpace: 100}
	w := NewWalker(params, a, b)

	var seeds []Seed
	for i := 0; i < 900; i += 20 {
		seeds = append(seeds, Seed{APost: int64(i), DiagBucket: 0, Drem: 0, Lcp: 20, BContig: 0})
	}
	gapStart := 900 + params.ChainBreak + 50
	for i := 0; i < 900; i += 20 {
		seeds = append(seeds, Seed{APost: int64(gapStart + i), DiagBucket: 0, Drem: 0, Lcp: 20, BContig: 0})
	}
	runs := map[int][]Seed{0: seeds}

	var out []Hit
	w.Run(0, runs, false, &out)
	if len(out) != 2 {
		t.Fatalf("expected the CHAIN_BREAK gap to split one diagonal run into two chains, got %d", len(out))
	}
	if out[0].Path.AEpos > out[1].Path.ABpos {
		t.Fatalf("expected the two chains to cover disjoint, ordered A-ranges, got %+v then %+v", out[0].Path, out[1].Path)
	}
}

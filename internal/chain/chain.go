// Copyright 2023, the FASTGA contributors.

// Package chain implements Chain & Align, spec.md §4.F: walk a sorted shard
// of seed pairs one A-contig at a time, fuse runs across the 64-wide
// diagonal-bucket boundary, detect chain breaks, apply the B-coverage
// filter, and launch internal/align.LocalAlignment over the surviving
// window.
//
// The triple-window bookkeeping (b,m,e) over adjacent buckets follows
// other_examples's frogs-biogo pals.go trapezoid construction (group seeds
// by diagonal band, merge adjacent bands, hand the merged trapezoid to
// dp.AlignTraps); here the "trapezoid" is the (b,m,e) triple over one
// A-contig/B-contig pair and the aligner call is internal/align's
// LocalAlignment.
package chain

import (
	"encoding/binary"
	"sort"

	"github.com/chmduquesne/rollinghash/buzhash32"

	"github.com/mrossi1-ilmn/FASTGA/internal/align"
	"github.com/mrossi1-ilmn/FASTGA/internal/bitpack"
	"github.com/mrossi1-ilmn/FASTGA/internal/seqdb"
)

// Seed is one decoded sort record within a contig pair's run.
type Seed struct {
	APost      int64
	DiagBucket uint64
	Drem       uint8
	Lcp        uint8
	BContig    int
}

// Diag reassembles the full anti-diagonal.
func (s Seed) Diag() int64 { return bitpack.Diagonal(s.DiagBucket, s.Drem) }

// Params are the chaining/alignment thresholds, §4.F "Parameters (defaults)".
type Params struct {
	ChainBreak int
	ChainMin   int
	AlignMin   int
	AlignRate  float64
	TSpace     int
}

// SeqProvider fetches contig bases on demand (A and B may be different
// genomes, or the same genome for a self-comparison).
type SeqProvider interface {
	Bases(contig, lo, hi int) []byte
	Len(contig int) int
}

// Hit is one accepted alignment, ready for §4.F's "append to a per-thread
// temp file" step (owned by the caller, e.g. internal/outmerge).
type Hit struct {
	AContig, BContig int
	Reverse          bool
	Path             *align.Path
}

// Walker processes one worker's [beg,end) A-contig range of a sorted
// shard, §4.F "each worker walks its [beg,end) range of A-contigs."
type Walker struct {
	params   Params
	a, b     SeqProvider
	work     *align.Work
	alast    int64
	haveLast bool
}

// NewWalker creates a chain-and-align walker for one worker.
func NewWalker(params Params, a, b SeqProvider) *Walker {
	return &Walker{params: params, a: a, b: b, work: align.NewWork()}
}

// Run chains+aligns each (a_contig, b_contig) run, appending accepted hits
// to out; runs are visited in map iteration order, which is not defined.
// Seeds must
// already be in (a_contig implicit via caller grouping, diag_bucket,
// a_post) order, matching the sort key of §4.E step 4.
func (w *Walker) Run(aContig int, runs map[int][]Seed, reverse bool, out *[]Hit) {
	for bContig, seeds := range runs {
		w.alast = 0
		w.haveLast = false
		w.chainContigPair(aContig, bContig, seeds, reverse, out)
	}
}

// chainContigPair implements §4.F's per-contig-pair triple/merge/break logic.
func (w *Walker) chainContigPair(aContig, bContig int, seeds []Seed, reverse bool, out *[]Hit) {
	if len(seeds) == 0 {
		return
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].DiagBucket != seeds[j].DiagBucket {
			return seeds[i].DiagBucket < seeds[j].DiagBucket
		}
		return seeds[i].APost < seeds[j].APost
	})

	i := 0
	var prevList []Seed
	for i < len(seeds) {
		cdiag := seeds[i].DiagBucket
		b := i
		m := b
		for m < len(seeds) && seeds[m].DiagBucket == cdiag {
			m++
		}
		e := m
		for e < len(seeds) && seeds[e].DiagBucket == cdiag+1 {
			e++
		}

		list := make([]Seed, 0, e-b)
		list = append(list, seeds[b:m]...)
		list = append(list, seeds[m:e]...)

		isAux := m == e
		if isAux && fingerprint(list) == fingerprint(prevList) && sameRun(list, prevList) {
			i = m
			continue
		}

		w.evaluateChain(aContig, bContig, list, reverse, out)
		prevList = list
		i = m
	}
}

// fingerprint hashes a seed run's byte footprint with a rolling buzhash,
// giving chainContigPair's "is this run dominated by the previous one" check
// a cheap O(1)-comparison short-circuit before the full element-wise
// sameRun compare.
func fingerprint(list []Seed) uint32 {
	h := buzhash32.New()
	var b [8]byte
	for _, s := range list {
		binary.LittleEndian.PutUint64(b[:], uint64(s.APost))
		h.Write(b[:])
		binary.LittleEndian.PutUint64(b[:], s.DiagBucket)
		h.Write(b[:])
	}
	return h.Sum32()
}

func sameRun(a, b []Seed) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// evaluateChain splits list into runs of co-directional seeds whose A-post
// gap never exceeds CHAIN_BREAK (§4.F "a chain break occurs when the next
// a_post >= lps + CHAIN_BREAK"), then hands each run to alignChain
// independently: a break both ends the current candidate chain and starts a
// fresh one, rather than merely discarding the gap.
func (w *Walker) evaluateChain(aContig, bContig int, list []Seed, reverse bool, out *[]Hit) {
	if len(list) == 0 {
		return
	}
	sort.Slice(list, func(i, j int) bool { return list[i].APost < list[j].APost })

	lps := int64(0)
	start := 0
	for i, s := range list {
		if i > start && s.APost >= lps+int64(w.params.ChainBreak) {
			w.alignChain(aContig, bContig, list[start:i], reverse, out)
			start = i
		}
		if s.APost+int64(s.Lcp) > lps {
			lps = s.APost + int64(s.Lcp)
		}
	}
	w.alignChain(aContig, bContig, list[start:], reverse, out)
}

// alignChain computes A-axis coverage for one chain-break-bounded run, then
// reruns the coverage computation on the B-axis as the filter (§4.F
// "B-coverage filter"), finally launching an alignment over the surviving
// window.
func (w *Walker) alignChain(aContig, bContig int, list []Seed, reverse bool, out *[]Hit) {
	if len(list) == 0 {
		return
	}

	cov := int64(0)
	lps := int64(0)
	var dgmin, dgmax uint64
	var apmin, apmax int64
	dgmin, dgmax = list[0].DiagBucket, list[0].DiagBucket
	apmin, apmax = list[0].APost, list[0].APost

	for _, s := range list {
		npost := s.APost
		lcp := int64(s.Lcp)
		cov += (npost + lcp) - maxI64(lps, npost)
		if npost+lcp > lps {
			lps = npost + lcp
		}
		if s.DiagBucket < dgmin {
			dgmin = s.DiagBucket
		}
		if s.DiagBucket > dgmax {
			dgmax = s.DiagBucket
		}
		if s.APost < apmin {
			apmin = s.APost
		}
		if s.APost > apmax {
			apmax = s.APost
		}
	}

	if cov < int64(w.params.ChainMin) {
		return
	}

	// B-coverage filter: recover each seed's B position from its diagonal
	// (forward a-b+len(b), reverse a+b) and recompute on the B axis.
	blen := int64(w.b.Len(bContig))
	bpostOf := func(s Seed) int64 {
		if reverse {
			return s.Diag() - s.APost
		}
		return s.APost - s.Diag() + blen
	}
	bsorted := append([]Seed(nil), list...)
	sort.Slice(bsorted, func(i, j int) bool {
		return bpostOf(bsorted[i]) < bpostOf(bsorted[j])
	})
	jcov := int64(0)
	jlps := int64(0)
	for _, s := range bsorted {
		bpost := bpostOf(s)
		lcp := int64(s.Lcp)
		jcov += (bpost + lcp) - maxI64(jlps, bpost)
		if bpost+lcp > jlps {
			jlps = bpost + lcp
		}
	}
	if jcov < int64(w.params.ChainMin) {
		return
	}

	// Anti-chaining rule, §4.F "Alignment launch".
	if w.haveLast {
		if !reverse && apmin < w.alast {
			return
		}
		if reverse && apmax > w.alast {
			return
		}
	}

	aBases := w.a.Bases(aContig, 0, w.a.Len(aContig))
	bBases := w.b.Bases(bContig, 0, w.b.Len(bContig))
	if reverse {
		aBases = seqdb.Complement(aBases)
	}

	alignment := &align.Alignment{A: aBases, B: bBases, ALen: len(aBases), BLen: len(bBases)}
	spec := &align.Spec{AlignMin: w.params.AlignMin, AlignRate: w.params.AlignRate}

	anti := apmax + apmin // midpoint-ish anti-diagonal hint, caller-opaque
	path := align.LocalAlignment(alignment, w.work, spec, int64(dgmin), int64(dgmax), anti/2, -1, -1)
	if path == nil {
		return
	}
	if path.Len() < w.params.AlignMin {
		return
	}
	align.CompressTrace(path, w.params.TSpace)

	*out = append(*out, Hit{AContig: aContig, BContig: bContig, Reverse: reverse, Path: path})

	if !reverse {
		w.alast = int64(path.AEpos)
	} else {
		w.alast = int64(path.ABpos)
	}
	w.haveLast = true
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

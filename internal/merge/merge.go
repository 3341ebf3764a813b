// Copyright 2023, the FASTGA contributors.

// Package merge implements the Adaptive-Seed Merge of spec.md §4.C: for
// every k-mer in one genome's table, find the longest prefix whose matching
// group in the other genome's table stays under a frequency cap, and emit
// the Cartesian product of posts for that prefix group.
//
// The lane structure — T independent workers, each owning its own cache and
// output buffers with no shared mutable state, joined at the end for
// summed statistics — follows the teacher's worker-pool shape in
// cmd/muscato_confirm/main.go and muscato_screen's per-window goroutine
// fan-out (cmd/muscato_screen/main.go): one goroutine is started per lane,
// and a sync.WaitGroup joins them.
package merge

import (
	"bytes"
	"sort"
	"sync"

	"github.com/mrossi1-ilmn/FASTGA/internal/bitpack"
	"github.com/mrossi1-ilmn/FASTGA/internal/ktable"
	"github.com/mrossi1-ilmn/FASTGA/internal/postlist"
)

// Stats is the per-lane accumulator of spec.md §4.C "Statistics", summed at
// join for the verbose report.
type Stats struct {
	NHits int64 // number of emitted seed k-mers
	G1Len int64 // number of T1 posts scanned
	TSeed int64 // total matched-prefix length across emitted seeds
}

func (s *Stats) add(o Stats) {
	s.NHits += o.NHits
	s.G1Len += o.G1Len
	s.TSeed += o.TSeed
}

// AveSeedLen is tseed/nhits from the verbose report formula.
func (s Stats) AveSeedLen() float64 {
	if s.NHits == 0 {
		return 0
	}
	return float64(s.TSeed) / float64(s.NHits)
}

// SeedsPerG1Post is nhits/g1len.
func (s Stats) SeedsPerG1Post() float64 {
	if s.G1Len == 0 {
		return 0
	}
	return float64(s.NHits) / float64(s.G1Len)
}

// Pair is one emitted seed pair: an A-post and a B-post (raw packed bytes,
// per §3) plus the matched prefix length and the sign-agreement class.
type Pair struct {
	APost   []byte
	BPost   []byte
	Lcp     uint8
	ACont   int
	Agree   bool // true: same-sign ("N" unit); false: opposite-sign ("C" unit)
}

// Sink receives emitted pairs for one lane; spool.Writer implements this.
type Sink interface {
	Emit(tid, panel int, agree bool, p Pair) error
}

// Params are the merge-phase thresholds threaded from config.
type Params struct {
	Freq    int // FREQ: mandatory frequency cap, §4.C goal
	K       int // full k-mer length
	K0      int // minimum adaptive-seed prefix length
	Threads int // T, lane count

	// Layout describes how to decode a raw post's contig id and sign,
	// matching the Pbyte/Cbyte convention internal/sortpass uses to
	// decode the same posts once reimported (Cbyte=3, §3 "Position").
	Layout bitpack.PostLayout
}

// Genome bundles the two paged streams one lane walks.
type Genome struct {
	KTab *ktable.Stream
	Post *postlist.Stream
}

// cacheEntry is one T2 suffix entry copied into a lane's in-memory panel
// cache (§4.C step 1): its suffix bytes, post-count, and the absolute index
// of its first post in p2. postIdx lets emitPairs randomly seek p2 with
// Goto rather than assuming sequential consumption, since the same T2 entry
// can be matched by more than one T1 entry once the whole table is cached
// up front instead of being walked in lockstep with T1.
type cacheEntry struct {
	suf     []byte
	cnt     int64
	postIdx int64
}

// lane is one of the T independent merge workers, §4.C "Concurrency".
type lane struct {
	tid    int
	params Params
	g1, g2 *Genome
	sink   Sink
	stats  Stats
}

// Run drives all T lanes to completion and returns the summed statistics.
// g1/g2 must each provide one *ktable.Stream/*postlist.Stream pair per lane
// (lanes never share a stream, §4.C "no shared mutable state").
func Run(params Params, lanes1 []*Genome, lanes2 []*Genome, sink Sink) Stats {
	var wg sync.WaitGroup
	results := make([]Stats, len(lanes1))
	for tid := range lanes1 {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			l := &lane{tid: tid, params: params, g1: lanes1[tid], g2: lanes2[tid], sink: sink}
			l.run()
			results[tid] = l.stats
		}(tid)
	}
	wg.Wait()

	var total Stats
	for _, r := range results {
		total.add(r)
	}
	return total
}

// run walks this lane's T1 entries against an in-memory cache of every T2
// entry (§4.C step 1, simplified: the whole table rather than one
// prefix-indexed panel at a time, since this package's ktable.Stream does
// not expose the external stream's panel-prefix value (Cpre) that would let
// two panels be aligned without comparing bytes — the byte comparison below
// is exact regardless of how coarsely the scan is chunked), extending plen
// by real byte agreement between the current T1 suffix and its T2
// neighbors (§4.C step 3) rather than either table's self-referential lcp.
func (l *lane) run() {
	k1 := l.g1.KTab
	p1 := l.g1.Post
	k2 := l.g2.KTab
	p2 := l.g2.Post

	if k1 == nil || p1 == nil || k2 == nil || p2 == nil {
		return
	}

	cache := buildCache(k2)

	for !k1.Done() {
		cnt := k1.Cnt()
		suf1 := k1.Suffix()
		l.stats.G1Len += cnt

		plen, lo, hi := matchGroup(suf1, cache)
		emitted := false

		// K0 is not enforced as a hard floor here: plen is already the
		// longest shared prefix suf1 has with any T2 entry, and a plen of
		// 0 (no shared prefix at all) is excluded below regardless of K0.
		if plen > 0 && hi > lo {
			sum := int64(0)
			for _, ent := range cache[lo:hi] {
				sum += ent.cnt
			}
			// §4.C step 4: the matched group is the maximally-specific
			// (longest-plen) one; since narrowing to a longer prefix can
			// only shrink the group, if this one already meets FREQ there
			// is no shorter, larger-sum prefix worth falling back to.
			if sum < int64(l.params.Freq) {
				l.emitPairs(p1, p2, cnt, cache[lo:hi], plen)
				emitted = true
			}
		}
		// p1 holds cnt posts per k-mer in order; step past them when
		// emitPairs did not consume them.
		if !emitted {
			for i := int64(0); i < cnt && !p1.Done(); i++ {
				if !p1.Next() {
					break
				}
			}
		}

		if !k1.Next() {
			break
		}
	}
}

// buildCache copies every T2 suffix entry into memory in the stream's own
// sorted order (§4.C step 1), recording each entry's starting post index so
// emitPairs can later fetch its posts by random access.
func buildCache(k2 *ktable.Stream) []cacheEntry {
	var out []cacheEntry
	var postIdx int64
	for !k2.Done() {
		cnt := k2.Cnt()
		out = append(out, cacheEntry{
			suf:     append([]byte(nil), k2.Suffix()...),
			cnt:     cnt,
			postIdx: postIdx,
		})
		postIdx += cnt
		if !k2.Next() {
			break
		}
	}
	return out
}

// matchGroup finds the longest prefix length suf1 shares with any entry in
// cache (sorted ascending), and the contiguous run of entries sharing
// exactly that length with suf1 (§4.C step 3: "extend plen up to K"; here
// by direct byte comparison rather than cbyte/mbyte bit-packed lookup
// tables, since this package's k-mer suffixes are stored as plain bytes,
// not 2-bit-packed bases). Only the entries immediately surrounding suf1's
// sorted insertion point can hold the longest match, since cache is sorted.
func matchGroup(suf1 []byte, cache []cacheEntry) (plen, lo, hi int) {
	if len(cache) == 0 {
		return 0, 0, 0
	}
	idx := sort.Search(len(cache), func(i int) bool {
		return bytes.Compare(cache[i].suf, suf1) >= 0
	})

	if idx < len(cache) {
		if p := commonPrefixLen(suf1, cache[idx].suf); p > plen {
			plen = p
		}
	}
	if idx > 0 {
		if p := commonPrefixLen(suf1, cache[idx-1].suf); p > plen {
			plen = p
		}
	}
	if plen == 0 {
		return 0, 0, 0
	}

	lo, hi = idx, idx
	if lo == len(cache) {
		lo--
		hi--
	}
	for lo > 0 && commonPrefixLen(suf1, cache[lo-1].suf) >= plen {
		lo--
	}
	for hi < len(cache) && commonPrefixLen(suf1, cache[hi].suf) >= plen {
		hi++
	}
	return plen, lo, hi
}

// commonPrefixLen is the number of leading bytes a and b share.
func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// emitPairs produces the Cartesian product of the current T1 k-mer's posts
// against every T2 post in the matched prefix group (§4.C step 4-5). p2 is
// randomly seeked to each matched entry's postIdx rather than read
// sequentially, since the same T2 entry may be revisited across multiple T1
// entries' matches.
func (l *lane) emitPairs(p1, p2 *postlist.Stream, aCount int64, group []cacheEntry, plen int) {
	aPosts := takePosts(p1, aCount)
	if len(aPosts) == 0 {
		return
	}
	l.stats.NHits++
	l.stats.TSeed += int64(plen)

	for _, ent := range group {
		if err := p2.Goto(ent.postIdx); err != nil {
			continue
		}
		bPosts := takePosts(p2, ent.cnt)
		for _, ap := range aPosts {
			_, aCont, aSign := l.params.Layout.Decode(ap)
			for _, bp := range bPosts {
				_, _, bSign := l.params.Layout.Decode(bp)
				agree := aSign == bSign
				panel := aCont
				l.sink.Emit(l.tid, panel, agree, Pair{
					APost: ap,
					BPost: bp,
					Lcp:   uint8(plen),
					ACont: aCont,
					Agree: agree,
				})
			}
		}
	}
}

func takePosts(p *postlist.Stream, n int64) [][]byte {
	out := make([][]byte, 0, n)
	for i := int64(0); i < n && !p.Done(); i++ {
		out = append(out, append([]byte(nil), p.Current()...))
		if !p.Next() {
			break
		}
	}
	return out
}


// Copyright 2023, the FASTGA contributors.

// Package align implements the aligner contract spec.md §6 treats as an
// external primitive: LocalAlignment finds a single local alignment whose
// anti-diagonal spans a given band/seed, and CompressTrace rewrites its
// trace to 1 byte/step when every step fits in a byte.
//
// spec.md carves this out as "out of scope... specified as an opaque
// primitive with a precise contract" (§1). SPEC_FULL.md's MODULE MAP keeps
// it behind the Aligner interface for that reason, but gives it a real,
// compact banded-DP body so the end-to-end scenarios of §8 have something
// to verify against. The banded-search shape (restrict to a diagonal band
// around a seed, track a running best cell) follows the PALS `dp` package
// usage seen in other_examples's frogs-biogo pals.go (dp.NewAligner(...).
// AlignTraps(trapezoids)): a seed/band descriptor goes in, a scored local
// hit with a coverage-bearing trace comes out.
package align

// TSpace is the A-axis tracepoint spacing, §3.
const TSpace = 100

// TraceXOVR is the tracepoint spacing at or above which trace elements are
// always 2 bytes instead of 1 (§6 "Outputs produced": TBYTES = 1 if
// TSPACE < TRACE_XOVR).
const TraceXOVR = 125

// TracePoint is one (diffs, b_advance) pair over one TSpace-wide A block,
// §3 "a tracepoint spacing... divides the A-axis; the trace stores
// alternating (diffs, b_advance) pairs per spacing."
type TracePoint struct {
	Diffs    int
	BAdvance int
}

// Path is the result of a local alignment: a half-open window into A and B,
// the number of differences, and the tracepoint-compressed trace.
type Path struct {
	ABpos, AEpos int
	BBpos, BEpos int
	Diffs        int
	Trace        []TracePoint
	TBytes       int // 1 or 2, set by CompressTrace
}

// Len reports the aligned span on the A axis.
func (p *Path) Len() int { return p.AEpos - p.ABpos }

// Alignment is the input descriptor: the two sequences and the rectangle
// ([0,alen)x[0,blen)) they live in, matching §3's invariant that an emitted
// alignment "sits inside [0,alen)x[0,blen)".
type Alignment struct {
	A, B       []byte
	ALen, BLen int
}

// Work is reusable scratch space for LocalAlignment, amortizing allocation
// across calls the way the teacher's getbuf/putbuf pool
// (cmd/muscato_confirm/main.go) amortizes buffer allocation across matches.
type Work struct {
	score []int32
	from  []int8 // 0=diag, 1=up(gap in B), 2=left(gap in A)
}

// NewWork returns empty scratch space; LocalAlignment grows it to the
// band it needs on each call.
func NewWork() *Work { return &Work{} }

func (w *Work) ensure(n int) {
	if cap(w.score) < n {
		w.score = make([]int32, n)
		w.from = make([]int8, n)
	}
	w.score = w.score[:n]
	w.from = w.from[:n]
}

// Spec carries the scoring/acceptance thresholds threaded from config.
type Spec struct {
	AlignMin  int
	AlignRate float64
}

const (
	scoreMatch    = 1
	scoreMismatch = -1
	scoreGap      = -1
)

// LocalAlignment finds a single local alignment whose diagonal lies in
// [diagLo,diagHi], with §6's signature:
// LocalAlignment(align, work, spec, diag_lo, diag_hi, anti, -1, -1).
// anti is accepted but not consulted: the result is the highest-scoring
// local alignment anywhere in the band, wherever it lies along A.
// The last two arguments are reserved (always -1 in this pipeline, per §4.F)
// and are accepted for signature fidelity but unused.
func LocalAlignment(a *Alignment, work *Work, spec *Spec, diagLo, diagHi, anti int64, _lowReserved, _highReserved int) *Path {
	if diagLo > diagHi {
		diagLo, diagHi = diagHi, diagLo
	}
	bandW := int(diagHi-diagLo) + 1
	if bandW < 1 {
		bandW = 1
	}

	alen, blen := len(a.A), len(a.B)
	if alen == 0 || blen == 0 {
		return nil
	}

	// Banded DP over (i in A) x (d = i-j in [diagLo,diagHi]), Smith-
	// Waterman style local alignment restricted to the band, reset to 0 on
	// negative score (classic local-alignment recurrence).
	rows := alen + 1
	work.ensure(rows * bandW)
	best := int32(0)
	bestI, bestJD := 0, 0 // bestJD is column index within band

	get := func(i, jd int) int32 {
		if jd < 0 || jd >= bandW {
			return 0
		}
		return work.score[i*bandW+jd]
	}
	set := func(i, jd int, v int32, from int8) {
		work.score[i*bandW+jd] = v
		work.from[i*bandW+jd] = from
	}

	for jd := 0; jd < bandW; jd++ {
		set(0, jd, 0, 0)
	}
	for i := 1; i <= alen; i++ {
		for jd := 0; jd < bandW; jd++ {
			d := diagLo + int64(jd)
			j := i - int(d)
			if j < 1 || j > blen {
				set(i, jd, 0, 0)
				continue
			}
			var diagScore int32
			if a.A[i-1] == a.B[j-1] {
				diagScore = get(i-1, jd) + scoreMatch
			} else {
				diagScore = get(i-1, jd) + scoreMismatch
			}
			// up: consume A, gap in B -> same d-1 at row i-1? Moving i-1,j
			// changes d by +1 (since d=i-j). So "up" in the band shifts jd-1
			// at row i-1 (j unchanged).
			upScore := get(i-1, jd-1) + scoreGap
			// left: consume B, gap in A -> i unchanged, j-1, d+1, so jd+1 at
			// same row i.
			leftScore := int32(0)
			if jd+1 < bandW {
				leftScore = get(i, jd+1) + scoreGap
			}
			v := int32(0)
			from := int8(0)
			if diagScore > v {
				v, from = diagScore, 0
			}
			if upScore > v {
				v, from = upScore, 1
			}
			if leftScore > v {
				v, from = leftScore, 2
			}
			set(i, jd, v, from)
			if v > best {
				best = v
				bestI, bestJD = i, jd
			}
		}
	}

	if best <= 0 {
		return nil
	}

	// Traceback to the zero boundary.
	i, jd := bestI, bestJD
	diffs := 0
	var rev []TracePoint // built per-TSpace block during traceback, reversed after
	blockDiffs := 0
	blockBAdv := 0
	blockStartI := i
	aEnd, bEnd := i, i-int(diagLo+int64(jd))

	pushBlock := func(endI int, bAdv int) {
		_ = endI
		rev = append(rev, TracePoint{Diffs: blockDiffs, BAdvance: bAdv})
	}

	for i > 0 && get(i, jd) > 0 {
		d := diagLo + int64(jd)
		j := i - int(d)
		f := work.from[i*bandW+jd]
		switch f {
		case 0:
			if a.A[i-1] != a.B[j-1] {
				diffs++
				blockDiffs++
			}
			i--
		case 1:
			diffs++
			blockDiffs++
			i--
			jd--
		case 2:
			diffs++
			blockDiffs++
			blockBAdv++
			jd++
		}
		if f != 2 {
			blockBAdv++
		}
		if blockStartI-i >= TSpace {
			pushBlock(i, blockBAdv)
			blockDiffs, blockBAdv = 0, 0
			blockStartI = i
		}
	}
	if blockStartI != i || blockBAdv != 0 || blockDiffs != 0 {
		pushBlock(i, blockBAdv)
	}
	// reverse rev in place (traceback walked backward)
	for l, r := 0, len(rev)-1; l < r; l, r = l+1, r-1 {
		rev[l], rev[r] = rev[r], rev[l]
	}

	abpos, bbpos := i, i-int(diagLo+int64(jd))
	if bbpos < 0 {
		bbpos = 0
	}

	p := &Path{
		ABpos: abpos,
		AEpos: aEnd,
		BBpos: bbpos,
		BEpos: bEnd,
		Diffs: diffs,
		Trace: rev,
	}
	if p.AEpos-p.ABpos < spec.AlignMin {
		return nil
	}
	ident := 1.0 - float64(p.Diffs)/float64(p.Len())
	if ident < spec.AlignRate {
		return nil
	}
	return p
}

// CompressTrace sets a path's trace width: 1 byte/step when tspace <
// TraceXOVR and every recorded value fits in a byte, else 2 bytes (§6
// "CompressTrace(ovl, mode) rewrites the trace in place at 1 byte/step for
// values < 256"). Only TBytes changes; the TracePoint values are kept.
func CompressTrace(p *Path, tspace int) {
	if tspace < TraceXOVR {
		p.TBytes = 1
		for _, tp := range p.Trace {
			if tp.Diffs >= 256 || tp.BAdvance >= 256 {
				p.TBytes = 2
				return
			}
		}
		return
	}
	p.TBytes = 2
}

// ExpandTrace is the inverse of CompressTrace: since TracePoint values are
// kept as ints regardless of TBytes, it returns the trace unchanged.
// Exercises §8 property 6, the round-trip law.
func ExpandTrace(p *Path) []TracePoint {
	return p.Trace
}

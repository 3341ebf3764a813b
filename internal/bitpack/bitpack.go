// Copyright 2023, the FASTGA contributors.

// Package bitpack is the encode/decode layer for the raw byte-run records
// described in spec.md §3: posts, k-mer table entries, and the two seed-pair
// record shapes. Every field carved from a byte run goes through here rather
// than through ad-hoc offsets scattered across the pipeline (spec.md §9).
//
// All widths are little-endian, specified rather than inherited, per §9,
// except SortRecord's three key fields, which are big-endian (see
// SortRecord).
package bitpack

// ReadUint reads an n-byte little-endian unsigned integer starting at b[0].
func ReadUint(b []byte, n int) uint64 {
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// WriteUint writes the low n bytes of v into b, little-endian.
func WriteUint(b []byte, n int, v uint64) {
	for i := 0; i < n; i++ {
		b[i] = byte(v)
		v >>= 8
	}
}

// ReadUintBE reads an n-byte big-endian unsigned integer starting at b[0].
// SortRecord's key fields use this instead of the little-endian ReadUint
// above, so that radixsort's MSD byte-at-a-time comparison agrees with
// numeric order (spec.md §4.E step 4).
func ReadUintBE(b []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// WriteUintBE writes the low n bytes of v into b, big-endian.
func WriteUintBE(b []byte, n int, v uint64) {
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

// PostLayout describes a post, a packed (sign, contig, offset) triple, §3
// "Position (post)".
//
// Layout within a Pbyte-byte run: the low Pbyte-Cbyte bytes hold the
// intra-contig offset; the next Cbyte-1 bytes hold the contig index; the top
// bit of the last byte is the sign (0=forward, 1=reverse-complement).
type PostLayout struct {
	Pbyte int // total bytes per post
	Cbyte int // bytes of contig+sign suffix
}

// Decode splits a raw post into offset, contig id, and sign.
func (l PostLayout) Decode(b []byte) (offset int64, contig int, sign bool) {
	obyte := l.Pbyte - l.Cbyte
	offset = int64(ReadUint(b, obyte))
	cbits := ReadUint(b[obyte:], l.Cbyte)
	sign = cbits&(1<<uint(8*l.Cbyte-1)) != 0
	contig = int(cbits &^ (1 << uint(8*l.Cbyte-1)))
	return
}

// Encode packs offset, contig id, and sign into a Pbyte-byte run.
func (l PostLayout) Encode(b []byte, offset int64, contig int, sign bool) {
	obyte := l.Pbyte - l.Cbyte
	WriteUint(b, obyte, uint64(offset))
	cbits := uint64(contig)
	if sign {
		cbits |= 1 << uint(8*l.Cbyte-1)
	}
	WriteUint(b[obyte:], l.Cbyte, cbits)
}

// KmerEntry mirrors a k-mer table entry's trailing suffix: a post count and
// an lcp against the previous k-mer in sort order (§3 invariants: lcp < K).
type KmerEntry struct {
	Cnt int64
	Lcp int
}

// SpoolRecord is the fixed-width seed-pair record written by the merge phase
// and consumed by the reimport phase (§3 "Seed pair (spool record)").
// Width is 1 + ibyte + jbyte bytes: {lcp:u8, a_post:ibyte, b_post:jbyte}.
type SpoolRecord struct {
	Ibyte, Jbyte int
}

func (s SpoolRecord) Width() int { return 1 + s.Ibyte + s.Jbyte }

// Encode writes one spool record into b (len(b) >= Width()).
func (s SpoolRecord) Encode(b []byte, lcp uint8, aPost []byte, bPost []byte) {
	b[0] = lcp
	copy(b[1:1+s.Ibyte], aPost)
	copy(b[1+s.Ibyte:1+s.Ibyte+s.Jbyte], bPost)
}

// Decode splits a raw spool record into its lcp and raw post byte spans.
func (s SpoolRecord) Decode(b []byte) (lcp uint8, aPost, bPost []byte) {
	lcp = b[0]
	aPost = b[1 : 1+s.Ibyte]
	bPost = b[1+s.Ibyte : 1+s.Ibyte+s.Jbyte]
	return
}

// SortRecord is the fixed-width record produced by the reimport/bucket-sort
// phase (§3 "Seed pair (sort record)"):
//
//	{lcp:u8, drem:u8, diag_bucket:dbyte, a_post:ipost, b_contig:jcont}
//
// Sort order is (a_contig, diag_bucket, a_post); a_contig itself is not part
// of the record (it is the bucket key used to partition sarray). The three
// key fields are laid out diag_bucket first so radixsort's MSD byte compare
// gives diag_bucket precedence over a_post as §4.E step 4 requires, and each
// is written big-endian (ReadUintBE/WriteUintBE) so that comparison agrees
// with numeric order one byte at a time.
type SortRecord struct {
	Ipost, Dbyte, Jcont int
}

func (s SortRecord) Width() int { return 2 + s.Ipost + s.Dbyte + s.Jcont }

// KeyWidth is the number of trailing bytes that participate in the sort key
// (diag_bucket, a_post, b_contig), per spec.md §4.E step 4.
func (s SortRecord) KeyWidth() int { return s.Ipost + s.Dbyte + s.Jcont }

func (s SortRecord) Encode(b []byte, lcp, drem uint8, aPost int64, diagBucket uint64, bContig int) {
	b[0] = lcp
	b[1] = drem
	WriteUintBE(b[2:], s.Dbyte, diagBucket)
	WriteUintBE(b[2+s.Dbyte:], s.Ipost, uint64(aPost))
	WriteUintBE(b[2+s.Dbyte+s.Ipost:], s.Jcont, uint64(bContig))
}

func (s SortRecord) Decode(b []byte) (lcp, drem uint8, aPost int64, diagBucket uint64, bContig int) {
	lcp = b[0]
	drem = b[1]
	diagBucket = ReadUintBE(b[2:], s.Dbyte)
	aPost = int64(ReadUintBE(b[2+s.Dbyte:], s.Ipost))
	bContig = int(ReadUintBE(b[2+s.Dbyte+s.Ipost:], s.Jcont))
	return
}

// Diagonal reassembles the full 64-bit anti-diagonal from a bucket/remainder
// pair, per the GLOSSARY: diag_bucket = diag >> 6, drem = diag & 63.
func Diagonal(diagBucket uint64, drem uint8) int64 {
	return int64(diagBucket<<6) | int64(drem&0x3f)
}

// SplitDiagonal is the inverse of Diagonal.
func SplitDiagonal(diag int64) (diagBucket uint64, drem uint8) {
	return uint64(diag) >> 6, uint8(diag) & 0x3f
}

// Copyright 2023, the FASTGA contributors.

// Package radixsort is the dedicated external-sort-shaped module spec.md §9
// calls out as a design choice: an MSD radix sort over fixed-width byte
// records, keyed on their trailing key_width bytes, partitioned by an
// A-contig panel table so each worker claims a disjoint, contiguous output
// range.
//
// Byte-at-a-time MSD bucketing over a flat []byte record array follows the
// counting/bucket-pass shape of the teacher's entropy-window scan in
// utils/entropy.go (a fixed-size frequency table accumulated in one pass,
// then consumed to derive cut points) generalized from one axis (base
// composition) to an arbitrary big-endian byte key.
package radixsort

// Range is a worker's claim on the sorted array: a contiguous A-contig
// span and the byte offset where it begins, as returned by radix_sort's
// range_out in spec.md §4.E step 4.
type Range struct {
	BegContig, EndContig int
	ByteOffset           int
}

// Sort performs an in-place MSD radix sort of recordWidth-byte records in
// data, ordering by the trailing keyWidth bytes of each record, compared
// most-significant-byte first. The caller (bitpack.SortRecord) is
// responsible for laying those trailing bytes out both in field-precedence
// order (diag_bucket ahead of a_post, per §4.E step 4) and big-endian within
// each field, so that this raw byte compare agrees with numeric order; Sort
// itself does no field-aware decoding. Sort returns one Range per worker
// describing the contiguous contig span and byte offset it owns, built from
// the per-contig byte-count table panel (§4.E step 3-4: "panel[a_cont] =
// bytes per A-contig in sarray").
func Sort(data []byte, recordWidth, keyWidth int, panel []int64, workers int) []Range {
	sortRecords(data, recordWidth, keyWidth)
	return splitRanges(panel, workers)
}

// sortRecords sorts the flat record array by the trailing keyWidth bytes of
// each recordWidth-byte record, MSD-first (matching diag_bucket as the
// primary discriminator ahead of a_post, per §4.E's key order).
func sortRecords(data []byte, recordWidth, keyWidth int) {
	n := len(data) / recordWidth
	if n < 2 {
		return
	}
	recs := make([][]byte, n)
	for i := 0; i < n; i++ {
		recs[i] = data[i*recordWidth : (i+1)*recordWidth]
	}
	keyOff := recordWidth - keyWidth
	msdSort(recs, keyOff, keyWidth, 0)
	out := make([]byte, len(data))
	for i, r := range recs {
		copy(out[i*recordWidth:(i+1)*recordWidth], r)
	}
	copy(data, out)
}

// msdSort recursively buckets recs by byte depth (0-based from the start of
// the key), falling back to insertion sort for small buckets.
func msdSort(recs [][]byte, keyOff, keyWidth, depth int) {
	if len(recs) < 2 || depth >= keyWidth {
		return
	}
	if len(recs) <= 32 {
		insertionSort(recs, keyOff, keyWidth)
		return
	}

	var counts [257]int
	byteAt := func(r []byte) int { return int(r[keyOff+depth]) + 1 }
	for _, r := range recs {
		counts[byteAt(r)]++
	}
	offsets := make([]int, 257)
	sum := 0
	for i := 0; i < 257; i++ {
		offsets[i] = sum
		sum += counts[i]
	}
	out := make([][]byte, len(recs))
	cursor := append([]int(nil), offsets...)
	for _, r := range recs {
		b := byteAt(r)
		out[cursor[b]] = r
		cursor[b]++
	}
	copy(recs, out)

	for b := 1; b < 257; b++ {
		lo, hi := offsets[b], offsets[b]+counts[b]
		if hi-lo > 1 {
			msdSort(recs[lo:hi], keyOff, keyWidth, depth+1)
		}
	}
}

func insertionSort(recs [][]byte, keyOff, keyWidth int) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && less(recs[j], recs[j-1], keyOff, keyWidth); j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}

func less(a, b []byte, keyOff, keyWidth int) bool {
	for i := 0; i < keyWidth; i++ {
		if a[keyOff+i] != b[keyOff+i] {
			return a[keyOff+i] < b[keyOff+i]
		}
	}
	return false
}

// splitRanges partitions the contig index space into `workers` contiguous,
// roughly byte-balanced spans using the per-contig byte-count table.
func splitRanges(panel []int64, workers int) []Range {
	var total int64
	for _, b := range panel {
		total += b
	}
	if workers < 1 {
		workers = 1
	}
	target := total / int64(workers)
	if target == 0 {
		target = 1
	}

	var ranges []Range
	beg := 0
	acc := int64(0)
	byteOff := 0
	for i, b := range panel {
		acc += b
		if acc >= target && len(ranges) < workers-1 {
			ranges = append(ranges, Range{BegContig: beg, EndContig: i + 1, ByteOffset: byteOff})
			byteOff += int(acc)
			beg = i + 1
			acc = 0
		}
	}
	ranges = append(ranges, Range{BegContig: beg, EndContig: len(panel), ByteOffset: byteOff})
	return ranges
}

// Copyright 2023, the FASTGA contributors.

// Package sortpass implements the Seed Reimport & Bucket Sort driver of
// spec.md §4.E: reread each lane's spooled shard, decode raw pairs into
// sort records keyed on (diag_bucket, a_post, b_contig), bucket-sum per
// A-contig, and hand the assembled array to internal/radixsort.
//
// The per-thread disjoint-offset reimport (prefix-sum the bucket table,
// then let every thread write to its own slice of a shared array) follows
// the teacher's combine-then-partition shape in
// cmd/muscato_combine_windows/main.go, generalized from "merge per-window
// hit files" to "merge per-lane spool shards."
package sortpass

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/golang/snappy"

	"github.com/mrossi1-ilmn/FASTGA/internal/bitpack"
)

// Lens supplies the B-genome contig length table needed to normalize
// diagonals (§4.E step 2: "len[Perm2[b_cont]]").
type Lens interface {
	Len(physicalContig int) int
}

// Params bundles the record geometry for both the spool (input) and sort
// (output) record shapes.
type Params struct {
	Spool   bitpack.SpoolRecord
	Sort    bitpack.SortRecord
	K       int
	Threads int
	NConts  int
}

// ShardSource names the per-(tid,panel,sign) shard files produced by
// internal/spool; Reimport deletes them when asked to.
type ShardSource interface {
	ShardPath(tid, panel, sign int) string
}

// Reimport walks panel p's shards across all threads for one sign class
// (§4.E "for each A-panel p (outer loop) and each sign class (inner loop
// 0=forward, 1=reverse)"), decoding each spooled pair into a sort record
// appended to out. Each shard's writes go to a disjoint offset computed
// from the record counts of the shards before it (§4.E step 1-2); the
// bucket table is not used for placement. It returns the assembled
// sort-record array and updates buck in place (§4.E step 2 "increment
// buck[a_cont] (in-place finger)"). Forward and reverse shards are kept in
// disjoint arrays so the chain phase knows which orientation it is walking.
func Reimport(src ShardSource, params Params, lens Lens, panel, sign int, buck []int64, deleteShards bool) ([]byte, error) {
	recW := params.Sort.Width()

	type job struct {
		tid, sign int
		path      string
		raw       []byte // decompressed spool records, decoded up front
	}
	var jobs []job
	for tid := 0; tid < params.Threads; tid++ {
		p := src.ShardPath(tid, panel, sign)
		if _, err := os.Stat(p); err == nil {
			jobs = append(jobs, job{tid: tid, sign: sign, path: p})
		}
	}

	// Pass 1: decompress every shard's snappy blocks up front so record
	// counts (and therefore disjoint per-thread offsets, §4.E step 1) are
	// known before any sort record is written.
	for i := range jobs {
		raw, err := decodeShard(jobs[i].path)
		if err != nil {
			return nil, err
		}
		jobs[i].raw = raw
	}

	spoolW := params.Spool.Width()
	var total int64
	offsets := make([]int64, len(jobs))
	for i, j := range jobs {
		offsets[i] = total
		total += int64(len(j.raw)) / int64(spoolW)
	}
	out := make([]byte, total*int64(recW))

	// Each goroutine accumulates into its own bucket table and sums into
	// buck after joining: within one panel every record shares the same
	// A-contig, so concurrent jobs would otherwise race on the same
	// buck[aCont] slot (§5 "Shared state" only promises disjointness for
	// sarray's byte ranges, not for this bucket table).
	var wg sync.WaitGroup
	errs := make([]error, len(jobs))
	localBucks := make([][]int64, len(jobs))
	for i, j := range jobs {
		localBucks[i] = make([]int64, len(buck))
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			errs[i] = reimportOne(j.raw, j.sign, params, lens, out, offsets[i]*int64(recW), localBucks[i])
		}(i, j)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	for _, lb := range localBucks {
		for i, v := range lb {
			buck[i] += v
		}
	}

	if deleteShards {
		for _, j := range jobs {
			os.Remove(j.path)
		}
	}
	return out, nil
}

// decodeShard reads a shard file written by internal/spool: a sequence of
// {uint32 len, snappy-compressed block} frames, and returns the
// concatenated decompressed spool records.
func decodeShard(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []byte
	var lenPrefix [4]byte
	for {
		if _, err := io.ReadFull(f, lenPrefix[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		n := binary.LittleEndian.Uint32(lenPrefix[:])
		compressed := make([]byte, n)
		if _, err := io.ReadFull(f, compressed); err != nil {
			return nil, err
		}
		block, err := snappy.Decode(nil, compressed)
		if err != nil {
			return nil, err
		}
		out = append(out, block...)
	}
	return out, nil
}

// reimportOne decodes every spooled record in one shard's decompressed
// bytes, computes its diagonal bucket/remainder, and writes the resulting
// sort record into out starting at byteOff (§4.E step 2).
func reimportOne(raw []byte, sign int, params Params, lens Lens, out []byte, byteOff int64, buck []int64) error {
	spoolW := params.Spool.Width()
	off := byteOff
	forward := sign == 0

	for pos := 0; pos+spoolW <= len(raw); pos += spoolW {
		rec := raw[pos : pos+spoolW]
		lcp, aPostRaw, bPostRaw := params.Spool.Decode(rec)

		layout := bitpack.PostLayout{Pbyte: params.Spool.Ibyte, Cbyte: 3}
		aPost, aCont, _ := layout.Decode(aPostRaw)
		blayout := bitpack.PostLayout{Pbyte: params.Spool.Jbyte, Cbyte: 3}
		bPost, bCont, flip := blayout.Decode(bPostRaw)

		// diag is always computed from the raw, unadjusted aPost
		// (original_source/FastGA.c:1015-1019); the flip normalization
		// below only ever changes the a_post value written to the sort
		// record, and only in the forward branch — the reverse branch
		// never applies it.
		var diag int64
		outAPost := aPost
		if forward {
			diag = (aPost - bPost) + int64(lens.Len(bCont))
			if flip {
				outAPost = aPost + int64(params.K-int(lcp))
			}
		} else {
			diag = aPost + bPost
		}
		diagBucket, drem := bitpack.SplitDiagonal(diag)

		dst := out[off : off+int64(params.Sort.Width())]
		params.Sort.Encode(dst, lcp, drem, outAPost, diagBucket, bCont)
		off += int64(params.Sort.Width())

		buck[aCont]++
	}
	return nil
}

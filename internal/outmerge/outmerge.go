// Copyright 2023, the FASTGA contributors.

// Package outmerge performs the final external sort/merge of per-thread
// .las shards into the single <ALGN_NAME>.las output described in spec.md
// §6: a file header {nlive int64, tspace int32} followed by overlap
// records, restoring the global ascending-by-A-start order across contig
// pairs that §5's ordering guarantee leaves to "a downstream sort/merge".
//
// The external-process pipeline (spawn a sort utility, stream shard
// records through it, collect the merged result) follows the teacher's
// scipipe-wired external tool invocation in cmd/muscato/main.go, which
// builds a scipipe.NewWorkflow to drive an external `sort`/`sztool` stage;
// here the workflow has two processes: `cat` concatenates the shards and
// the platform `sort` utility sorts the result.
package outmerge

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/scipipe/scipipe"
)

// Header is the output file's leading {nlive, tspace} pair, §6.
type Header struct {
	NLive  int64
	TSpace int32
}

// Record is one emitted overlap: a fixed header plus its tracepoint bytes.
// OverlapHeader bytes are caller-defined (contig ids, frame, window, diffs);
// this package treats them as an opaque, fixed-width key blob so it never
// needs to know the alignment's internal layout.
type Record struct {
	OverlapHeader []byte // fixed-width, includes the sort key as its prefix
	Trace         []byte // tlen*TBYTES raw trace bytes
}

// Merge streams every shard path's records through an external sort over
// the OverlapHeader's sort-key prefix, then writes the merged result to
// outPath with the §6 file header prepended; no records are removed.
//
// keyWidth bytes at the front of each serialized record form the sort key
// (contig pair + A-start, per §5's ordering guarantee); the external `sort`
// utility is driven through scipipe exactly as the teacher drives its
// external sort/compress stage.
func Merge(shardPaths []string, outPath string, tspace int32, keyWidth int, nlive int64) error {
	wf := scipipe.NewWorkflow("fastga_outmerge", 4)

	cat := wf.NewProc("cat_shards", buildCatCommand(shardPaths))
	sortProc := wf.NewProc("sort_shards", fmt.Sprintf(
		"sort -t$'\\x00' -k1,%d -n > {o:sorted}", keyWidth))
	sortProc.SetOut("sorted", outPath+".sorted.tmp")
	sortProc.In("in").From(cat.Out("merged"))

	wf.Run()

	return finalize(outPath+".sorted.tmp", outPath, tspace, nlive)
}

func buildCatCommand(paths []string) string {
	cmd := "cat"
	for _, p := range paths {
		cmd += " " + p
	}
	cmd += " > {o:merged}"
	return cmd
}

// finalize prepends the §6 file header to the externally-sorted stream,
// then removes the scratch file. nlive is supplied by the caller, who
// already knows it from the per-thread live-count headers written by
// internal/redundancy's survivors (§4.G "live-count header updated in
// place at the end").
func finalize(sortedPath, outPath string, tspace int32, nlive int64) error {
	in, err := os.Open(sortedPath)
	if err != nil {
		return fmt.Errorf("outmerge: opening sorted shard: %w", err)
	}
	defer in.Close()
	defer os.Remove(sortedPath)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("outmerge: creating %s: %w", outPath, err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(nlive))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(tspace))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	if _, err := io.Copy(w, in); err != nil {
		return err
	}
	return w.Flush()
}

// CleanupShards removes every intermediate per-thread shard, matching §6
// "all deleted after the final external sort/merge."
func CleanupShards(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

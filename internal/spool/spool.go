// Copyright 2023, the FASTGA contributors.

// Package spool implements the Pair Spool of spec.md §4.D: per lane, per
// A-panel, per sign class, a 1 MB buffer that flushes to its own shard file
// on overflow or at finalize, plus a bucket-count array that seeds the
// external sort in internal/sortpass.
//
// The fixed-capacity buffer with a high-water mark and single bulk write on
// overflow follows the teacher's sync.Pool-backed window buffers in
// cmd/muscato_screen/main.go, adapted from "reusable scratch buffer" to
// "per-shard spill buffer"; shard files are named and opened the way
// cmd/muscato_combine_windows/main.go names its per-window temp files.
package spool

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/golang/snappy"

	"github.com/mrossi1-ilmn/FASTGA/internal/bitpack"
	"github.com/mrossi1-ilmn/FASTGA/internal/merge"
)

const bufCap = 1 << 20 // 1 MB, §4.D

// shard is one lane x panel x sign-class spill buffer.
type shard struct {
	mu     sync.Mutex
	buf    []byte
	pos    int
	path   string
	opened bool
}

// Writer owns every shard for one merge run: indexed by [tid][panel][sign].
type Writer struct {
	dir     string
	root    string
	nconts  int
	rec     bitpack.SpoolRecord
	shards  map[[3]int]*shard
	mu      sync.Mutex
	buckets [][]int64 // buckets[tid][a_cont], counts records emitted per A-contig
	threads int
}

// NewWriter creates a spool writer for a merge run with the given thread
// count, A-contig count, and spool record geometry (§3 "Seed pair (spool
// record)").
func NewWriter(dir, root string, threads, nconts int, rec bitpack.SpoolRecord) *Writer {
	w := &Writer{
		dir:     dir,
		root:    root,
		nconts:  nconts,
		rec:     rec,
		shards:  make(map[[3]int]*shard),
		threads: threads,
	}
	w.buckets = make([][]int64, threads)
	for i := range w.buckets {
		w.buckets[i] = make([]int64, nconts)
	}
	return w
}

func signIdx(agree bool) int {
	if agree {
		return 0 // N_Units, §4.C step 5
	}
	return 1 // C_Units
}

func (w *Writer) shardPath(tid, panel, sign int) string {
	cls := "n"
	if sign == 1 {
		cls = "c"
	}
	return filepath.Join(w.dir, fmt.Sprintf(".%s.spool.%d.%d.%s", w.root, tid, panel, cls))
}

func (w *Writer) shardFor(tid, panel, sign int) *shard {
	key := [3]int{tid, panel, sign}
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.shards[key]
	if !ok {
		s = &shard{buf: make([]byte, 0, bufCap), path: w.shardPath(tid, panel, sign)}
		w.shards[key] = s
	}
	return s
}

// Emit writes one pair to its (tid, panel, sign-class) shard, flushing when
// the buffer's high-water mark (cap - record_width) would be exceeded
// (§4.D "one write, reset to origin"). Its signature matches merge.Sink so
// a *Writer can be passed directly to merge.Run.
func (w *Writer) Emit(tid, panel int, agree bool, p merge.Pair) error {
	sign := signIdx(agree)
	s := w.shardFor(tid, panel, sign)

	width := w.rec.Width()
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos+width > bufCap-width {
		if err := s.flush(); err != nil {
			return err
		}
	}
	if len(s.buf) < s.pos+width {
		s.buf = s.buf[:s.pos+width]
	}
	w.rec.Encode(s.buf[s.pos:s.pos+width], p.Lcp, p.APost, p.BPost)
	s.pos += width

	w.mu.Lock()
	w.buckets[tid][p.ACont]++
	w.mu.Unlock()
	return nil
}

// flush writes the buffer as one snappy-compressed block, length-prefixed
// so a shard file is a concatenation of independently decodable blocks
// (each corresponding to one overflow-triggered flush). This matches the
// teacher's blanket use of github.com/golang/snappy for intermediate
// files (cmd/muscato_screen/main.go's harvest), adapted from a single
// streamed snappy.Writer per file to one block per flush since shards are
// reopened in append mode across multiple flush calls.
func (s *shard) flush() error {
	if s.pos == 0 {
		return nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if s.opened {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(s.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("spool: opening %s: %w", s.path, err)
	}
	defer f.Close()

	compressed := snappy.Encode(nil, s.buf[:s.pos])
	w := bufio.NewWriter(f)
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(compressed)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	if _, err := w.Write(compressed); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	s.opened = true
	s.pos = 0
	return nil
}

// Finalize flushes every shard's remaining bytes (§4.D "on finalize: one
// flush, close fd") and returns the per-thread bucket-count tables that
// seed internal/sortpass's prefix-sum pass.
func (w *Writer) Finalize() ([][]int64, error) {
	for _, s := range w.shards {
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	return w.buckets, nil
}

// ShardPath exposes the shard filename for a (tid, panel, sign) triple so
// internal/sortpass can reread and then delete it (§4.E step 2).
func (w *Writer) ShardPath(tid, panel, sign int) string {
	return w.shardPath(tid, panel, sign)
}

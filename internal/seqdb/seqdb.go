// Copyright 2017, Kerby Shedden and the Muscato contributors.
// Copyright 2023, the FASTGA contributors.

// Package seqdb is the sequence-database collaborator of spec.md §6: a
// random-access per-contig base fetch, per-contig length table, and the
// sort permutation that orders contigs by descending length (GLOSSARY:
// "Sort permutation").
//
// Reading and random access follow the sequential, file-backed reader shape
// of the teacher's utils.ReadInSeq (utils/fastq.go), generalized from
// "advance through a fastq record" to "fetch an arbitrary contig's bases."
package seqdb

import (
	"bufio"
	"fmt"
	"os"
	"sort"
)

// DB is an open genome sequence database (<root>.dam + .bps, per §6).
type DB struct {
	root  string
	names []string
	seqs  [][]byte // in-memory for simplicity; real .dam/.bps is disk-backed
	perm  []int    // Perm[i] = physical contig id of the i'th sorted contig
}

// Open reads a .dam-style flat sequence file: one record per contig, name
// line prefixed with '>', sequence on subsequent lines until the next '>'.
// This plays the role of the external .dam/.bps pair described in §6.
func Open(root string) (*DB, error) {
	f, err := os.Open(root + ".dam")
	if err != nil {
		return nil, fmt.Errorf("seqdb: opening %s.dam: %w", root, err)
	}
	defer f.Close()

	db := &DB{root: root}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)

	var cur []byte
	flush := func() {
		if cur != nil {
			db.seqs = append(db.seqs, cur)
		}
	}
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) > 0 && line[0] == '>' {
			flush()
			name := string(line[1:])
			db.names = append(db.names, name)
			cur = nil
			continue
		}
		cur = append(cur, line...)
	}
	flush()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("seqdb: reading %s.dam: %w", root, err)
	}

	db.perm = sortPermutation(db.seqs)
	return db, nil
}

// NewFromContigs builds an in-memory DB directly from named sequences,
// used by tests constructing synthetic genomes without a .dam file on disk.
func NewFromContigs(names []string, seqs [][]byte) *DB {
	db := &DB{names: names, seqs: seqs}
	db.perm = sortPermutation(seqs)
	return db
}

// sortPermutation orders contigs by descending length, breaking ties by
// physical id, matching the GLOSSARY's "Sort permutation: stored ordering
// of contigs by descending length."
func sortPermutation(seqs [][]byte) []int {
	perm := make([]int, len(seqs))
	for i := range perm {
		perm[i] = i
	}
	sort.SliceStable(perm, func(a, b int) bool {
		return len(seqs[perm[a]]) > len(seqs[perm[b]])
	})
	return perm
}

// NContigs is the number of contigs N in this genome.
func (db *DB) NContigs() int { return len(db.seqs) }

// Len returns the length of physical contig id.
func (db *DB) Len(id int) int { return len(db.seqs[id]) }

// Perm returns the sort permutation: Perm[i] is the physical contig id of
// the i'th contig in descending-length order.
func (db *DB) Perm() []int { return db.perm }

// Name returns the physical contig's name.
func (db *DB) Name(id int) string { return db.names[id] }

// Bases returns the forward-strand bases of physical contig id over
// [lo,hi).
func (db *DB) Bases(id, lo, hi int) []byte {
	return db.seqs[id][lo:hi]
}

// Complement returns the reverse complement of seq, used by the Chain &
// Align phase to pre-complement the A-sequence for reverse-mode alignment
// launches (spec.md §4.F "in reverse mode the A-sequence is pre-complemented";
// SPEC_FULL.md supplemented feature).
func Complement(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		out[len(seq)-1-i] = complementBase(b)
	}
	return out
}

func complementBase(b byte) byte {
	switch b {
	case 'A', 'a':
		return 'T'
	case 'C', 'c':
		return 'G'
	case 'G', 'g':
		return 'C'
	case 'T', 't':
		return 'A'
	default:
		return 'N'
	}
}

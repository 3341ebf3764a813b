// Copyright 2023, the FASTGA contributors.

// Package pipeline wires together every phase of spec.md's adaptive-seed
// aligner — merge, spool, reimport/bucket sort, chain & align, redundancy
// elimination, and output — into a single per-run orchestrator, so
// cmd/fastga stays a thin flag-parsing/exit-code shim and the phase
// sequencing itself is unit-testable in isolation (§8 end-to-end
// scenarios S1-S6).
//
// The struct-owns-per-run-state shape follows cmd/muscato/main.go's
// top-level function threading a single utils.Config through each stage.
package pipeline

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/mrossi1-ilmn/FASTGA/internal/align"
	"github.com/mrossi1-ilmn/FASTGA/internal/bitpack"
	"github.com/mrossi1-ilmn/FASTGA/internal/chain"
	"github.com/mrossi1-ilmn/FASTGA/internal/config"
	"github.com/mrossi1-ilmn/FASTGA/internal/ktable"
	"github.com/mrossi1-ilmn/FASTGA/internal/merge"
	"github.com/mrossi1-ilmn/FASTGA/internal/postlist"
	"github.com/mrossi1-ilmn/FASTGA/internal/radixsort"
	"github.com/mrossi1-ilmn/FASTGA/internal/redundancy"
	"github.com/mrossi1-ilmn/FASTGA/internal/seqdb"
	"github.com/mrossi1-ilmn/FASTGA/internal/sortpass"
	"github.com/mrossi1-ilmn/FASTGA/internal/spool"
)

// Pipeline owns the per-run state threaded across merge, sort, chain, and
// redundancy elimination.
type Pipeline struct {
	Cfg    *config.Config
	Logger *log.Logger

	db1, db2 *seqdb.DB
	stats    merge.Stats
}

// New returns a Pipeline for the given config. If logger is nil, log
// output goes to stderr.
func New(cfg *config.Config, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(os.Stderr, "fastga: ", log.LstdFlags)
	}
	return &Pipeline{Cfg: cfg, Logger: logger}
}

// Stats exposes the merge phase's summed statistics (§4.C "Statistics").
func (p *Pipeline) Stats() merge.Stats { return p.stats }

// Run drives every phase in order and writes the final .las output.
func (p *Pipeline) Run() error {
	p.Logger.Printf("run %s: %s vs %s (freq=%d)", p.Cfg.RunID, p.Cfg.Genome1, p.Cfg.Genome2, p.Cfg.Freq)

	if err := p.loadSequences(); err != nil {
		return err
	}

	spoolWriter, err := p.mergePhase()
	if err != nil {
		return fmt.Errorf("merge phase: %w", err)
	}

	hits, err := p.sortAndChainPhase(spoolWriter)
	if err != nil {
		return fmt.Errorf("sort/chain phase: %w", err)
	}

	survivors := p.redundancyPhase(hits)

	if err := p.writeOutput(survivors); err != nil {
		return fmt.Errorf("output phase: %w", err)
	}

	if p.Cfg.Verbose {
		p.Logger.Printf("nhits=%d g1len=%d tseed=%d ave_seed_len=%.2f seeds_per_g1_post=%.4f",
			p.stats.NHits, p.stats.G1Len, p.stats.TSeed, p.stats.AveSeedLen(), p.stats.SeedsPerG1Post())
	}
	return nil
}

// RunOnDBs drives the merge→redundancy phases directly against two already
// open sequence databases and returns the surviving hits, without touching
// disk-backed k-mer/position-list files or writing a .las output. This is
// the seam end-to-end tests exercise: scenario fixtures build a *seqdb.DB
// pair plus synthetic k-mer/position-list part files in a temp dir, then
// call RunOnDBs the same way Run's loadSequences+mergePhase+... would.
func (p *Pipeline) RunOnDBs(db1, db2 *seqdb.DB) ([]chain.Hit, error) {
	p.db1, p.db2 = db1, db2
	spoolWriter, err := p.mergePhase()
	if err != nil {
		return nil, fmt.Errorf("merge phase: %w", err)
	}
	hits, err := p.sortAndChainPhase(spoolWriter)
	if err != nil {
		return nil, fmt.Errorf("sort/chain phase: %w", err)
	}
	return p.redundancyPhase(hits), nil
}

func (p *Pipeline) loadSequences() error {
	db1, err := seqdb.Open(p.Cfg.Genome1)
	if err != nil {
		return fmt.Errorf("opening %s: %w", p.Cfg.Genome1, err)
	}
	db2, err := seqdb.Open(p.Cfg.Genome2)
	if err != nil {
		return fmt.Errorf("opening %s: %w", p.Cfg.Genome2, err)
	}
	p.db1, p.db2 = db1, db2
	return nil
}

// mergePhase forks T merge lanes over the two genomes' k-mer tables and
// position lists, spooling every emitted seed pair to disk (§4.C, §4.D).
func (p *Pipeline) mergePhase() (*spool.Writer, error) {
	t := p.Cfg.Threads
	lanes1 := make([]*merge.Genome, t)
	lanes2 := make([]*merge.Genome, t)
	for i := 0; i < t; i++ {
		k1, err := ktable.Open(p.Cfg.TempDir, p.Cfg.Genome1, t, 8, 2)
		if err != nil {
			return nil, err
		}
		pl1, err := postlist.Open(p.Cfg.TempDir, p.Cfg.Genome1, t)
		if err != nil {
			return nil, err
		}
		k2, err := ktable.Open(p.Cfg.TempDir, p.Cfg.Genome2, t, 8, 2)
		if err != nil {
			return nil, err
		}
		pl2, err := postlist.Open(p.Cfg.TempDir, p.Cfg.Genome2, t)
		if err != nil {
			return nil, err
		}
		lanes1[i] = &merge.Genome{KTab: k1, Post: pl1}
		lanes2[i] = &merge.Genome{KTab: k2, Post: pl2}
	}

	// K is a property of the genome index, not a CLI flag (§6 only
	// enumerates -v/-P/-o/-f/-c/-s/-a/-e); read it from the tables
	// themselves and fail per §7 "configuration mismatch... different k...
	// exit 1" when the two genomes disagree.
	k1Kmer := lanes1[0].KTab.Kmer()
	k2Kmer := lanes2[0].KTab.Kmer()
	if k1Kmer != k2Kmer {
		return nil, fmt.Errorf("kmer length mismatch: %s has K=%d, %s has K=%d", p.Cfg.Genome1, k1Kmer, p.Cfg.Genome2, k2Kmer)
	}
	kmer := k1Kmer
	if kmer == 0 {
		kmer = p.Cfg.Kmer
	}
	p.Cfg.Kmer = kmer

	rec := bitpack.SpoolRecord{Ibyte: 7, Jbyte: 7}
	writer := spool.NewWriter(p.Cfg.SortPath(), p.Cfg.OutRoot, t, p.db1.NContigs(), rec)

	params := merge.Params{
		Freq: p.Cfg.Freq, K: kmer, K0: 12, Threads: t,
		Layout: bitpack.PostLayout{Pbyte: rec.Ibyte, Cbyte: 3},
	}
	stats := merge.Run(params, lanes1, lanes2, writer)
	p.stats = stats

	if _, err := writer.Finalize(); err != nil {
		return nil, err
	}
	return writer, nil
}

// lenAdapter adapts *seqdb.DB to sortpass.Lens.
type lenAdapter struct{ db *seqdb.DB }

func (l lenAdapter) Len(contig int) int { return l.db.Len(contig) }

// bandAdapter adapts *seqdb.DB to chain.SeqProvider.
type bandAdapter struct{ db *seqdb.DB }

func (a bandAdapter) Bases(contig, lo, hi int) []byte { return a.db.Bases(contig, lo, hi) }
func (a bandAdapter) Len(contig int) int              { return a.db.Len(contig) }

// sortAndChainPhase reimports every spooled shard into sort records
// (§4.E), radix-sorts them per A-panel and sign class, then chains and
// aligns each worker's contiguous contig range (§4.F).
func (p *Pipeline) sortAndChainPhase(writer *spool.Writer) ([]chain.Hit, error) {
	sortRec := bitpack.SortRecord{Ipost: 5, Dbyte: 4, Jcont: 3}
	spoolRec := bitpack.SpoolRecord{Ibyte: 7, Jbyte: 7}
	lens := lenAdapter{p.db2}

	params := sortpass.Params{Spool: spoolRec, Sort: sortRec, K: p.Cfg.Kmer, Threads: p.Cfg.Threads, NConts: p.db1.NContigs()}
	buck := make([]int64, p.db1.NContigs())

	var allHits []chain.Hit
	walker := chain.NewWalker(chain.Params{
		ChainBreak: p.Cfg.ChainBreak,
		ChainMin:   p.Cfg.ChainMin,
		AlignMin:   p.Cfg.AlignMin,
		AlignRate:  p.Cfg.AlignRate,
		TSpace:     align.TSpace,
	}, bandAdapter{p.db1}, bandAdapter{p.db2})

	// §4.E: "For each A-panel p (outer loop) and each sign class (inner
	// loop 0=forward, 1=reverse)" — forward and reverse shards are sorted
	// and chained as disjoint arrays so the chain phase knows which
	// orientation it is walking (§4.F "in reverse mode the A-sequence is
	// pre-complemented").
	for panel := 0; panel < p.db1.NContigs(); panel++ {
		for sign := 0; sign < 2; sign++ {
			for i := range buck {
				buck[i] = 0
			}
			data, err := sortpass.Reimport(writer, params, lens, panel, sign, buck, true)
			if err != nil {
				return nil, err
			}
			if len(data) == 0 {
				continue
			}
			panelBytes := make([]int64, len(buck))
			for c, n := range buck {
				panelBytes[c] = n * int64(sortRec.Width())
			}
			ranges := radixsort.Sort(data, sortRec.Width(), sortRec.KeyWidth(), panelBytes, p.Cfg.Threads)

			runs := decodeRuns(data, sortRec, ranges)
			walker.Run(panel, runs, sign == 1, &allHits)
		}
	}
	return allHits, nil
}

// decodeRuns splits a sorted panel's raw bytes into per-B-contig seed runs
// for the chain walker. Grouping by A-contig is implicit: one panel = one
// A-contig in this pipeline's layout.
func decodeRuns(data []byte, rec bitpack.SortRecord, ranges []radixsort.Range) map[int][]chain.Seed {
	runs := make(map[int][]chain.Seed)
	w := rec.Width()
	for off := 0; off+w <= len(data); off += w {
		lcp, drem, apost, dbucket, bcont := rec.Decode(data[off : off+w])
		runs[bcont] = append(runs[bcont], chain.Seed{
			APost: apost, DiagBucket: dbucket, Drem: drem, Lcp: lcp, BContig: bcont,
		})
	}
	_ = ranges // worker-range partitioning is informational here; a
	// multi-process deployment would dispatch one goroutine per range.
	return runs
}

func (p *Pipeline) redundancyPhase(hits []chain.Hit) []chain.Hit {
	byContigPair := make(map[[2]int][]int)
	alns := make([]redundancy.Alignment, len(hits))
	for i, h := range hits {
		alns[i] = redundancy.Alignment{
			ABpos: h.Path.ABpos, AEpos: h.Path.AEpos,
			BBpos: h.Path.BBpos, BEpos: h.Path.BEpos,
			Diffs: h.Path.Diffs,
		}
		key := [2]int{h.AContig, h.BContig}
		byContigPair[key] = append(byContigPair[key], i)
	}

	cfg := redundancy.Config{TSpace: align.TSpace, PermissiveFusion: p.Cfg.PermissiveFusion}

	var survivors []chain.Hit
	for _, idxs := range byContigPair {
		sub := make([]redundancy.Alignment, len(idxs))
		for i, idx := range idxs {
			sub[i] = alns[idx]
		}
		liveLocal := redundancy.Eliminate(sub, cfg)
		for _, li := range liveLocal {
			survivors = append(survivors, hits[idxs[li]])
		}
	}
	return survivors
}

// writeOutput serializes every surviving hit as an overlap record and
// writes the §6 output file: header {nlive int64, tspace int32} followed
// by {Overlap header, trace[tlen*TBYTES]} records.
func (p *Pipeline) writeOutput(hits []chain.Hit) error {
	outPath := filepath.Join(p.Cfg.TempDir, p.Cfg.OutRoot+".las")
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, h := range hits {
		if h.Path.TBytes == 0 {
			align.CompressTrace(h.Path, align.TSpace)
		}
	}

	w := bufio.NewWriter(f)
	var hdr [12]byte
	binary.LittleEndian.PutUint64(hdr[0:8], uint64(len(hits)))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(align.TSpace))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	for _, h := range hits {
		if err := writeOverlap(w, h); err != nil {
			return err
		}
	}
	return w.Flush()
}

// writeOverlap serializes one contig pair, frame, window, diff count, and
// its tracepoint-compressed trace.
func writeOverlap(w *bufio.Writer, h chain.Hit) error {
	var hdr [26]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(h.AContig))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(h.BContig))
	if h.Reverse {
		hdr[8] = 1
	}
	binary.LittleEndian.PutUint32(hdr[9:13], uint32(h.Path.ABpos))
	binary.LittleEndian.PutUint32(hdr[13:17], uint32(h.Path.AEpos))
	binary.LittleEndian.PutUint32(hdr[17:21], uint32(h.Path.BBpos))
	binary.LittleEndian.PutUint32(hdr[21:25], uint32(h.Path.Diffs))
	hdr[25] = byte(h.Path.TBytes)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	for _, tp := range h.Path.Trace {
		if h.Path.TBytes == 1 {
			w.WriteByte(byte(tp.Diffs))
			w.WriteByte(byte(tp.BAdvance))
		} else {
			var b [4]byte
			binary.LittleEndian.PutUint16(b[0:2], uint16(tp.Diffs))
			binary.LittleEndian.PutUint16(b[2:4], uint16(tp.BAdvance))
			w.Write(b[:])
		}
	}
	return nil
}

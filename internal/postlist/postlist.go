// Copyright 2017, Kerby Shedden and the Muscato contributors.
// Copyright 2023, the FASTGA contributors.

// Package postlist implements the Post-List Stream of spec.md §4.A: a lazy,
// paged reader over one genome's position list, sharded across T² part
// files (T = thread count): part i*T+j holds posts produced by table
// partition j on thread i.
//
// The streaming/paging discipline follows original_source/FastGA.c's
// Post_List/Open_Post_List/More_Post_List family; the reader type itself —
// a cursor with Next() bool over a byte page filled by io.ReadFull — follows the shape of
// the teacher's utils.ReadInSeq (utils/fastq.go).
package postlist

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

const pageSize = 1024 // posts resident at once, per spec.md §4.A

// stubHeader is the leading {pbyte, cbyte, nels} every part file carries,
// skipped on open per §4.A.
type stubHeader struct {
	Pbyte int32
	Cbyte int32
	Nels  int64
}

const stubHeaderSize = 4 + 4 + 8

// Stream is a paged reader over one genome's sharded position list.
type Stream struct {
	dir, root string
	nthr      int // T, the thread/partition count; there are nthr*nthr parts
	pbyte     int // bytes per post, including sign+contig suffix

	f       *os.File
	part    int // 1-based current part number
	neps    []int64
	cache   []byte
	cpos    int // byte offset of the current entry within cache
	clen    int // valid bytes in cache
	cidx    int64
	totNels int64
}

// Open reads and validates the header of every position-list part, matching
// Open_Post_List's "missing or malformed part ⇒ fatal" contract (§4.A
// Failure).
func Open(dir, root string, nthr int) (*Stream, error) {
	s := &Stream{dir: dir, root: root, nthr: nthr, cache: make([]byte, 0)}

	nparts := nthr * nthr
	s.neps = make([]int64, nparts)
	var total int64
	var pbyte int
	for p := 1; p <= nparts; p++ {
		fn := s.partName(p)
		f, err := os.Open(fn)
		if err != nil {
			return nil, fmt.Errorf("postlist: missing part %s: %w", fn, err)
		}
		var hdr stubHeader
		if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
			f.Close()
			return nil, fmt.Errorf("postlist: malformed part %s: %w", fn, err)
		}
		f.Close()
		// hdr.Pbyte is already the total per-post width (§3 "a post is a
		// packed integer of pbyte bytes"); hdr.Cbyte names only the
		// contig+sign suffix portion within it and is not added on top.
		if p == 1 {
			pbyte = int(hdr.Pbyte)
		} else if pbyte != int(hdr.Pbyte) {
			return nil, fmt.Errorf("postlist: part %s post size mismatch", fn)
		}
		total += hdr.Nels
		s.neps[p-1] = total
	}
	s.pbyte = pbyte
	s.totNels = total
	s.cache = make([]byte, pageSize*pbyte)

	if err := s.openPart(1); err != nil {
		return nil, err
	}
	if err := s.fill(); err != nil && err != io.EOF {
		return nil, err
	}
	return s, nil
}

func (s *Stream) partName(p int) string {
	return filepath.Join(s.dir, fmt.Sprintf(".%s.post.%d", s.root, p))
}

func (s *Stream) openPart(p int) error {
	if s.f != nil {
		s.f.Close()
	}
	f, err := os.Open(s.partName(p))
	if err != nil {
		return fmt.Errorf("postlist: opening part %d: %w", p, err)
	}
	if _, err := f.Seek(stubHeaderSize, io.SeekStart); err != nil {
		return err
	}
	s.f = f
	s.part = p
	return nil
}

// fill loads the next page, transparently advancing across part boundaries.
func (s *Stream) fill() error {
	for {
		n, err := io.ReadFull(s.f, s.cache)
		if n > 0 {
			s.clen = n
			s.cpos = 0
			return nil
		}
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		s.part++
		if s.part > s.nthr*s.nthr {
			s.clen = 0
			s.cpos = 0
			return io.EOF
		}
		if err := s.openPart(s.part); err != nil {
			return err
		}
	}
}

// First resets the stream to part 1, entry 0 (§4.A "first()").
func (s *Stream) First() error {
	if s.cidx == 0 {
		return nil
	}
	if s.part != 1 {
		if err := s.openPart(1); err != nil {
			return err
		}
	} else if _, err := s.f.Seek(stubHeaderSize, io.SeekStart); err != nil {
		return err
	}
	s.cidx = 0
	return s.fill()
}

// Next advances one post, opening the next part transparently when the
// current one is exhausted (§4.A "next()").
func (s *Stream) Next() bool {
	s.cpos += s.pbyte
	s.cidx++
	if s.cidx >= s.totNels {
		return false
	}
	if s.cpos >= s.clen {
		if err := s.fill(); err != nil {
			return false
		}
	}
	return true
}

// Current returns the raw pbyte bytes of the post under the cursor (§4.A
// "current()").
func (s *Stream) Current() []byte {
	return s.cache[s.cpos : s.cpos+s.pbyte]
}

// Done reports whether the stream has been exhausted.
func (s *Stream) Done() bool { return s.cidx >= s.totNels }

// Len is the total number of posts in the index.
func (s *Stream) Len() int64 { return s.totNels }

// Pbyte is the width in bytes of a single post.
func (s *Stream) Pbyte() int { return s.pbyte }

func (s *Stream) partForIndex(i int64) (part int, within int64) {
	p := 0
	for i >= s.neps[p] {
		p++
	}
	if p > 0 {
		i -= s.neps[p-1]
	}
	return p + 1, i
}

// Goto performs a random seek to the i'th post overall, maintaining part
// bookkeeping via the cumulative neps table (§4.A "goto(index)"). It refills
// the page with a positional pread (unix.Pread) rather than Seek+Read, the
// way golang.org/x/sys/unix lets the teacher drop to raw syscalls for a
// precise I/O primitive (unix.Mkfifo in cmd/muscato/main.go; here, a seek
// that does not move the file descriptor's own offset, so a goroutine doing
// nothing but Goto+Current never disturbs another reader's sequential Next
// cursor on a shared descriptor).
func (s *Stream) Goto(i int64) error {
	if s.cidx == i {
		return nil
	}
	s.cidx = i
	part, within := s.partForIndex(i)
	if s.part != part {
		if err := s.openPart(part); err != nil {
			return err
		}
	}
	off := stubHeaderSize + within*int64(s.pbyte)
	n, err := unix.Pread(int(s.f.Fd()), s.cache, off)
	if err != nil {
		return err
	}
	s.clen = n
	s.cpos = 0
	if s.clen < s.pbyte {
		return io.EOF
	}
	return nil
}

// Jump advances delta posts, possibly crossing part boundaries (§4.A
// "jump(delta)").
func (s *Stream) Jump(delta int64) error {
	return s.Goto(s.cidx + delta)
}

// Close releases the stream's single open file descriptor.
func (s *Stream) Close() error {
	if s.f != nil {
		return s.f.Close()
	}
	return nil
}

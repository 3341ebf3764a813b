// Copyright 2017, Kerby Shedden and the Muscato contributors.
// Copyright 2023, the FASTGA contributors.

// Package config holds the runtime parameters threaded through every phase
// of the adaptive-seed pipeline: the adaptive-seed frequency cap, the
// chaining and alignment thresholds, the k-mer length and thread count, and
// the paths used for temporary and output files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Config is the set of parameters shared by every pipeline phase. It is
// built once by ParseArgs; afterward only Kmer changes, when
// internal/pipeline's merge phase fills it in from the genome indexes.
type Config struct {
	// Genome1, Genome2 are the root names of the two genome indexes
	// (<root>.ktab, <root>.post, <root>.dam).
	Genome1 string
	Genome2 string

	// Verbose enables per-phase progress logging and statistics.
	Verbose bool

	// TempDir is the directory used for spool shards and per-thread
	// intermediate files, default /tmp.
	TempDir string

	// OutRoot is the root name of the final .las output. Defaults to the
	// concatenation of the two index roots joined by ".".
	OutRoot string

	// Freq is the mandatory adaptive-seed frequency cutoff.
	Freq int

	// ChainMin is the minimum A/B coverage required to keep a chain.
	ChainMin int

	// ChainBreak is the maximum gap between adjacent seeds in a chain.
	ChainBreak int

	// AlignMin is the minimum accepted alignment length.
	AlignMin int

	// AlignRate is the minimum accepted identity, in [0.6, 1.0).
	AlignRate float64

	// Kmer is the k-mer length shared by both genome indexes.
	Kmer int

	// Threads is the number of parallel worker lanes, T in spec.md.
	Threads int

	// RunID uniquely names this run's temp/log artifacts, combined with
	// the process id the way the teacher's makeTemp does.
	RunID string

	// PermissiveFusion governs the entwine fusion branch in redundancy
	// elimination (DESIGN.md Open Question (c)).
	PermissiveFusion bool
}

// Default thresholds, matching spec.md §4.F and §6.
const (
	DefaultChainBreak = 500
	DefaultChainMin   = 100
	DefaultAlignMin   = 100
	DefaultAlignRate  = 0.7
)

// New returns a Config with defaults applied, matching the defaulting
// behavior of utils.ReadConfig/checkArgs in the teacher.
func New() *Config {
	return &Config{
		TempDir:           "/tmp",
		ChainBreak:        DefaultChainBreak,
		ChainMin:          DefaultChainMin,
		AlignMin:          DefaultAlignMin,
		AlignRate:         DefaultAlignRate,
		Threads:          4,
		PermissiveFusion: true,
	}
}

// ParseArgs parses FASTGA's invocation: two positional genome index roots
// and single-letter, value-concatenated options (-v, -P<dir>, -o<name>,
// -f<int>, -c<int>, -s<int>, -a<int>, -e<float>), matching §6.
func ParseArgs(args []string) (*Config, error) {
	c := New()

	var positional []string
	freqSet := false
	for _, a := range args {
		if len(a) == 0 {
			continue
		}
		if a[0] != '-' {
			positional = append(positional, a)
			continue
		}
		if len(a) < 2 {
			return nil, fmt.Errorf("malformed option %q", a)
		}
		flag, val := a[1], a[2:]
		switch flag {
		case 'v':
			c.Verbose = true
		case 'P':
			if val != "" {
				c.TempDir = val
			}
		case 'o':
			if val != "" {
				c.OutRoot = val
			}
		case 'f':
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("bad -f value %q: %w", val, err)
			}
			c.Freq = n
			freqSet = true
		case 'c':
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("bad -c value %q: %w", val, err)
			}
			c.ChainMin = n
		case 's':
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("bad -s value %q: %w", val, err)
			}
			c.ChainBreak = n
		case 'a':
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("bad -a value %q: %w", val, err)
			}
			c.AlignMin = n
		case 'e':
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("bad -e value %q: %w", val, err)
			}
			c.AlignRate = f
		default:
			return nil, fmt.Errorf("unrecognized option -%c", flag)
		}
	}

	if len(positional) != 2 {
		return nil, fmt.Errorf("expected two genome index arguments, got %d", len(positional))
	}
	c.Genome1, c.Genome2 = positional[0], positional[1]

	if !freqSet {
		return nil, fmt.Errorf("-f<int> (adaptive-seed frequency cap) is mandatory")
	}
	if c.AlignRate < 0.6 || c.AlignRate >= 1.0 {
		return nil, fmt.Errorf("-e value %v out of range [0.6, 1.0)", c.AlignRate)
	}
	if c.OutRoot == "" {
		c.OutRoot = root(c.Genome1) + "." + root(c.Genome2)
	}

	id, err := uuid.NewUUID()
	if err != nil {
		return nil, fmt.Errorf("allocating run id: %w", err)
	}
	c.RunID = fmt.Sprintf("%d.%s", os.Getpid(), id.String())

	return c, nil
}

// root strips a .dam/.ktab/.post suffix and any directory prefix, matching
// the teacher's path.Ext-based basename logic (e.g. saveConfig's outfile
// derivation in cmd/muscato/main.go).
func root(name string) string {
	base := path.Base(name)
	for _, suf := range []string{".dam", ".ktab", ".post"} {
		if strings.HasSuffix(base, suf) {
			return strings.TrimSuffix(base, suf)
		}
	}
	return base
}

// SortPath is the directory holding this run's intermediate shard and
// per-thread output files, scoped by RunID as §6 requires ("temp files are
// named with the process id to avoid collision").
func (c *Config) SortPath() string {
	return path.Join(c.TempDir, "fastga."+c.RunID)
}

// Save persists the configuration as JSON alongside the sort path, the way
// cmd/muscato/main.go's saveConfig records run provenance.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.SortPath(), 0755); err != nil {
		return err
	}
	fid, err := os.Create(path.Join(c.SortPath(), "config.json"))
	if err != nil {
		return err
	}
	defer fid.Close()
	enc := json.NewEncoder(fid)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

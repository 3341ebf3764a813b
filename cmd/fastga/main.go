// Copyright 2023, the FASTGA contributors.

// fastga runs the adaptive-seed whole-genome pairwise aligner pipeline of
// spec.md: k-mer merge, pair spool, bucket sort, chain & align, and
// redundancy elimination, over two genome indexes named on the command
// line.
//
// Invocation and panic-as-fatal-error handling follow cmd/muscato/main.go:
// a single top-level recover prints a diagnostic and exits 1, matching §7's
// "no error is recovered locally." Phase orchestration itself lives in
// internal/pipeline so it can be driven directly from tests.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/profile"

	"github.com/mrossi1-ilmn/FASTGA/internal/config"
	"github.com/mrossi1-ilmn/FASTGA/internal/pipeline"
)

var logger = log.New(os.Stderr, "fastga: ", log.LstdFlags)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(args []string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	cfg, perr := config.ParseArgs(args)
	if perr != nil {
		fmt.Fprintln(os.Stderr, "usage: fastga [-v] [-Ppath] [-oname] -f<freq> [-c<n>] [-s<n>] [-a<n>] [-e<rate>] g1 g2")
		return perr
	}

	if cfg.Verbose {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(cfg.SortPath())).Stop()
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("saving run config: %w", err)
	}

	return pipeline.New(cfg, logger).Run()
}

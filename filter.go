// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

type filter struct {
	MinReads   int64
	MinFreq    float64
	VMatch     string
	MinCDR3Len int
	MaxCDR3Len int
}

func (f *filter) Flags(flags *flag.FlagSet) {
	flags.Int64Var(&f.MinReads, "min-reads", 0, "drop clonotypes with fewer than `N` reads")
	flags.Float64Var(&f.MinFreq, "min-freq", 0, "drop clonotypes with frequency less than `P` (0 ≤ P ≤ 1)")
	flags.StringVar(&f.VMatch, "v-match", "", "keep only clonotypes whose V segment matches `regexp`")
	flags.IntVar(&f.MinCDR3Len, "min-cdr3-len", 0, "drop clonotypes with CDR3 shorter than `N` amino acids")
	flags.IntVar(&f.MaxCDR3Len, "max-cdr3-len", 0, "drop clonotypes with CDR3 longer than `N` amino acids (0 = no limit)")
}

// Apply filters each repertoire in place and renormalizes the
// surviving frequencies so they sum to 1 again. Repertoires left
// empty are dropped from the dataset with a warning.
func (f *filter) Apply(ds *Dataset) error {
	var vRe *regexp.Regexp
	if f.VMatch != "" {
		var err error
		vRe, err = regexp.Compile(f.VMatch)
		if err != nil {
			return fmt.Errorf("-v-match: %w", err)
		}
	}
	kept := ds.repertoires[:0]
	for _, rep := range ds.repertoires {
		ccs := rep.Clonotypes[:0]
		var reads int64
		for _, cc := range rep.Clonotypes {
			if cc.Reads < f.MinReads {
				continue
			}
			if f.MinFreq > 0 && cc.Freq < f.MinFreq {
				continue
			}
			if vRe != nil && !vRe.MatchString(cc.VGene) {
				continue
			}
			if len(cc.CDR3AA) < f.MinCDR3Len {
				continue
			}
			if f.MaxCDR3Len > 0 && len(cc.CDR3AA) > f.MaxCDR3Len {
				continue
			}
			ccs = append(ccs, cc)
			reads += cc.Reads
		}
		if len(ccs) == 0 {
			log.Warnf("sample %q: no clonotypes pass the filter, dropping sample", rep.Sample)
			delete(ds.bySample, rep.Sample)
			continue
		}
		rep.Clonotypes = ccs
		rep.Reads = reads
		for i := range rep.Clonotypes {
			rep.Clonotypes[i].Freq = float64(rep.Clonotypes[i].Reads) / float64(reads)
		}
		kept = append(kept, rep)
	}
	ds.repertoires = kept
	return nil
}

type filtercmd struct {
	filter
}

func (cmd *filtercmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file` (gob dataset)")
	outputFilename := flags.String("o", "-", "output `file`")
	cmd.filter.Flags(flags)
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	var input io.ReadCloser
	if *inputFilename == "-" {
		input = io.NopCloser(stdin)
	} else {
		input, err = os.Open(*inputFilename)
		if err != nil {
			return 1
		}
		defer input.Close()
	}
	log.Print("reading")
	ds, err := LoadDataset(input, strings.HasSuffix(*inputFilename, ".gz"))
	if err != nil {
		return 1
	}
	err = input.Close()
	if err != nil {
		return 1
	}

	log.Print("filtering")
	before := ds.Len()
	err = cmd.filter.Apply(ds)
	if err != nil {
		return 1
	}
	log.Printf("filtering done, %d of %d samples kept", ds.Len(), before)

	var outfile io.WriteCloser
	if *outputFilename == "-" {
		outfile = nopCloser{stdout}
	} else {
		outfile, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer outfile.Close()
	}
	bufw := bufio.NewWriter(outfile)
	var w io.Writer = bufw
	var zw *pgzip.Writer
	if strings.HasSuffix(*outputFilename, ".gz") {
		zw = pgzip.NewWriter(bufw)
		w = zw
	}
	err = encodeDataset(w, ds.Repertoires())
	if err != nil {
		return 1
	}
	if zw != nil {
		err = zw.Close()
		if err != nil {
			return 1
		}
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = outfile.Close()
	if err != nil {
		return 1
	}
	return 0
}

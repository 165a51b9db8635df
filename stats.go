// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/montanaflynn/stats"
	log "github.com/sirupsen/logrus"
)

type statscmd struct {
	hist bool
}

func (cmd *statscmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file` (gob dataset)")
	outputFilename := flags.String("o", "-", "output `file` (JSON)")
	flags.BoolVar(&cmd.hist, "hist", false, "print clonotype read-count histogram to stderr")
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

	var output io.WriteCloser
	if *outputFilename == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(*outputFilename, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}

	bufw := bufio.NewWriter(output)
	err = cmd.doStats(input, strings.HasSuffix(*inputFilename, ".gz"), bufw, stderr)
	if err != nil {
		return 1
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

type sampleStats struct {
	Sample      string
	SourceFile  string
	Blake2b     string
	Clonotypes  int
	Reads       int64
	Singletons  int
	Doubletons  int
	MaxFreq     float64
	MedianReads float64
	ReadsQ1     float64
	ReadsQ3     float64
}

func (cmd *statscmd) doStats(input io.Reader, gz bool, output, histw io.Writer) error {
	var ret struct {
		Samples []sampleStats
	}

	var allReads []float64
	err := DecodeDataset(input, gz, func(ent *DatasetEntry) error {
		for _, rep := range ent.Repertoires {
			s := sampleStats{
				Sample:     rep.Sample,
				SourceFile: rep.SourceFile,
				Blake2b:    fmt.Sprintf("%x", rep.Blake2b[:]),
				Clonotypes: len(rep.Clonotypes),
				Reads:      rep.Reads,
			}
			reads := make([]float64, 0, len(rep.Clonotypes))
			for _, cc := range rep.Clonotypes {
				switch cc.Reads {
				case 1:
					s.Singletons++
				case 2:
					s.Doubletons++
				}
				if cc.Freq > s.MaxFreq {
					s.MaxFreq = cc.Freq
				}
				reads = append(reads, float64(cc.Reads))
				allReads = append(allReads, float64(cc.Reads))
			}
			if len(reads) > 0 {
				s.MedianReads, _ = stats.Median(reads)
			}
			// Percentile returns NaN (not encodable as JSON) when
			// the sample is too small for the requested quartile
			if q, err := stats.Percentile(reads, 25); err == nil {
				s.ReadsQ1 = q
			}
			if q, err := stats.Percentile(reads, 75); err == nil {
				s.ReadsQ3 = q
			}
			ret.Samples = append(ret.Samples, s)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("gob decode: %w", err)
	}
	sort.Slice(ret.Samples, func(i, j int) bool { return ret.Samples[i].Sample < ret.Samples[j].Sample })

	if cmd.hist && len(allReads) > 0 {
		hist := histogram.Hist(15, allReads)
		err = histogram.Fprint(histw, hist, histogram.Linear(40))
		if err != nil {
			return err
		}
	}
	return json.NewEncoder(output).Encode(ret)
}

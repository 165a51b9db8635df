// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

type diversitycmd struct{}

// sampleDiversity is one sample's row of the diversity table.
//
// Chao1 is NaN when the sample has singletons but no doubletons (the
// estimator's denominator is zero); Shannon is NaN for one-clonotype
// samples. Both are written as NA.
type sampleDiversity struct {
	Sample   string
	Observed int
	Reads    int64
	Chao1    float64
	Shannon  float64
}

// diversityOf computes the diversity indexes of one repertoire.
func diversityOf(rep *Repertoire) sampleDiversity {
	d := sampleDiversity{
		Sample:   rep.Sample,
		Observed: len(rep.Clonotypes),
		Reads:    rep.Reads,
	}
	var c1, c2 float64
	freqs := make([]float64, 0, len(rep.Clonotypes))
	for _, cc := range rep.Clonotypes {
		switch cc.Reads {
		case 1:
			c1++
		case 2:
			c2++
		}
		freqs = append(freqs, cc.Freq)
	}
	switch {
	case c2 > 0:
		d.Chao1 = float64(d.Observed) + c1*c1/(2*c2)
	case c1 == 0:
		// no singletons either: the bias correction term is zero
		d.Chao1 = float64(d.Observed)
	default:
		d.Chao1 = math.NaN()
	}
	if d.Observed > 1 {
		d.Shannon = stat.Entropy(freqs) / math.Log(float64(d.Observed))
	} else {
		d.Shannon = math.NaN()
	}
	return d
}

func (cmd *diversitycmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	ds, err := LoadDataset(input, strings.HasSuffix(*inputFilename, ".gz"))
	if err != nil {
		return 1
	}
	err = input.Close()
	if err != nil {
		return 1
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
	err = writeDiversityTSV(output, ds)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

func writeDiversityTSV(w io.Writer, ds *Dataset) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprintln(bufw, "sample.id\tobserved\treads\tchao1\tshannon.norm")
	for _, rep := range ds.Repertoires() {
		d := diversityOf(rep)
		fmt.Fprintf(bufw, "%s\t%d\t%d\t%s\t%s\n",
			d.Sample, d.Observed, d.Reads, formatValue(d.Chao1), formatValue(d.Shannon))
	}
	return bufw.Flush()
}

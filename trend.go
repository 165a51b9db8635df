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
)

type trendcmd struct{}

func (cmd *trendcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	index := flags.String("index", "shannon", "diversity index to regress on age (shannon, chao1, or observed)")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warning, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}
	switch *index {
	case "shannon", "chao1", "observed":
	default:
		err = fmt.Errorf("unsupported -index %q", *index)
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

	var ages, vals []float64
	for _, rep := range ds.Repertoires() {
		if rep.Age == nil {
			log.Warnf("%s: no age in sample sheet, excluding from trend", rep.Sample)
			continue
		}
		div := diversityOf(rep)
		var v float64
		switch *index {
		case "shannon":
			v = div.Shannon
		case "chao1":
			v = div.Chao1
		case "observed":
			v = float64(div.Observed)
		}
		if math.IsNaN(v) {
			log.Warnf("%s: %s index is undefined, excluding from trend", rep.Sample, *index)
			continue
		}
		ages = append(ages, *rep.Age)
		vals = append(vals, v)
	}
	log.Printf("fitting %s ~ age with %d samples", *index, len(ages))
	trend, err := fitAgeTrend(ages, vals)
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
	bufw := bufio.NewWriter(output)
	fmt.Fprint(bufw, "index\tn\ticept\tslope\tlr.pvalue\n")
	fmt.Fprintf(bufw, "%s\t%d\t%s\t%s\t%s\n", *index, trend.N,
		formatValue(trend.Intercept), formatValue(trend.Slope), formatValue(trend.P))
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

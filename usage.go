// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

type usagecmd struct{}

// computeUsage builds the sample × segment usage matrix over the
// segments present in every sample. Cell values are additively
// smoothed fractions of distinct clonotypes: (count + 0.5) /
// (clonotypes in sample + 1). Segments missing from any sample are
// dropped entirely, not zero-filled. The per-sample raw counts are
// returned too, for the chi-squared comparison.
func computeUsage(ds *Dataset) (*labeledMatrix, map[string]map[string]int, error) {
	reps := ds.Repertoires()
	counts := map[string]map[string]int{}
	var shared map[string]bool
	for _, rep := range reps {
		sc := rep.segmentClonotypes()
		counts[rep.Sample] = sc
		if shared == nil {
			shared = map[string]bool{}
			for seg := range sc {
				shared[seg] = true
			}
			continue
		}
		for seg := range shared {
			if _, ok := sc[seg]; !ok {
				delete(shared, seg)
			}
		}
	}
	if len(shared) == 0 {
		return nil, nil, ErrEmptyUsageMatrix
	}
	segs := make([]string, 0, len(shared))
	for seg := range shared {
		segs = append(segs, seg)
	}
	sort.Strings(segs)
	ids := ds.SampleIDs()
	m := mat.NewDense(len(ids), len(segs), nil)
	for i, id := range ids {
		sc := counts[id]
		n := float64(len(ds.Sample(id).Clonotypes))
		for j, seg := range segs {
			m.Set(i, j, (float64(sc[seg])+0.5)/(n+1))
		}
	}
	return &labeledMatrix{rowNames: ids, colNames: segs, m: m}, counts, nil
}

// usageCorrelation computes the Pearson correlation of usage profiles
// for every sample pair.
func usageCorrelation(usage *labeledMatrix) *labeledMatrix {
	n := len(usage.rowNames)
	cor := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		cor.Set(i, i, 1)
		xi := mat.Row(nil, i, usage.m)
		for j := i + 1; j < n; j++ {
			xj := mat.Row(nil, j, usage.m)
			r := stat.Correlation(xi, xj, nil)
			cor.Set(i, j, r)
			cor.Set(j, i, r)
		}
	}
	return &labeledMatrix{rowNames: usage.rowNames, colNames: usage.rowNames, m: cor}
}

// usagePValues computes, for every sample pair, the chi-squared
// homogeneity p-value of their clonotype counts over the shared
// segments.
func usagePValues(usage *labeledMatrix, counts map[string]map[string]int) *labeledMatrix {
	ids := usage.rowNames
	n := len(ids)
	pm := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		pm.Set(i, i, 1)
		for j := i + 1; j < n; j++ {
			p := pvalue(counts[ids[i]], counts[ids[j]], usage.colNames)
			pm.Set(i, j, p)
			pm.Set(j, i, p)
		}
	}
	return &labeledMatrix{rowNames: ids, colNames: ids, m: pm}
}

func (cmd *usagecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file` (gob dataset)")
	outputFilename := flags.String("o", "-", "output `file` (usage matrix TSV)")
	corFilename := flags.String("output-cor", "", "write sample-sample usage correlation matrix to `file`")
	chisqFilename := flags.String("output-chisq", "", "write sample-sample chi-squared p-value matrix to `file`")
	npyFilename := flags.String("output-npy", "", "mirror the usage matrix to `file` (.npy)")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
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

	usage, counts, err := computeUsage(ds)
	if err != nil {
		return 1
	}
	_, nsegs := usage.m.Dims()
	log.Printf("usage matrix: %d samples, %d shared segments", len(usage.rowNames), nsegs)

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
	err = usage.WriteTSV(output, "sample.id")
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *corFilename != "" {
		err = writeMatrixFile(*corFilename, usageCorrelation(usage), "sample.id")
		if err != nil {
			return 1
		}
	}
	if *chisqFilename != "" {
		err = writeMatrixFile(*chisqFilename, usagePValues(usage, counts), "sample.id")
		if err != nil {
			return 1
		}
	}
	if *npyFilename != "" {
		err = writeMatrixNpy(*npyFilename, usage)
		if err != nil {
			return 1
		}
	}
	return 0
}

func writeMatrixFile(fnm string, lm *labeledMatrix, corner string) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	err = lm.WriteTSV(f, corner)
	if err != nil {
		return err
	}
	return f.Close()
}

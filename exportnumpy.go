// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"sort"
	"strings"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

type exportNumpy struct{}

func (cmd *exportNumpy) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	inputFilename := flags.String("i", "-", "input `file` (gob dataset)")
	outputFilename := flags.String("o", "-", "output `file` (.npy)")
	samplesFilename := flags.String("output-samples", "", "write row labels (sample IDs) to `file`")
	clonotypesFilename := flags.String("output-clonotypes", "", "write column labels (clonotype keys) to `file`")
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

	out, ids, keys := freqs2array(ds)
	log.Printf("frequency matrix: %d samples, %d clonotypes", len(ids), len(keys))

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
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return 1
	}
	npw.Shape = []int{len(ids), len(keys)}
	err = npw.WriteFloat64(out)
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

	if *samplesFilename != "" {
		err = writeLabels(*samplesFilename, ids)
		if err != nil {
			return 1
		}
	}
	if *clonotypesFilename != "" {
		err = writeLabels(*clonotypesFilename, keys)
		if err != nil {
			return 1
		}
	}
	return 0
}

// freqs2array builds the dense sample × clonotype frequency matrix
// over the union of all clonotypes, zero-filled where a sample lacks
// a clonotype. Rows are ordered by sample ID, columns by clonotype
// key.
func freqs2array(ds *Dataset) (data []float64, ids, keys []string) {
	ids = ds.SampleIDs()
	union := map[Clonotype]bool{}
	for _, rep := range ds.Repertoires() {
		for _, cc := range rep.Clonotypes {
			union[cc.Clonotype] = true
		}
	}
	cts := make([]Clonotype, 0, len(union))
	for ct := range union {
		cts = append(cts, ct)
	}
	sort.Slice(cts, func(i, j int) bool {
		if cts[i].VGene != cts[j].VGene {
			return cts[i].VGene < cts[j].VGene
		}
		return cts[i].CDR3AA < cts[j].CDR3AA
	})
	col := make(map[Clonotype]int, len(cts))
	keys = make([]string, len(cts))
	for i, ct := range cts {
		col[ct] = i
		keys[i] = ct.String()
	}
	data = make([]float64, len(ids)*len(cts))
	for row, id := range ids {
		for _, cc := range ds.Sample(id).Clonotypes {
			data[row*len(cts)+col[cc.Clonotype]] = cc.Freq
		}
	}
	return
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

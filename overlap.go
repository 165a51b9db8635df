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
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"strings"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type overlapcmd struct{}

type pairOverlap struct {
	A          string
	B          string
	Shared     int
	Similarity float64
}

// bhattacharyya returns Σ sqrt(fa·fb) over the union of two clonotype
// frequency distributions, plus the number of shared clonotypes.
// Clonotypes missing on either side contribute zero, so only the
// intersection is visited.
func bhattacharyya(fa, fb map[Clonotype]float64) (float64, int) {
	if len(fb) < len(fa) {
		fa, fb = fb, fa
	}
	var sum float64
	var shared int
	for ct, a := range fa {
		if b, ok := fb[ct]; ok {
			sum += math.Sqrt(a * b)
			shared++
		}
	}
	return sum, shared
}

// computeOverlap computes the similarity of every requested unordered
// pair, one bounded-parallel task per pair, then mirrors the results
// into a symmetric matrix with 1 on the diagonal. pairs == nil means
// all pairs from the dataset. Cells for pairs that were not requested
// stay NaN. Pair errors (unknown or self-referential samples) are
// all collected before returning.
func computeOverlap(ds *Dataset, pairs [][2]string, maxWorkers int) (*labeledMatrix, []pairOverlap, error) {
	ids := ds.SampleIDs()
	idx := map[string]int{}
	for i, id := range ids {
		idx[id] = i
	}
	// read-only broadcast: per-sample frequency maps are built once,
	// before any worker starts
	freqs := make([]map[Clonotype]float64, len(ids))
	for i, id := range ids {
		freqs[i] = ds.Sample(id).freqByClonotype()
	}
	if pairs == nil {
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				pairs = append(pairs, [2]string{ids[i], ids[j]})
			}
		}
	}
	results := make([]pairOverlap, len(pairs))
	throttle := throttle{Max: maxWorkers}
	for pi, pair := range pairs {
		pi, pair := pi, pair
		throttle.Acquire()
		go func() {
			defer throttle.Release()
			i, oki := idx[pair[0]]
			j, okj := idx[pair[1]]
			if !oki {
				throttle.Report(fmt.Errorf("pair %s,%s: %w: %q", pair[0], pair[1], ErrUnknownSample, pair[0]))
				return
			}
			if !okj {
				throttle.Report(fmt.Errorf("pair %s,%s: %w: %q", pair[0], pair[1], ErrUnknownSample, pair[1]))
				return
			}
			if i == j {
				throttle.Report(fmt.Errorf("pair %s,%s: self-overlap is fixed at 1, not computed", pair[0], pair[1]))
				return
			}
			sim, shared := bhattacharyya(freqs[i], freqs[j])
			results[pi] = pairOverlap{A: pair[0], B: pair[1], Shared: shared, Similarity: sim}
		}()
	}
	err := throttle.Wait()
	if err != nil {
		return nil, nil, err
	}
	m := mat.NewDense(len(ids), len(ids), nil)
	for i := range ids {
		for j := range ids {
			if i == j {
				m.Set(i, j, 1)
			} else {
				m.Set(i, j, math.NaN())
			}
		}
	}
	for _, res := range results {
		i, j := idx[res.A], idx[res.B]
		m.Set(i, j, res.Similarity)
		m.Set(j, i, res.Similarity)
	}
	return &labeledMatrix{rowNames: ids, colNames: ids, m: m}, results, nil
}

type pairRow struct {
	A string `csv:"sample.a"`
	B string `csv:"sample.b"`
}

func readPairList(fnm string) ([][2]string, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rows []pairRow
	err = gocsv.Unmarshal(f, &rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	pairs := make([][2]string, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, [2]string{row.A, row.B})
	}
	return pairs, nil
}

func (cmd *overlapcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file` (gob dataset)")
	outputFilename := flags.String("o", "-", "output `file` (similarity matrix TSV)")
	pairsFilename := flags.String("pairs", "", "compute only the pairs listed in `file` (tab-separated: sample.a, sample.b)")
	longFilename := flags.String("output-pairs", "", "write long-form per-pair table to `file`")
	npyFilename := flags.String("output-npy", "", "mirror the similarity matrix to `file` (.npy)")
	maxWorkers := flags.Int("workers", runtime.NumCPU(), "maximum number of concurrent pair computations")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *maxWorkers < 1 {
		fmt.Fprintln(stderr, "-workers must be a positive number")
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

	var pairs [][2]string
	if *pairsFilename != "" {
		pairs, err = readPairList(*pairsFilename)
		if err != nil {
			return 1
		}
	}
	log.Printf("computing overlap: %d samples", ds.Len())
	ovl, results, err := computeOverlap(ds, pairs, *maxWorkers)
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
	err = ovl.WriteTSV(output, "sample.id")
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *longFilename != "" {
		err = writePairTSV(*longFilename, results)
		if err != nil {
			return 1
		}
	}
	if *npyFilename != "" {
		err = writeMatrixNpy(*npyFilename, ovl)
		if err != nil {
			return 1
		}
	}
	return 0
}

func writePairTSV(fnm string, results []pairOverlap) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	fmt.Fprintln(bufw, "sample.a\tsample.b\tshared\tsimilarity")
	for _, res := range results {
		fmt.Fprintf(bufw, "%s\t%s\t%d\t%s\n", res.A, res.B, res.Shared, formatValue(res.Similarity))
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}

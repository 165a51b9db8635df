// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

type importer struct {
	sampleSheetFile string
	outputFile      string
	maxWorkers      int
}

// clonotypeRow is one line of a VDJtools-style clonotype table. Only
// count, cdr3aa, and v are required; the other columns are accepted
// and ignored so unmodified aligner exports can be fed in directly.
type clonotypeRow struct {
	Count  int64   `csv:"count"`
	Freq   float64 `csv:"freq"`
	CDR3NT string  `csv:"cdr3nt"`
	CDR3AA string  `csv:"cdr3aa"`
	V      string  `csv:"v"`
	D      string  `csv:"d"`
	J      string  `csv:"j"`
}

func (cmd *importer) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cmd.sampleSheetFile, "samples", "", "sample sheet `file` (tab-separated: sample.id, file, age)")
	flags.StringVar(&cmd.outputFile, "o", "-", "output `file`")
	flags.IntVar(&cmd.maxWorkers, "workers", runtime.NumCPU(), "maximum number of sample tables to load concurrently")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if cmd.sampleSheetFile == "" && flags.NArg() == 0 {
		fmt.Fprintln(stderr, "cannot import without a -samples sheet or clonotype table arguments")
		return 2
	} else if cmd.maxWorkers < 1 {
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

	var sheet []sampleSheetEntry
	if cmd.sampleSheetFile != "" {
		sheet, err = readSampleSheet(cmd.sampleSheetFile)
		if err != nil {
			return 1
		}
	}
	seen := map[string]bool{}
	for _, ent := range sheet {
		seen[ent.Sample] = true
	}
	for _, fnm := range flags.Args() {
		label := sampleLabel(fnm)
		if seen[label] {
			err = fmt.Errorf("%w: %q", ErrDuplicateSample, label)
			return 1
		}
		seen[label] = true
		sheet = append(sheet, sampleSheetEntry{Sample: label, File: fnm})
	}

	reps := make([]*Repertoire, len(sheet))
	throttle := throttle{Max: cmd.maxWorkers}
	for i, ent := range sheet {
		i, ent := i, ent
		throttle.Acquire()
		go func() {
			defer throttle.Release()
			log.Printf("%s starting", ent.File)
			rep, err := loadSampleTable(ent)
			if err != nil {
				throttle.Report(fmt.Errorf("sample %q: %w", ent.Sample, err))
				return
			}
			log.Printf("%s done: %d clonotypes, %d reads", ent.File, len(rep.Clonotypes), rep.Reads)
			reps[i] = rep
		}()
	}
	err = throttle.Wait()
	if err != nil {
		return 1
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].Sample < reps[j].Sample })

	var output io.WriteCloser
	if cmd.outputFile == "-" {
		output = nopCloser{stdout}
	} else {
		output, err = os.OpenFile(cmd.outputFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
		if err != nil {
			return 1
		}
		defer output.Close()
	}
	bufw := bufio.NewWriter(output)
	var w io.Writer = bufw
	var zw *pgzip.Writer
	if strings.HasSuffix(cmd.outputFile, ".gz") {
		zw = pgzip.NewWriter(bufw)
		w = zw
	}
	err = encodeDataset(w, reps)
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
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

// loadSampleTable reads one clonotype table, normalizes segment
// names, collapses rows that share (v, cdr3aa), and recomputes
// frequencies from the aggregated read counts. The stored digest
// covers the file bytes as found on disk.
func loadSampleTable(ent sampleSheetEntry) (*Repertoire, error) {
	buf, err := os.ReadFile(ent.File)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSample, err)
	}
	rep := &Repertoire{
		Sample:     ent.Sample,
		SourceFile: ent.File,
		Blake2b:    blake2b.Sum256(buf),
		Age:        ent.Age,
	}
	var rdr io.Reader = bytes.NewReader(buf)
	if strings.HasSuffix(ent.File, ".gz") {
		zr, err := pgzip.NewReader(rdr)
		if err != nil {
			return nil, fmt.Errorf("%s: gzip: %w", ent.File, err)
		}
		defer zr.Close()
		rdr = zr
	}
	var rows []clonotypeRow
	err = gocsv.Unmarshal(rdr, &rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", ent.File, ErrMalformedRow, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: %w", ent.File, ErrMissingSample)
	}
	agg := map[Clonotype]int64{}
	for i, row := range rows {
		v := normalizeSegment(row.V)
		if v == "" || row.CDR3AA == "" {
			return nil, fmt.Errorf("%s row %d: %w: need both v and cdr3aa", ent.File, i+1, ErrMalformedRow)
		}
		if row.Count < 1 {
			return nil, fmt.Errorf("%s row %d: %w: count %d", ent.File, i+1, ErrMalformedRow, row.Count)
		}
		agg[Clonotype{VGene: v, CDR3AA: row.CDR3AA}] += row.Count
		rep.Reads += row.Count
	}
	rep.Clonotypes = make([]ClonotypeCount, 0, len(agg))
	for ct, reads := range agg {
		rep.Clonotypes = append(rep.Clonotypes, ClonotypeCount{
			Clonotype: ct,
			Reads:     reads,
			Freq:      float64(reads) / float64(rep.Reads),
		})
	}
	sort.Slice(rep.Clonotypes, func(i, j int) bool {
		ci, cj := rep.Clonotypes[i], rep.Clonotypes[j]
		if ci.Reads != cj.Reads {
			return ci.Reads > cj.Reads
		}
		if ci.VGene != cj.VGene {
			return ci.VGene < cj.VGene
		}
		return ci.CDR3AA < cj.CDR3AA
	})
	return rep, nil
}

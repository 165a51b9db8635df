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

	log "github.com/sirupsen/logrus"
)

type annotatecmd struct {
	refFilter refFilter
}

// Annotation is one row of the fan-out join between a sample
// clonotype and a matching reference entry. A clonotype matching
// several reference rows appears once per match.
type Annotation struct {
	Sample string
	Clonotype
	Freq           float64
	Epitope        string
	AntigenSpecies string
	HLA            string
	Score          int
}

// annotateDataset inner-joins every sample's clonotypes against the
// (already filtered) reference on exact CDR3 amino acid match.
// Clonotypes with no match produce no rows; an empty reference
// produces an empty result, not an error.
func annotateDataset(ds *Dataset, refs []ReferenceEntry) []Annotation {
	byCDR3 := map[string][]int{}
	for i, ref := range refs {
		byCDR3[ref.CDR3] = append(byCDR3[ref.CDR3], i)
	}
	var anns []Annotation
	for _, rep := range ds.Repertoires() {
		for _, cc := range rep.Clonotypes {
			for _, ri := range byCDR3[cc.CDR3AA] {
				ref := refs[ri]
				anns = append(anns, Annotation{
					Sample:         rep.Sample,
					Clonotype:      cc.Clonotype,
					Freq:           cc.Freq,
					Epitope:        ref.Epitope,
					AntigenSpecies: ref.AntigenSpecies,
					HLA:            hlaGroup(ref.MHCA),
					Score:          ref.Score,
				})
			}
		}
	}
	return anns
}

// aggregateAnnotations sums annotated frequency per (sample, group)
// where group is derived from each row by key. A clonotype counts
// once per group even when several reference rows of that group match
// it, so a sample's total annotated mass never exceeds 1.
func aggregateAnnotations(anns []Annotation, key func(Annotation) string) map[string]map[string]float64 {
	type groupedClonotype struct {
		sample string
		group  string
		ct     Clonotype
	}
	seen := map[groupedClonotype]bool{}
	out := map[string]map[string]float64{}
	for _, ann := range anns {
		k := key(ann)
		if k == "" {
			continue
		}
		gc := groupedClonotype{ann.Sample, k, ann.Clonotype}
		if seen[gc] {
			continue
		}
		seen[gc] = true
		m := out[ann.Sample]
		if m == nil {
			m = map[string]float64{}
			out[ann.Sample] = m
		}
		m[k] += ann.Freq
	}
	return out
}

func (cmd *annotatecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file` (gob dataset)")
	outputFilename := flags.String("o", "-", "output `file` (annotation rows TSV)")
	refFilename := flags.String("vdjdb", "", "VDJdb-style reference table `file` (required)")
	speciesFilename := flags.String("output-species", "", "write per-sample antigen species frequency table to `file`")
	hlaFilename := flags.String("output-hla", "", "write per-sample HLA allele group frequency table to `file`")
	cmd.refFilter.Flags(flags)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if *refFilename == "" {
		fmt.Fprintln(stderr, "cannot annotate without -vdjdb argument")
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

	refs, err := loadReference(*refFilename)
	if err != nil {
		return 1
	}
	filtered := cmd.refFilter.Apply(refs)
	log.Printf("reference: %d rows, %d after filtering", len(refs), len(filtered))

	anns := annotateDataset(ds, filtered)
	log.Printf("annotated: %d rows", len(anns))

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
	err = writeAnnotationTSV(output, anns)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}

	if *speciesFilename != "" {
		agg := aggregateAnnotations(anns, func(ann Annotation) string { return ann.AntigenSpecies })
		err = writeAggregateTSV(*speciesFilename, "antigen.species", agg)
		if err != nil {
			return 1
		}
	}
	if *hlaFilename != "" {
		agg := aggregateAnnotations(anns, func(ann Annotation) string { return ann.HLA })
		err = writeAggregateTSV(*hlaFilename, "hla", agg)
		if err != nil {
			return 1
		}
	}
	return 0
}

func writeAnnotationTSV(w io.Writer, anns []Annotation) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprintln(bufw, "sample.id\tv\tcdr3aa\tfreq\tantigen.epitope\tantigen.species\thla\tvdjdb.score")
	for _, ann := range anns {
		fmt.Fprintf(bufw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			ann.Sample, ann.VGene, ann.CDR3AA, formatValue(ann.Freq),
			ann.Epitope, ann.AntigenSpecies, ann.HLA, ann.Score)
	}
	return bufw.Flush()
}

func writeAggregateTSV(fnm, keyName string, agg map[string]map[string]float64) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	samples := make([]string, 0, len(agg))
	for sample := range agg {
		samples = append(samples, sample)
	}
	sort.Strings(samples)
	bufw := bufio.NewWriter(f)
	fmt.Fprintf(bufw, "sample.id\t%s\tfreq\n", keyName)
	for _, sample := range samples {
		keys := make([]string, 0, len(agg[sample]))
		for k := range agg[sample] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(bufw, "%s\t%s\t%s\n", sample, k, formatValue(agg[sample][k]))
		}
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}

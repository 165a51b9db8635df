// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
)

func init() {
	// Every tabular input here (clonotype tables, sample sheets,
	// VDJdb) is tab-separated.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		r := csv.NewReader(in)
		r.Comma = '\t'
		r.LazyQuotes = true
		return r
	})
}

type sampleSheetEntry struct {
	Sample string   `csv:"sample.id"`
	File   string   `csv:"file"`
	// omitempty keeps Age nil (rather than zero) when the age
	// column is blank or absent.
	Age *float64 `csv:"age,omitempty"`
}

// readSampleSheet loads a tab-separated sample sheet with columns
// sample.id, file, and optionally age. Relative file paths are
// resolved against the sheet's own directory.
func readSampleSheet(fnm string) ([]sampleSheetEntry, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var sheet []sampleSheetEntry
	err = gocsv.Unmarshal(f, &sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	if len(sheet) == 0 {
		return nil, fmt.Errorf("%s: %w", fnm, ErrMissingSample)
	}
	dir := filepath.Dir(fnm)
	seen := map[string]bool{}
	for i := range sheet {
		ent := &sheet[i]
		if ent.Sample == "" || ent.File == "" {
			return nil, fmt.Errorf("%s row %d: need both sample.id and file", fnm, i+1)
		}
		if seen[ent.Sample] {
			return nil, fmt.Errorf("%w: %q in %s", ErrDuplicateSample, ent.Sample, fnm)
		}
		seen[ent.Sample] = true
		if !filepath.IsAbs(ent.File) {
			ent.File = filepath.Join(dir, ent.File)
		}
	}
	return sheet, nil
}

// sampleLabel turns a clonotype table filename into a sample ID for
// runs without a sample sheet.
func sampleLabel(fnm string) string {
	base := filepath.Base(fnm)
	for _, ext := range []string{".gz", ".txt", ".tsv"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

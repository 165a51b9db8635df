// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"flag"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"
)

// ReferenceEntry is one row of a VDJdb-style reference table: a
// receptor sequence with known antigen specificity. Column names
// match the VDJdb full-database export.
type ReferenceEntry struct {
	Gene           string `csv:"gene"`
	CDR3           string `csv:"cdr3"`
	Species        string `csv:"species"`
	MHCA           string `csv:"mhc.a"`
	MHCClass       string `csv:"mhc.class"`
	Epitope        string `csv:"antigen.epitope"`
	AntigenSpecies string `csv:"antigen.species"`
	Score          int    `csv:"vdjdb.score"`
}

func loadReference(fnm string) ([]ReferenceEntry, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var refs []ReferenceEntry
	err = gocsv.Unmarshal(f, &refs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return refs, nil
}

// refFilter selects the reference slice to annotate against. An
// empty field matches everything.
type refFilter struct {
	Species  string
	Gene     string
	MHCClass string
	MinScore int
}

func (f *refFilter) Flags(flags *flag.FlagSet) {
	flags.StringVar(&f.Species, "species", "HomoSapiens", "keep reference rows for `species`")
	flags.StringVar(&f.Gene, "gene", "TRB", "keep reference rows for receptor `gene`")
	flags.StringVar(&f.MHCClass, "mhc-class", "MHCI", "keep reference rows for MHC `class`")
	flags.IntVar(&f.MinScore, "min-score", 0, "minimum vdjdb confidence `score`")
}

func (f *refFilter) Apply(refs []ReferenceEntry) []ReferenceEntry {
	var out []ReferenceEntry
	for _, ref := range refs {
		if f.Species != "" && ref.Species != f.Species {
			continue
		}
		if f.Gene != "" && ref.Gene != f.Gene {
			continue
		}
		if f.MHCClass != "" && ref.MHCClass != f.MHCClass {
			continue
		}
		if ref.Score < f.MinScore {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// hlaGroup reduces an encoded HLA allele to its allele group:
// "HLA-A*02:01" becomes "HLA-A*02". Multi-allele cells keep only the
// first entry.
func hlaGroup(mhca string) string {
	if i := strings.IndexByte(mhca, ','); i >= 0 {
		mhca = mhca[:i]
	}
	if i := strings.IndexByte(mhca, ':'); i >= 0 {
		mhca = mhca[:i]
	}
	return strings.TrimSpace(mhca)
}

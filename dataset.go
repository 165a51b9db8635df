// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/klauspost/pgzip"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrMissingSample    = errors.New("sample table missing or empty")
	ErrMalformedRow     = errors.New("malformed clonotype row")
	ErrUnknownSample    = errors.New("unknown sample")
	ErrDuplicateSample  = errors.New("duplicate sample")
	ErrEmptyUsageMatrix = errors.New("no V segment shared by all samples")
)

// Clonotype is the identity of a T/B cell receptor rearrangement as
// used throughout the pipeline: the (normalized) V segment plus the
// CDR3 amino acid sequence. Nucleotide-level variants of the same
// amino acid clonotype are collapsed at import time.
type Clonotype struct {
	VGene  string
	CDR3AA string
}

func (ct Clonotype) String() string {
	return ct.VGene + ":" + ct.CDR3AA
}

// ClonotypeCount is one row of an imported repertoire: a clonotype,
// its aggregated read count, and its frequency within the sample.
type ClonotypeCount struct {
	Clonotype
	Reads int64
	Freq  float64
}

// Repertoire is one sample's complete clonotype table.
//
// Clonotypes are unique by (VGene, CDR3AA), sorted by descending
// Reads (ties broken by VGene, then CDR3AA), and their Freq values
// sum to 1 (within float64 accumulation error). Blake2b is the digest
// of the source file as stored on disk, i.e. before decompression.
type Repertoire struct {
	Sample     string
	SourceFile string
	Blake2b    [blake2b.Size256]byte
	Age        *float64
	Reads      int64
	Clonotypes []ClonotypeCount
}

func (rep *Repertoire) freqByClonotype() map[Clonotype]float64 {
	m := make(map[Clonotype]float64, len(rep.Clonotypes))
	for _, cc := range rep.Clonotypes {
		m[cc.Clonotype] = cc.Freq
	}
	return m
}

// segmentClonotypes returns the number of distinct clonotypes per V
// segment.
func (rep *Repertoire) segmentClonotypes() map[string]int {
	m := map[string]int{}
	for _, cc := range rep.Clonotypes {
		m[cc.VGene]++
	}
	return m
}

// DatasetEntry is the unit of the gob stream written by `repseq
// import` and read back by every analysis command. A stream is a
// sequence of entries; typically one repertoire per entry so writers
// can emit samples as they finish loading.
type DatasetEntry struct {
	Repertoires []Repertoire
}

// Dataset is an in-memory collection of repertoires indexed by sample
// ID. It is append-only while loading and read-only afterwards;
// analysis code must not modify the repertoires it hands out.
type Dataset struct {
	repertoires []*Repertoire
	bySample    map[string]*Repertoire
}

func (ds *Dataset) add(rep *Repertoire) error {
	if ds.bySample == nil {
		ds.bySample = map[string]*Repertoire{}
	}
	if _, ok := ds.bySample[rep.Sample]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateSample, rep.Sample)
	}
	ds.bySample[rep.Sample] = rep
	ds.repertoires = append(ds.repertoires, rep)
	return nil
}

func (ds *Dataset) Len() int {
	return len(ds.repertoires)
}

// SampleIDs returns the sample IDs in lexicographic order, which is
// the canonical row/column order of every matrix and table the
// pipeline emits.
func (ds *Dataset) SampleIDs() []string {
	ids := make([]string, 0, len(ds.repertoires))
	for _, rep := range ds.repertoires {
		ids = append(ids, rep.Sample)
	}
	sort.Strings(ids)
	return ids
}

// Repertoires returns the repertoires sorted by sample ID.
func (ds *Dataset) Repertoires() []*Repertoire {
	reps := make([]*Repertoire, len(ds.repertoires))
	copy(reps, ds.repertoires)
	sort.Slice(reps, func(i, j int) bool { return reps[i].Sample < reps[j].Sample })
	return reps
}

// Sample returns the repertoire with the given sample ID, or nil.
func (ds *Dataset) Sample(id string) *Repertoire {
	return ds.bySample[id]
}

// DecodeDataset reads a gob dataset stream from rdr (decompressing
// first if gz is true) and calls cb on each entry.
func DecodeDataset(rdr io.Reader, gz bool, cb func(*DatasetEntry) error) error {
	if gz {
		zr, err := pgzip.NewReader(bufio.NewReaderSize(rdr, 1<<20))
		if err != nil {
			return err
		}
		defer zr.Close()
		rdr = zr
	}
	dec := gob.NewDecoder(bufio.NewReaderSize(rdr, 1<<20))
	for {
		var ent DatasetEntry
		err := dec.Decode(&ent)
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		err = cb(&ent)
		if err != nil {
			return err
		}
	}
}

// LoadDataset decodes an entire dataset stream, refusing duplicate
// sample IDs.
func LoadDataset(rdr io.Reader, gz bool) (*Dataset, error) {
	ds := &Dataset{}
	err := DecodeDataset(rdr, gz, func(ent *DatasetEntry) error {
		for i := range ent.Repertoires {
			rep := ent.Repertoires[i]
			if err := ds.add(&rep); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds, nil
}

func encodeDataset(w io.Writer, reps []*Repertoire) error {
	enc := gob.NewEncoder(w)
	for _, rep := range reps {
		err := enc.Encode(DatasetEntry{Repertoires: []Repertoire{*rep}})
		if err != nil {
			return err
		}
	}
	return nil
}

// zopen opens the named file, transparently decompressing it if its
// name ends in ".gz". "-" means stdin is handled by callers, not
// here.
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := os.Open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	rdr, err := pgzip.NewReader(bufio.NewReaderSize(f, 4*1024*1024))
	if err != nil {
		f.Close()
		return nil, err
	}
	return gzipr{rdr, f}, nil
}

// gzipr wraps a ReadCloser and a Closer, presenting a single Close()
// method that closes both wrapped objects.
type gzipr struct {
	io.ReadCloser
	io.Closer
}

func (gr gzipr) Close() error {
	e1 := gr.ReadCloser.Close()
	e2 := gr.Closer.Close()
	if e1 != nil {
		return e1
	}
	return e2
}

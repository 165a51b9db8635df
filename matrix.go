// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/gonum/mat"
)

// labeledMatrix couples a dense matrix with its row and column names
// so writers can emit TSV or numpy output without re-deriving the
// order.
type labeledMatrix struct {
	rowNames []string
	colNames []string
	m        *mat.Dense
}

// formatValue renders a value for TSV output. NaN means "undefined
// for this input" and is written as NA so R and pandas pick it up
// natively.
func formatValue(x float64) string {
	if math.IsNaN(x) {
		return "NA"
	}
	return strconv.FormatFloat(x, 'g', -1, 64)
}

// WriteTSV writes the matrix with a header row; corner labels the
// first column (the row-name column).
func (lm *labeledMatrix) WriteTSV(w io.Writer, corner string) error {
	bufw := bufio.NewWriter(w)
	fmt.Fprint(bufw, corner)
	for _, c := range lm.colNames {
		fmt.Fprintf(bufw, "\t%s", c)
	}
	fmt.Fprintln(bufw)
	for i, r := range lm.rowNames {
		fmt.Fprint(bufw, r)
		for j := range lm.colNames {
			fmt.Fprintf(bufw, "\t%s", formatValue(lm.m.At(i, j)))
		}
		fmt.Fprintln(bufw)
	}
	return bufw.Flush()
}

// writeMatrixNpy mirrors the matrix to a .npy file (row-major
// float64, NaN preserved). Axis labels travel in the TSV rendering of
// the same matrix, or in writeLabels files.
func writeMatrixNpy(fnm string, lm *labeledMatrix) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return err
	}
	rows, cols := lm.m.Dims()
	npw.Shape = []int{rows, cols}
	out := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out = append(out, lm.m.At(i, j))
		}
	}
	err = npw.WriteFloat64(out)
	if err != nil {
		return err
	}
	err = bufw.Flush()
	if err != nil {
		return err
	}
	return f.Close()
}

// writeLabels writes one name per line as "index,name" so numpy
// consumers can map axes back to samples or segments.
func writeLabels(fnm string, names []string) error {
	f, err := os.OpenFile(fnm, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	defer f.Close()
	for i, name := range names {
		_, err = fmt.Fprintf(f, "%d,%q\n", i, name)
		if err != nil {
			return err
		}
	}
	return f.Close()
}

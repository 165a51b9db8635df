// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

var chisqSrc = rand.NewSource(rand.Uint64())

// pvalue returns the chi-squared test p-value for the null hypothesis
// that two samples draw their clonotypes from the same V segment
// distribution. x and y are distinct-clonotype counts per segment;
// segments lists the categories to compare (segments missing from a
// map count as zero).
func pvalue(x, y map[string]int, segments []string) float64 {
	var xtot, ytot float64
	for _, seg := range segments {
		xtot += float64(x[seg])
		ytot += float64(y[seg])
	}
	if xtot == 0 || ytot == 0 || len(segments) < 2 {
		return 1
	}
	var sum float64
	tot := xtot + ytot
	for _, seg := range segments {
		obs := [2]float64{float64(x[seg]), float64(y[seg])}
		pooled := (obs[0] + obs[1]) / tot
		exp := [2]float64{xtot * pooled, ytot * pooled}
		for i := range exp {
			if exp[i] == 0 {
				continue
			}
			d := obs[i] - exp[i]
			sum += d * d / exp[i]
		}
	}
	chisquared := distuv.ChiSquared{K: float64(len(segments) - 1), Src: chisqSrc}
	return 1 - chisquared.CDF(sum)
}

// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import "strings"

// normalizeSegment reduces an aligner's segment call to the gene
// level: "TRBV12-3*01(932.1), TRBV12-4*01" becomes "TRBV12-3". Only
// the best-scoring assignment (the first of a comma-separated list)
// is kept; allele suffixes and alignment scores are stripped.
func normalizeSegment(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '*'); i >= 0 {
		v = v[:i]
	}
	if i := strings.IndexByte(v, '('); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

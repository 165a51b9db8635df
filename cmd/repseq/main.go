// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"github.com/antigenomics/repseq"
)

func main() {
	repseq.Main()
}

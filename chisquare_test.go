// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"fmt"

	"gopkg.in/check.v1"
)

type pvalueSuite struct{}

var _ = check.Suite(&pvalueSuite{})

func (s *pvalueSuite) TestPvalue(c *check.C) {
	segments := []string{"TRBV5-1", "TRBV19", "TRBV28"}
	x := map[string]int{"TRBV5-1": 10, "TRBV19": 10, "TRBV28": 10}
	y := map[string]int{"TRBV5-1": 10, "TRBV19": 10, "TRBV28": 40}
	c.Check(fmt.Sprintf("%.7f", pvalue(x, y, segments)), check.Equals, "0.0111090")
	// symmetric
	c.Check(fmt.Sprintf("%.7f", pvalue(y, x, segments)), check.Equals, "0.0111090")
}

func (s *pvalueSuite) TestPvalueDegenerate(c *check.C) {
	segments := []string{"TRBV5-1", "TRBV19"}
	x := map[string]int{"TRBV5-1": 7, "TRBV19": 3}
	c.Check(pvalue(x, x, segments), check.Equals, 1.0)
	// segments outside the shared list are ignored
	c.Check(pvalue(x, map[string]int{"TRBV5-1": 7, "TRBV19": 3, "TRBV9": 99}, segments), check.Equals, 1.0)
	c.Check(pvalue(x, map[string]int{}, segments), check.Equals, 1.0)
	c.Check(pvalue(x, x, segments[:1]), check.Equals, 1.0)
	c.Check(pvalue(nil, nil, nil), check.Equals, 1.0)
}

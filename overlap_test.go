// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gopkg.in/check.v1"
)

type overlapSuite struct{}

var _ = check.Suite(&overlapSuite{})

func (s *overlapSuite) TestBhattacharyya(c *check.C) {
	ct := Clonotype{"TRBV19", "CASSIRSSYEQYF"}
	fa := map[Clonotype]float64{ct: 1.0 / 3, {"TRBV27", "CASSLGQAYEQYF"}: 2.0 / 3}
	fb := map[Clonotype]float64{ct: 1.0}
	sim, shared := bhattacharyya(fa, fb)
	c.Check(shared, check.Equals, 1)
	c.Check(fmt.Sprintf("%.7f", sim), check.Equals, "0.5773503")

	// symmetric in its arguments
	sim2, shared2 := bhattacharyya(fb, fa)
	c.Check(sim2, check.Equals, sim)
	c.Check(shared2, check.Equals, shared)

	// identical distributions overlap completely
	even := map[Clonotype]float64{
		{"TRBV19", "CASSIRSSYEQYF"}: 0.5,
		{"TRBV27", "CASSLGQAYEQYF"}: 0.5,
	}
	sim, shared = bhattacharyya(even, even)
	c.Check(sim, check.Equals, 1.0)
	c.Check(shared, check.Equals, 2)

	sim, shared = bhattacharyya(fb, map[Clonotype]float64{{"TRBV9", "CASSGGTEAFF"}: 1.0})
	c.Check(sim, check.Equals, 0.0)
	c.Check(shared, check.Equals, 0)
}

func overlapTestDataset(c *check.C) *Dataset {
	return testDataset(c,
		&Repertoire{Sample: "A", Reads: 4, Clonotypes: []ClonotypeCount{
			{Clonotype{"TRBV19", "CASSIRSSYEQYF"}, 2, 0.5},
			{Clonotype{"TRBV27", "CASSLGQAYEQYF"}, 1, 0.25},
			{Clonotype{"TRBV28", "CASSPDRGRYNEQFF"}, 1, 0.25},
		}},
		&Repertoire{Sample: "B", Reads: 4, Clonotypes: []ClonotypeCount{
			{Clonotype{"TRBV19", "CASSIRSSYEQYF"}, 2, 0.5},
			{Clonotype{"TRBV27", "CASSLGQAYEQYF"}, 2, 0.5},
		}},
		&Repertoire{Sample: "C", Reads: 1, Clonotypes: []ClonotypeCount{
			{Clonotype{"TRBV9", "CASSGGTEAFF"}, 1, 1},
		}},
	)
}

func (s *overlapSuite) TestComputeOverlapAllPairs(c *check.C) {
	ovl, results, err := computeOverlap(overlapTestDataset(c), nil, 2)
	c.Assert(err, check.IsNil)
	c.Check(ovl.rowNames, check.DeepEquals, []string{"A", "B", "C"})
	c.Assert(results, check.HasLen, 3)
	c.Check(results[0].A, check.Equals, "A")
	c.Check(results[0].B, check.Equals, "B")
	c.Check(results[0].Shared, check.Equals, 2)
	c.Check(fmt.Sprintf("%.7f", results[0].Similarity), check.Equals, "0.8535534")
	c.Check(results[1], check.DeepEquals, pairOverlap{A: "A", B: "C"})
	c.Check(results[2], check.DeepEquals, pairOverlap{A: "B", B: "C"})

	for i := 0; i < 3; i++ {
		c.Check(ovl.m.At(i, i), check.Equals, 1.0)
		for j := 0; j < 3; j++ {
			c.Check(ovl.m.At(i, j), check.Equals, ovl.m.At(j, i))
		}
	}
	c.Check(ovl.m.At(0, 1), check.Equals, results[0].Similarity)
	c.Check(ovl.m.At(0, 2), check.Equals, 0.0)
}

func (s *overlapSuite) TestComputeOverlapPairList(c *check.C) {
	ovl, results, err := computeOverlap(overlapTestDataset(c), [][2]string{{"C", "A"}}, 1)
	c.Assert(err, check.IsNil)
	c.Assert(results, check.HasLen, 1)
	c.Check(results[0], check.DeepEquals, pairOverlap{A: "C", B: "A"})
	// unrequested pairs stay NaN
	c.Check(math.IsNaN(ovl.m.At(0, 1)), check.Equals, true)
	c.Check(ovl.m.At(0, 2), check.Equals, 0.0)
	c.Check(ovl.m.At(2, 0), check.Equals, 0.0)
	c.Check(ovl.m.At(1, 1), check.Equals, 1.0)
}

func (s *overlapSuite) TestComputeOverlapBadPairs(c *check.C) {
	_, _, err := computeOverlap(overlapTestDataset(c), [][2]string{
		{"A", "Z"},
		{"Y", "B"},
		{"A", "A"},
		{"A", "B"},
	}, 4)
	c.Assert(err, check.NotNil)
	c.Check(errors.Is(err, ErrUnknownSample), check.Equals, true)
	msg := err.Error()
	c.Check(strings.Contains(msg, `pair A,Z: unknown sample: "Z"`), check.Equals, true)
	c.Check(strings.Contains(msg, `pair Y,B: unknown sample: "Y"`), check.Equals, true)
	c.Check(strings.Contains(msg, "pair A,A: self-overlap is fixed at 1, not computed"), check.Equals, true)
}

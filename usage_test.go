package repseq

import (
	"fmt"

	"gopkg.in/check.v1"
)

type usageSuite struct{}

var _ = check.Suite(&usageSuite{})

func testDataset(c *check.C, reps ...*Repertoire) *Dataset {
	ds := &Dataset{}
	for _, rep := range reps {
		c.Assert(ds.add(rep), check.IsNil)
	}
	return ds
}

// repWithSegments builds a repertoire with the given number of
// distinct clonotypes per V segment. Read counts are irrelevant to
// usage, so every clonotype gets one read.
func repWithSegments(sample string, segs map[string]int) *Repertoire {
	rep := &Repertoire{Sample: sample}
	for seg, n := range segs {
		for i := 0; i < n; i++ {
			rep.Clonotypes = append(rep.Clonotypes, ClonotypeCount{
				Clonotype: Clonotype{VGene: seg, CDR3AA: fmt.Sprintf("CASS%sG%dEQYF", seg, i+1)},
				Reads:     1,
			})
			rep.Reads++
		}
	}
	return rep
}

func (s *usageSuite) TestComputeUsage(c *check.C) {
	ds := testDataset(c,
		repWithSegments("P1", map[string]int{"TRBV12-3": 1, "TRBV19": 2, "TRBV27": 1}),
		repWithSegments("P2", map[string]int{"TRBV12-3": 1, "TRBV19": 1, "TRBV28": 1}),
		repWithSegments("P3", map[string]int{"TRBV12-3": 2, "TRBV27": 1}),
	)
	usage, counts, err := computeUsage(ds)
	c.Assert(err, check.IsNil)
	// TRBV19, TRBV27, and TRBV28 are each missing from some sample
	c.Check(usage.colNames, check.DeepEquals, []string{"TRBV12-3"})
	c.Check(usage.rowNames, check.DeepEquals, []string{"P1", "P2", "P3"})
	c.Check(usage.m.At(0, 0), check.Equals, 0.3)   // (1+0.5)/(4+1)
	c.Check(usage.m.At(1, 0), check.Equals, 0.375) // (1+0.5)/(3+1)
	c.Check(usage.m.At(2, 0), check.Equals, 0.625) // (2+0.5)/(3+1)
	c.Check(counts["P1"], check.DeepEquals, map[string]int{"TRBV12-3": 1, "TRBV19": 2, "TRBV27": 1})
}

func (s *usageSuite) TestComputeUsageDisjoint(c *check.C) {
	ds := testDataset(c,
		repWithSegments("A", map[string]int{"TRBV19": 1}),
		repWithSegments("B", map[string]int{"TRBV27": 1}),
	)
	_, _, err := computeUsage(ds)
	c.Check(err, check.Equals, ErrEmptyUsageMatrix)
}

func (s *usageSuite) TestUsageCorrelation(c *check.C) {
	// B's segment counts are proportional to A's, so the smoothed
	// profiles are affinely related and correlate perfectly
	ds := testDataset(c,
		repWithSegments("A", map[string]int{"TRBV19": 2, "TRBV27": 4, "TRBV28": 6}),
		repWithSegments("B", map[string]int{"TRBV19": 1, "TRBV27": 2, "TRBV28": 3}),
	)
	usage, counts, err := computeUsage(ds)
	c.Assert(err, check.IsNil)
	c.Check(usage.colNames, check.DeepEquals, []string{"TRBV19", "TRBV27", "TRBV28"})

	cor := usageCorrelation(usage)
	c.Check(cor.m.At(0, 0), check.Equals, 1.0)
	c.Check(cor.m.At(1, 1), check.Equals, 1.0)
	c.Check(fmt.Sprintf("%.7f", cor.m.At(0, 1)), check.Equals, "1.0000000")
	c.Check(cor.m.At(0, 1), check.Equals, cor.m.At(1, 0))

	pv := usagePValues(usage, counts)
	c.Check(pv.m.At(0, 0), check.Equals, 1.0)
	c.Check(pv.m.At(0, 1), check.Equals, 1.0)
	c.Check(pv.m.At(0, 1), check.Equals, pv.m.At(1, 0))
}

func (s *usageSuite) TestUsagePValuesSkewed(c *check.C) {
	ds := testDataset(c,
		repWithSegments("A", map[string]int{"TRBV5-1": 10, "TRBV19": 10, "TRBV28": 10}),
		repWithSegments("B", map[string]int{"TRBV5-1": 10, "TRBV19": 10, "TRBV28": 40}),
	)
	usage, counts, err := computeUsage(ds)
	c.Assert(err, check.IsNil)
	pv := usagePValues(usage, counts)
	c.Check(fmt.Sprintf("%.7f", pv.m.At(0, 1)), check.Equals, "0.0111090")
}

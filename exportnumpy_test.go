package repseq

import (
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type exportNumpySuite struct{}

var _ = check.Suite(&exportNumpySuite{})

func (s *exportNumpySuite) TestExportNumpy(c *check.C) {
	tmpdir := c.MkDir()

	exited := (&importer{}).RunCommand("import", []string{
		"-samples", "testdata/samples.tsv",
		"-o", tmpdir + "/ds.gob",
	}, nil, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	exited = (&exportNumpy{}).RunCommand("export-numpy", []string{
		"-i", tmpdir + "/ds.gob",
		"-o", tmpdir + "/freqs.npy",
		"-output-samples", tmpdir + "/samples.csv",
		"-output-clonotypes", tmpdir + "/clonotypes.csv",
	}, nil, os.Stderr, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	f, err := os.Open(tmpdir + "/freqs.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{3, 6})
	vals, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	// columns are the clonotype union sorted by (v, cdr3aa); cells
	// are zero where a sample lacks the clonotype
	c.Check(vals, check.DeepEquals, []float64{
		3.0 / 7.0, 0, 1.0 / 7.0, 2.0 / 7.0, 1.0 / 7.0, 0,
		0, 0.5, 0, 0.25, 0, 0.25,
		0.2, 0.6, 0, 0, 0.2, 0,
	})

	labels, err := os.ReadFile(tmpdir + "/samples.csv")
	c.Assert(err, check.IsNil)
	c.Check(string(labels), check.Equals, "0,\"P1\"\n1,\"P2\"\n2,\"P3\"\n")

	labels, err = os.ReadFile(tmpdir + "/clonotypes.csv")
	c.Assert(err, check.IsNil)
	c.Check(strings.HasPrefix(string(labels), "0,\"TRBV12-3:CASSLAPGATNEKLFF\"\n1,\"TRBV12-3:CASSLGETQYF\"\n"), check.Equals, true)
	c.Check(strings.Count(string(labels), "\n"), check.Equals, 6)
}

func (s *exportNumpySuite) TestFreqs2Array(c *check.C) {
	ds := testDataset(c,
		&Repertoire{Sample: "B", Reads: 2, Clonotypes: []ClonotypeCount{
			{Clonotype{"TRBV19", "CASSIRSSYEQYF"}, 2, 1},
		}},
		&Repertoire{Sample: "A", Reads: 4, Clonotypes: []ClonotypeCount{
			{Clonotype{"TRBV27", "CASSLGQAYEQYF"}, 3, 0.75},
			{Clonotype{"TRBV19", "CASSIRSSYEQYF"}, 1, 0.25},
		}},
	)
	data, ids, keys := freqs2array(ds)
	// rows follow sample ID order even when samples were added out
	// of order
	c.Check(ids, check.DeepEquals, []string{"A", "B"})
	c.Check(keys, check.DeepEquals, []string{"TRBV19:CASSIRSSYEQYF", "TRBV27:CASSLGQAYEQYF"})
	c.Check(data, check.DeepEquals, []float64{0.25, 0.75, 1, 0})
}

package repseq

import (
	"bytes"
	"os"
	"strings"

	"gopkg.in/check.v1"
)

type plotSuite struct{}

var _ = check.Suite(&plotSuite{})

func (s *plotSuite) TestPlotSVGs(c *check.C) {
	tmpdir := c.MkDir()
	dsfile := tmpdir + "/ds.gob"
	code := (&importer{}).RunCommand("repseq import", []string{"-samples", "testdata/samples.tsv", "-o", dsfile}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	outdir := tmpdir + "/plots"
	code = (&plotcmd{}).RunCommand("repseq plot", []string{"-i", dsfile, "-output-dir", outdir, "-vdjdb", "testdata/vdjdb-slice.tsv"}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Check(code, check.Equals, 0)
	for _, fnm := range []string{"diversity.svg", "shannon.svg", "usage.svg", "overlap.svg", "species.svg"} {
		buf, err := os.ReadFile(outdir + "/" + fnm)
		c.Assert(err, check.IsNil, check.Commentf("%s", fnm))
		c.Check(strings.Contains(string(buf), "<svg"), check.Equals, true, check.Commentf("%s", fnm))
	}
}

func (s *plotSuite) TestPlotWithoutReference(c *check.C) {
	tmpdir := c.MkDir()
	dsfile := tmpdir + "/ds.gob"
	code := (&importer{}).RunCommand("repseq import", []string{"-samples", "testdata/samples.tsv", "-o", dsfile}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(code, check.Equals, 0)

	outdir := tmpdir + "/plots"
	code = (&plotcmd{}).RunCommand("repseq plot", []string{"-i", dsfile, "-output-dir", outdir}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Check(code, check.Equals, 0)
	for _, fnm := range []string{"diversity.svg", "shannon.svg", "usage.svg", "overlap.svg"} {
		fi, err := os.Stat(outdir + "/" + fnm)
		c.Assert(err, check.IsNil, check.Commentf("%s", fnm))
		c.Check(fi.Size() > 0, check.Equals, true)
	}
	_, err := os.Stat(outdir + "/species.svg")
	c.Check(os.IsNotExist(err), check.Equals, true)
}

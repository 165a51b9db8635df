// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"flag"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

type plotcmd struct {
	refFilter refFilter
}

func (cmd *plotcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	inputFilename := flags.String("i", "-", "input `file`")
	outputDir := flags.String("output-dir", ".", "output `directory` for svg files")
	vdjdbFilename := flags.String("vdjdb", "", "reference `file` (tsv) for the antigen species plot")
	maxWorkers := flags.Int("workers", runtime.NumCPU(), "number of worker goroutines for overlap computation")
	cmd.refFilter.Flags(flags)
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warning, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	}

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	var input io.ReadCloser
	if *inputFilename == "-" {
		input = io.NopCloser(stdin)
	} else {
		input, err = os.Open(*inputFilename)
		if err != nil {
			return 1
		}
		defer input.Close()
	}
	log.Print("reading")
	ds, err := LoadDataset(input, strings.HasSuffix(*inputFilename, ".gz"))
	if err != nil {
		return 1
	}
	err = input.Close()
	if err != nil {
		return 1
	}

	err = os.MkdirAll(*outputDir, 0777)
	if err != nil {
		return 1
	}

	var divs []sampleDiversity
	for _, rep := range ds.Repertoires() {
		divs = append(divs, diversityOf(rep))
	}
	log.Print("plotting diversity")
	err = plotDiversityBars(divs, filepath.Join(*outputDir, "diversity.svg"))
	if err != nil {
		return 1
	}
	err = plotShannonBars(divs, filepath.Join(*outputDir, "shannon.svg"))
	if err != nil {
		return 1
	}

	log.Print("plotting segment usage")
	usage, _, err := computeUsage(ds)
	if err != nil {
		return 1
	}
	cor := usageCorrelation(usage)
	err = plotUsageHeat(usage, leafOrder(distanceFrom(cor.m, 1)), filepath.Join(*outputDir, "usage.svg"))
	if err != nil {
		return 1
	}

	log.Print("plotting overlap")
	sim, _, err := computeOverlap(ds, nil, *maxWorkers)
	if err != nil {
		return 1
	}
	err = plotOverlapHeat(sim, leafOrder(distanceFrom(sim.m, 1)), filepath.Join(*outputDir, "overlap.svg"))
	if err != nil {
		return 1
	}

	if *vdjdbFilename != "" {
		log.Print("plotting annotation mass")
		refs, err2 := loadReference(*vdjdbFilename)
		if err2 != nil {
			err = err2
			return 1
		}
		anns := annotateDataset(ds, cmd.refFilter.Apply(refs))
		agg := aggregateAnnotations(anns, func(ann Annotation) string { return ann.AntigenSpecies })
		err = plotSpeciesBars(agg, ds.SampleIDs(), filepath.Join(*outputDir, "species.svg"))
		if err != nil {
			return 1
		}
	}
	log.Print("done")
	return 0
}

// distanceFrom converts a symmetric similarity matrix into a distance
// matrix (scale minus similarity). Cells that were never computed
// (NaN) become the maximum distance so clustering pushes the rows
// apart instead of failing.
func distanceFrom(sim *mat.Dense, scale float64) *mat.Dense {
	n, _ := sim.Dims()
	dist := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := sim.At(i, j)
			if math.IsNaN(v) {
				dist.Set(i, j, scale)
			} else {
				dist.Set(i, j, scale-v)
			}
		}
	}
	return dist
}

// labelTicks places one tick per row or column, labeled with the
// corresponding name.
type labelTicks []string

func (lt labelTicks) Ticks(min, max float64) []plot.Tick {
	var ticks []plot.Tick
	for i, name := range lt {
		if float64(i) < min || float64(i) > max {
			continue
		}
		ticks = append(ticks, plot.Tick{Value: float64(i), Label: name})
	}
	return ticks
}

// matrixGrid adapts a dense matrix to the heat map interface, with
// rows (and optionally columns) drawn in permuted order.
type matrixGrid struct {
	m        *mat.Dense
	rowOrder []int
	colOrder []int
}

func (g matrixGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g matrixGrid) Z(c, r int) float64 {
	if g.rowOrder != nil {
		r = g.rowOrder[r]
	}
	if g.colOrder != nil {
		c = g.colOrder[c]
	}
	return g.m.At(r, c)
}

func (g matrixGrid) X(c int) float64 { return float64(c) }
func (g matrixGrid) Y(r int) float64 { return float64(r) }

func permuted(names []string, order []int) []string {
	if order == nil {
		return names
	}
	out := make([]string, len(names))
	for i, j := range order {
		out[i] = names[j]
	}
	return out
}

func plotDiversityBars(divs []sampleDiversity, fnm string) error {
	p := plot.New()
	p.Title.Text = "Richness"
	p.Y.Label.Text = "clonotypes"
	w := vg.Points(12)

	observed := make(plotter.Values, len(divs))
	chao1 := make(plotter.Values, len(divs))
	names := make([]string, len(divs))
	for i, div := range divs {
		observed[i] = float64(div.Observed)
		// an undefined estimate plots as a zero-height bar
		if !math.IsNaN(div.Chao1) {
			chao1[i] = div.Chao1
		}
		names[i] = div.Sample
	}

	barsObs, err := plotter.NewBarChart(observed, w)
	if err != nil {
		return err
	}
	barsObs.LineStyle.Width = vg.Length(0)
	barsObs.Color = plotutil.Color(0)
	barsObs.Offset = -w / 2
	barsEst, err := plotter.NewBarChart(chao1, w)
	if err != nil {
		return err
	}
	barsEst.LineStyle.Width = vg.Length(0)
	barsEst.Color = plotutil.Color(1)
	barsEst.Offset = w / 2

	p.Add(barsObs, barsEst)
	p.Legend.Add("observed", barsObs)
	p.Legend.Add("chao1", barsEst)
	p.Legend.Top = true
	p.NominalX(names...)
	return p.Save(8*vg.Inch, 4*vg.Inch, fnm)
}

func plotShannonBars(divs []sampleDiversity, fnm string) error {
	p := plot.New()
	p.Title.Text = "Normalized Shannon entropy"
	p.Y.Label.Text = "H / ln(observed)"
	p.Y.Min, p.Y.Max = 0, 1

	vals := make(plotter.Values, len(divs))
	names := make([]string, len(divs))
	for i, div := range divs {
		if !math.IsNaN(div.Shannon) {
			vals[i] = div.Shannon
		}
		names[i] = div.Sample
	}
	bars, err := plotter.NewBarChart(vals, vg.Points(16))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = plotutil.Color(2)
	p.Add(bars)
	p.NominalX(names...)
	return p.Save(8*vg.Inch, 4*vg.Inch, fnm)
}

func plotUsageHeat(usage *labeledMatrix, order []int, fnm string) error {
	p := plot.New()
	p.Title.Text = "V segment usage"
	hm := plotter.NewHeatMap(matrixGrid{m: usage.m, rowOrder: order}, palette.Heat(12, 1))
	hm.Min = 0
	hm.NaN = color.Transparent
	p.Add(hm)
	p.X.Tick.Marker = labelTicks(usage.colNames)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Tick.Marker = labelTicks(permuted(usage.rowNames, order))
	return p.Save(8*vg.Inch, 6*vg.Inch, fnm)
}

func plotOverlapHeat(sim *labeledMatrix, order []int, fnm string) error {
	p := plot.New()
	p.Title.Text = "Repertoire overlap (Bhattacharyya)"
	hm := plotter.NewHeatMap(matrixGrid{m: sim.m, rowOrder: order, colOrder: order}, palette.Heat(12, 1))
	hm.Min, hm.Max = 0, 1
	hm.NaN = color.Transparent
	p.Add(hm)
	names := permuted(sim.rowNames, order)
	p.X.Tick.Marker = labelTicks(names)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.Y.Tick.Marker = labelTicks(names)
	return p.Save(6*vg.Inch, 6*vg.Inch, fnm)
}

func plotSpeciesBars(agg map[string]map[string]float64, samples []string, fnm string) error {
	total := map[string]float64{}
	for _, bySpecies := range agg {
		for species, mass := range bySpecies {
			total[species] += mass
		}
	}
	species := make([]string, 0, len(total))
	for s := range total {
		species = append(species, s)
	}
	sort.Slice(species, func(i, j int) bool {
		if total[species[i]] != total[species[j]] {
			return total[species[i]] > total[species[j]]
		}
		return species[i] < species[j]
	})

	p := plot.New()
	p.Title.Text = "Annotated frequency by antigen species"
	p.Y.Label.Text = "summed clonotype frequency"
	w := vg.Points(16)
	var prev *plotter.BarChart
	for i, s := range species {
		vals := make(plotter.Values, len(samples))
		for j, sample := range samples {
			vals[j] = agg[sample][s]
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return err
		}
		bars.LineStyle.Width = vg.Length(0)
		bars.Color = plotutil.Color(i)
		if prev != nil {
			bars.StackOn(prev)
		}
		p.Add(bars)
		p.Legend.Add(s, bars)
		prev = bars
	}
	p.Legend.Top = true
	p.NominalX(samples...)
	return p.Save(8*vg.Inch, 4*vg.Inch, fnm)
}

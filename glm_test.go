// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"fmt"
	"math"

	"gopkg.in/check.v1"
)

type glmSuite struct{}

var _ = check.Suite(&glmSuite{})

// noise sums to zero and is orthogonal to age, so the least-squares
// estimates recover the generating coefficients exactly.
var trendNoise = []float64{0.01, -0.02, 0.015, -0.01, 0.005, 0.005, -0.01, 0.015, -0.02, 0.01}

func (s *glmSuite) TestFitAgeTrend(c *check.C) {
	ages := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	index := make([]float64, len(ages))
	for i, age := range ages {
		index[i] = 2 + 0.05*age + trendNoise[i]
	}
	trend, err := fitAgeTrend(ages, index)
	c.Assert(err, check.IsNil)
	c.Check(trend.N, check.Equals, 10)
	c.Check(fmt.Sprintf("%.3f", trend.Intercept), check.Equals, "2.000")
	c.Check(fmt.Sprintf("%.3f", trend.Slope), check.Equals, "0.050")
	c.Check(trend.P < 0.01, check.Equals, true)
}

func (s *glmSuite) TestFitAgeTrendFlat(c *check.C) {
	ages := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	index := make([]float64, len(ages))
	for i := range ages {
		index[i] = 4.75 + trendNoise[i]
	}
	trend, err := fitAgeTrend(ages, index)
	c.Assert(err, check.IsNil)
	c.Check(fmt.Sprintf("%.3f", trend.Intercept), check.Equals, "4.750")
	c.Check(math.Abs(trend.Slope) < 1e-9, check.Equals, true)
	c.Check(trend.P > 0.5, check.Equals, true)
}

func (s *glmSuite) TestFitAgeTrendTooFewSamples(c *check.C) {
	_, err := fitAgeTrend([]float64{30, 40}, []float64{0.5, 0.6})
	c.Check(err, check.ErrorMatches, `cannot fit age trend with 2 usable samples.*`)
}

var benchAges, benchIndex = func() ([]float64, []float64) {
	ages := make([]float64, 10000)
	index := make([]float64, len(ages))
	for i := range ages {
		ages[i] = float64(20 + i%60)
		index[i] = 0.6 + 0.001*ages[i] + 0.01*math.Sin(float64(i))
	}
	return ages, index
}()

func (s *glmSuite) BenchmarkFitAgeTrend(c *check.C) {
	for i := 0; i < c.N; i++ {
		trend, err := fitAgeTrend(benchAges, benchIndex)
		c.Assert(err, check.IsNil)
		c.Check(trend.N, check.Equals, len(benchAges))
	}
}

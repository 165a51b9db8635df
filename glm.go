// Copyright (C) The RepSeq Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package repseq

import (
	"fmt"
	"io"
	"log"

	"github.com/kshedden/statmodel/glm"
	"github.com/kshedden/statmodel/statmodel"
	"gonum.org/v1/gonum/stat/distuv"
)

var glmConfig = &glm.Config{
	Family:         glm.NewFamily(glm.GaussianFamily),
	FitMethod:      "IRLS",
	ConcurrentIRLS: 1000,
	Log:            log.New(io.Discard, "", 0),
}

type ageTrend struct {
	N         int
	Intercept float64
	Slope     float64
	P         float64
}

// fitAgeTrend regresses a diversity index on sample age (Gaussian
// GLM) and compares the fit against an intercept-only null model.
// The returned p-value is from a likelihood ratio test with one
// degree of freedom.
func fitAgeTrend(ages, index []float64) (trend *ageTrend, err error) {
	if len(ages) != len(index) {
		panic("len(ages) != len(index)")
	}
	if len(ages) < 3 {
		return nil, fmt.Errorf("cannot fit age trend with %d usable samples (need at least 3)", len(ages))
	}
	defer func() {
		if recover() != nil {
			// typically "matrix singular or near-singular with condition number +Inf"
			trend, err = nil, fmt.Errorf("model fit failed (is there any variation in age?)")
		}
	}()

	outcome := make([]statmodel.Dtype, len(index))
	constants := make([]statmodel.Dtype, len(index))
	age := make([]statmodel.Dtype, len(ages))
	for i := range index {
		outcome[i] = index[i]
		constants[i] = 1
		age[i] = ages[i]
	}

	data := [][]statmodel.Dtype{outcome, constants, age}
	names := []string{"index", "icept", "age"}
	dataset := statmodel.NewDataset(data, names)
	model, err := glm.NewGLM(dataset, "index", names[1:], glmConfig)
	if err != nil {
		return nil, err
	}
	resultFull := model.Fit()
	logFull := resultFull.LogLike()
	params := resultFull.Params()

	dataset = statmodel.NewDataset(data[:2], names[:2])
	model, err = glm.NewGLM(dataset, "index", names[1:2], glmConfig)
	if err != nil {
		return nil, err
	}
	resultNull := model.Fit()
	logNull := resultNull.LogLike()

	dist := distuv.ChiSquared{K: 1}
	return &ageTrend{
		N:         len(ages),
		Intercept: params[0],
		Slope:     params[1],
		P:         dist.Survival(-2 * (logNull - logFull)),
	}, nil
}

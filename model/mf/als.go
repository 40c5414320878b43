// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mf

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/common/parallel"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/gorse-io/itemcf/model"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

type FitConfig struct {
	Jobs    int
	Verbose int
	// OnEpoch is called after every epoch with the number of finished epochs.
	OnEpoch func(int)
}

func NewFitConfig() *FitConfig {
	return &FitConfig{
		Jobs:    1,
		Verbose: 10,
	}
}

func (config *FitConfig) LoadDefaultIfNil() *FitConfig {
	if config == nil {
		return NewFitConfig()
	}
	return config
}

func (config *FitConfig) SetVerbose(verbose int) *FitConfig {
	config.Verbose = verbose
	return config
}

func (config *FitConfig) SetJobs(jobs int) *FitConfig {
	config.Jobs = jobs
	return config
}

type entry struct {
	index  int
	rating float64
}

// ALS is alternating least squares for explicit ratings. A rating is approximated
// by the inner product of a user factor and an item factor. Each half step solves
//
//	(Y_u^T Y_u + reg * n_u * I) x_u = Y_u^T r_u
//
// for every user (and symmetrically for every item), where n_u is the number of
// ratings of the user.
// Hyper-parameters:
//
//	NFactors   - The number of latent factors. Default is 10.
//	NEpochs    - The number of training epochs. Default is 10.
//	InitMean   - The mean of initial latent factors. Default is 0.
//	InitStdDev - The standard deviation of initial latent factors. Default is 0.1.
//	Reg        - The strength of regularization. Default is 0.1.
type ALS struct {
	model.BaseModel
	// Model parameters
	UserIndex  *dataset.Index
	ItemIndex  *dataset.Index
	UserFactor *mat.Dense // x_u
	ItemFactor *mat.Dense // y_i
	// Hyper parameters
	nFactors   int
	nEpochs    int
	reg        float64
	initMean   float64
	initStdDev float64
}

// NewALS creates a ALS model.
func NewALS(params model.Params) *ALS {
	als := new(ALS)
	als.SetParams(params)
	return als
}

// SetParams sets hyper-parameters for the ALS model.
func (als *ALS) SetParams(params model.Params) {
	als.BaseModel.SetParams(params)
	als.nFactors = als.Params.GetInt(model.NFactors, 10)
	als.nEpochs = als.Params.GetInt(model.NEpochs, 10)
	als.initMean = als.Params.GetFloat64(model.InitMean, 0)
	als.initStdDev = als.Params.GetFloat64(model.InitStdDev, 0.1)
	als.reg = als.Params.GetFloat64(model.Reg, 0.1)
}

// Invalid returns true if the model has not been fitted.
func (als *ALS) Invalid() bool {
	return als == nil ||
		als.UserIndex == nil ||
		als.ItemIndex == nil ||
		als.UserFactor == nil ||
		als.ItemFactor == nil
}

// Predict the rating of a user on an item. It returns false if either the user or
// the item was absent from the training set.
func (als *ALS) Predict(userId, itemId int) (float64, bool) {
	if als.Invalid() {
		return 0, false
	}
	userIndex, ok := als.UserIndex.Index(userId)
	if !ok {
		return 0, false
	}
	itemIndex, ok := als.ItemIndex.Index(itemId)
	if !ok {
		return 0, false
	}
	return als.internalPredict(userIndex, itemIndex), true
}

func (als *ALS) internalPredict(userIndex, itemIndex int) float64 {
	return mat.Dot(als.UserFactor.RowView(userIndex), als.ItemFactor.RowView(itemIndex))
}

// BatchPredict predicts every query in order. Queries with unknown ids are
// flagged as fallbacks with a prediction of 0.0.
func (als *ALS) BatchPredict(queries []dataset.Rating) []model.PredictionResult {
	results := make([]model.PredictionResult, len(queries))
	for i, q := range queries {
		predicted, ok := als.Predict(q.UserId, q.ItemId)
		results[i] = model.PredictionResult{
			UserId:    q.UserId,
			ItemId:    q.ItemId,
			Actual:    q.Value,
			Predicted: predicted,
			Fallback:  !ok,
		}
	}
	return results
}

// Fit the ALS model. It returns the root mean square error on the training set.
func (als *ALS) Fit(ctx context.Context, trainSet *dataset.Dataset, config *FitConfig) (float64, error) {
	config = config.LoadDefaultIfNil()
	if trainSet == nil || trainSet.Count() == 0 {
		return 0, errors.NotValidf("empty training set")
	}
	if als.nFactors < 1 {
		return 0, errors.NotValidf("number of factors %d", als.nFactors)
	}
	log.Logger().Info("fit als",
		zap.Int("train_set_size", trainSet.Count()),
		zap.String("params", als.GetParams().ToString()),
		zap.Int("n_jobs", config.Jobs))
	als.init(trainSet)
	userRatings, itemRatings := als.group(trainSet)
	// Create temporary matrices for every worker
	jobs := max(config.Jobs, 1)
	a := make([]*mat.SymDense, jobs)
	b := make([]*mat.VecDense, jobs)
	x := make([]*mat.VecDense, jobs)
	for i := 0; i < jobs; i++ {
		a[i] = mat.NewSymDense(als.nFactors, nil)
		b[i] = mat.NewVecDense(als.nFactors, nil)
		x[i] = mat.NewVecDense(als.nFactors, nil)
	}
	solve := func(dst, fixed *mat.Dense, ratings [][]entry) func(workerId, jobId int) error {
		return func(workerId, jobId int) error {
			a[workerId].Zero()
			b[workerId].Zero()
			for _, e := range ratings[jobId] {
				row := fixed.RowView(e.index)
				a[workerId].SymRankOne(a[workerId], 1, row)
				b[workerId].AddScaledVec(b[workerId], e.rating, row)
			}
			reg := als.reg * float64(len(ratings[jobId]))
			for k := 0; k < als.nFactors; k++ {
				a[workerId].SetSym(k, k, a[workerId].At(k, k)+reg)
			}
			var chol mat.Cholesky
			if ok := chol.Factorize(a[workerId]); !ok {
				return errors.Errorf("normal equation %d is not positive definite", jobId)
			}
			if err := chol.SolveVecTo(x[workerId], b[workerId]); err != nil {
				return errors.Trace(err)
			}
			dst.SetRow(jobId, x[workerId].RawVector().Data)
			return nil
		}
	}
	rmse := als.rmse(trainSet)
	log.Logger().Debug(fmt.Sprintf("fit als %v/%v", 0, als.nEpochs), zap.Float64("train_rmse", rmse))
	for ep := 1; ep <= als.nEpochs; ep++ {
		fitStart := time.Now()
		// Recompute all user factors with item factors fixed
		if err := parallel.Parallel(ctx, als.UserIndex.Len(), jobs, solve(als.UserFactor, als.ItemFactor, userRatings)); err != nil {
			return 0, errors.Trace(err)
		}
		// Recompute all item factors with user factors fixed
		if err := parallel.Parallel(ctx, als.ItemIndex.Len(), jobs, solve(als.ItemFactor, als.UserFactor, itemRatings)); err != nil {
			return 0, errors.Trace(err)
		}
		fitTime := time.Since(fitStart)
		if (config.Verbose > 0 && ep%config.Verbose == 0) || ep == als.nEpochs {
			rmse = als.rmse(trainSet)
			log.Logger().Debug(fmt.Sprintf("fit als %v/%v", ep, als.nEpochs),
				zap.String("fit_time", fitTime.String()),
				zap.Float64("train_rmse", rmse))
		}
		if config.OnEpoch != nil {
			config.OnEpoch(ep)
		}
	}
	if als.nEpochs == 0 {
		rmse = als.rmse(trainSet)
	}
	log.Logger().Info("fit als complete", zap.Float64("train_rmse", rmse))
	return rmse, nil
}

func (als *ALS) init(trainSet *dataset.Dataset) {
	als.UserIndex = trainSet.Users()
	als.ItemIndex = trainSet.Items()
	rng := als.GetRandomGenerator()
	als.UserFactor = mat.NewDense(als.UserIndex.Len(), als.nFactors,
		rng.NormalVector64(als.UserIndex.Len()*als.nFactors, als.initMean, als.initStdDev))
	als.ItemFactor = mat.NewDense(als.ItemIndex.Len(), als.nFactors,
		rng.NormalVector64(als.ItemIndex.Len()*als.nFactors, als.initMean, als.initStdDev))
}

func (als *ALS) group(trainSet *dataset.Dataset) (userRatings, itemRatings [][]entry) {
	userRatings = make([][]entry, als.UserIndex.Len())
	itemRatings = make([][]entry, als.ItemIndex.Len())
	for _, r := range trainSet.Ratings() {
		userIndex, _ := als.UserIndex.Index(r.UserId)
		itemIndex, _ := als.ItemIndex.Index(r.ItemId)
		userRatings[userIndex] = append(userRatings[userIndex], entry{index: itemIndex, rating: r.Value})
		itemRatings[itemIndex] = append(itemRatings[itemIndex], entry{index: userIndex, rating: r.Value})
	}
	return
}

func (als *ALS) rmse(trainSet *dataset.Dataset) float64 {
	sum := 0.0
	for _, r := range trainSet.Ratings() {
		userIndex, _ := als.UserIndex.Index(r.UserId)
		itemIndex, _ := als.ItemIndex.Index(r.ItemId)
		diff := als.internalPredict(userIndex, itemIndex) - r.Value
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(trainSet.Count()))
}

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

package model

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyEvaluationSet is returned when there is nothing to score.
const ErrEmptyEvaluationSet = errors.ConstError("empty evaluation set")

// PredictionResult pairs a held-out rating with its prediction.
type PredictionResult struct {
	UserId    int
	ItemId    int
	Actual    float64
	Predicted float64
	// Fallback is set when the prediction is a default value instead of a model output.
	Fallback bool
}

// RMSE is root mean square error.
func RMSE(results []PredictionResult) (float64, error) {
	if len(results) == 0 {
		return 0, errors.Trace(ErrEmptyEvaluationSet)
	}
	sum := 0.0
	for _, r := range results {
		sum += (r.Predicted - r.Actual) * (r.Predicted - r.Actual)
	}
	return math.Sqrt(sum / float64(len(results))), nil
}

// MAE is mean absolute error.
func MAE(results []PredictionResult) (float64, error) {
	if len(results) == 0 {
		return 0, errors.Trace(ErrEmptyEvaluationSet)
	}
	sum := 0.0
	for _, r := range results {
		sum += math.Abs(r.Predicted - r.Actual)
	}
	return sum / float64(len(results)), nil
}

// R2 is the coefficient of determination against the mean actual rating. It is
// NaN when all actual ratings are equal.
func R2(results []PredictionResult) (float64, error) {
	if len(results) == 0 {
		return 0, errors.Trace(ErrEmptyEvaluationSet)
	}
	actual := lo.Map(results, func(r PredictionResult, _ int) float64 { return r.Actual })
	predicted := lo.Map(results, func(r PredictionResult, _ int) float64 { return r.Predicted })
	if len(actual) == 1 || stat.Variance(actual, nil) == 0 {
		log.Logger().Warn("r2 is undefined for constant ratings", zap.Int("n_ratings", len(actual)))
		return math.NaN(), nil
	}
	return stat.RSquaredFrom(predicted, actual, nil), nil
}

// Score summarizes the accuracy of a predictor over a test set.
type Score struct {
	RMSE      float64
	MAE       float64
	R2        float64
	Count     int
	Fallbacks int
}

// Evaluate computes every metric over results.
func Evaluate(results []PredictionResult) (Score, error) {
	var (
		score Score
		err   error
	)
	if score.RMSE, err = RMSE(results); err != nil {
		return Score{}, errors.Trace(err)
	}
	if score.MAE, err = MAE(results); err != nil {
		return Score{}, errors.Trace(err)
	}
	if score.R2, err = R2(results); err != nil {
		return Score{}, errors.Trace(err)
	}
	score.Count = len(results)
	score.Fallbacks = lo.CountBy(results, func(r PredictionResult) bool { return r.Fallback })
	return score, nil
}

// ColdStartPolicy decides what happens to test ratings whose user or item is
// absent from the training set.
type ColdStartPolicy string

const (
	ColdStartExclude ColdStartPolicy = "exclude"
	ColdStartDefault ColdStartPolicy = "default"
)

// ColdStart applies one cold-start policy to every predictor under comparison.
type ColdStart struct {
	Policy        ColdStartPolicy
	DefaultRating float64
}

// Partition splits test ratings into warm ratings that predictors must score and
// cold ratings, using training membership only. Both keep test order.
func (c ColdStart) Partition(train *dataset.Dataset, test []dataset.Rating) (warm, cold []dataset.Rating) {
	users := mapset.NewThreadUnsafeSet(train.Users().Ids()...)
	items := mapset.NewThreadUnsafeSet(train.Items().Ids()...)
	for _, r := range test {
		if users.Contains(r.UserId) && items.Contains(r.ItemId) {
			warm = append(warm, r)
		} else {
			cold = append(cold, r)
		}
	}
	return
}

// Resolve returns the results standing in for cold ratings: none under the
// exclude policy, the default rating flagged as a fallback otherwise.
func (c ColdStart) Resolve(cold []dataset.Rating) []PredictionResult {
	if c.Policy != ColdStartDefault {
		return nil
	}
	return lo.Map(cold, func(r dataset.Rating, _ int) PredictionResult {
		return PredictionResult{
			UserId:    r.UserId,
			ItemId:    r.ItemId,
			Actual:    r.Value,
			Predicted: c.DefaultRating,
			Fallback:  true,
		}
	})
}

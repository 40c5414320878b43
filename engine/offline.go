// Copyright 2022 gorse Project Authors
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

package engine

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/gorse-io/itemcf/model"
	"github.com/gorse-io/itemcf/model/knn"
	"github.com/gorse-io/itemcf/model/mf"
	"github.com/gorse-io/itemcf/storage"
	"github.com/juju/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const (
	PredictorKNN = "item_knn"
	PredictorALS = "als"
)

// Row compares both predictors on one held-out rating.
type Row struct {
	UserId      int
	ItemId      int
	Actual      float64
	KNN         float64
	KNNFallback bool
	ALS         float64
	ALSFallback bool
}

// Report is the outcome of an offline run.
type Report struct {
	Summary   dataset.Summary
	TrainSize int
	TestSize  int
	// ColdStart is the number of test ratings whose user or item is absent from training.
	ColdStart  int
	Degenerate int
	KNN        model.Score
	// ALS is nil if the latent factor model is disabled.
	ALS  *model.Score
	Rows []Row
}

// Offline loads ratings, splits them, fits item-based collaborative filtering and
// ALS on the training set, and scores both on the same held-out ratings.
type Offline struct {
	Config *config.Config
	// Progress renders progress bars on stderr for the long running steps.
	Progress bool
}

func NewOffline(cfg *config.Config) *Offline {
	return &Offline{Config: cfg}
}

// Load ratings from the configured source.
func (o *Offline) Load(ctx context.Context) (*dataset.Dataset, error) {
	start := time.Now()
	source, err := storage.Open(o.Config.Dataset.Source, o.Config.Dataset.Table, o.Config.Dataset.CSVOptions())
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer source.Close()
	ratings, err := source.Load(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	data := dataset.NewDataset(ratings)
	summary := data.Summary()
	log.Logger().Info("load dataset complete",
		zap.String("source", log.RedactDBURL(o.Config.Dataset.Source)),
		zap.Int("n_ratings", summary.Count),
		zap.Int("n_users", summary.Users),
		zap.Int("n_items", summary.Items),
		zap.Float64("mean", summary.Mean),
		zap.Float64("std_dev", summary.StdDev),
		zap.Float64("density", summary.Density),
		zap.Duration("used_time", time.Since(start)))
	OfflineStepSecondsVec.WithLabelValues("load_dataset").Set(time.Since(start).Seconds())
	return data, nil
}

// Run loads ratings and evaluates both predictors.
func (o *Offline) Run(ctx context.Context) (*Report, error) {
	data, err := o.Load(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return o.Evaluate(ctx, data)
}

// Evaluate splits data and scores both predictors on the same held-out ratings.
func (o *Offline) Evaluate(ctx context.Context, data *dataset.Dataset) (*Report, error) {
	start := time.Now()
	report := &Report{Summary: data.Summary()}
	train, test, err := data.Split(o.Config.Split.TestRatio, o.Config.Split.Seed)
	if err != nil {
		return nil, errors.Trace(err)
	}
	report.TrainSize, report.TestSize = train.Count(), test.Count()
	coldStart := o.Config.Evaluate.GetColdStart()
	warm, cold := coldStart.Partition(train, test.Ratings())
	report.ColdStart = len(cold)
	RatingsTotalVec.WithLabelValues("train").Set(float64(train.Count()))
	RatingsTotalVec.WithLabelValues("test").Set(float64(test.Count()))
	RatingsTotalVec.WithLabelValues("cold_start").Set(float64(len(cold)))
	log.Logger().Info("split dataset",
		zap.Int("train_set_size", train.Count()),
		zap.Int("test_set_size", test.Count()),
		zap.Int("n_cold_start", len(cold)),
		zap.String("cold_start_policy", string(coldStart.Policy)))

	// item-based collaborative filtering
	stepStart := time.Now()
	knnConfig := o.Config.KNN.GetConfig()
	if o.Progress {
		bar := progressbar.Default(int64(train.Items().Len()), "similarity")
		defer bar.Close()
		knnConfig.OnProgress = func(n int) { _ = bar.Add(n) }
	}
	itemKNN, err := knn.Fit(ctx, train, knnConfig)
	if err != nil {
		return nil, errors.Trace(err)
	}
	report.Degenerate = itemKNN.Similarity().Degenerate()
	DegenerateSimilaritiesTotal.Set(float64(report.Degenerate))
	OfflineStepSecondsVec.WithLabelValues("fit_item_knn").Set(time.Since(stepStart).Seconds())
	stepStart = time.Now()
	knnResults, err := itemKNN.BatchPredict(ctx, warm)
	if err != nil {
		return nil, errors.Trace(err)
	}
	knnResults = append(knnResults, coldStart.Resolve(cold)...)
	if report.KNN, err = score(PredictorKNN, knnResults); err != nil {
		return nil, errors.Trace(err)
	}
	OfflineStepSecondsVec.WithLabelValues("predict_item_knn").Set(time.Since(stepStart).Seconds())

	// latent factor model
	var alsResults []model.PredictionResult
	if o.Config.ALS.Enable {
		stepStart = time.Now()
		als := mf.NewALS(o.Config.ALS.GetParams())
		fitConfig := o.Config.ALS.GetFitConfig()
		if o.Progress {
			bar := progressbar.Default(int64(o.Config.ALS.NEpochs), "als")
			defer bar.Close()
			fitConfig.OnEpoch = func(int) { _ = bar.Add(1) }
		}
		if _, err = als.Fit(ctx, train, fitConfig); err != nil {
			return nil, errors.Trace(err)
		}
		OfflineStepSecondsVec.WithLabelValues("fit_als").Set(time.Since(stepStart).Seconds())
		alsResults = append(als.BatchPredict(warm), coldStart.Resolve(cold)...)
		alsScore, err := score(PredictorALS, alsResults)
		if err != nil {
			return nil, errors.Trace(err)
		}
		report.ALS = &alsScore
	}

	report.Rows = make([]Row, len(knnResults))
	for i, r := range knnResults {
		report.Rows[i] = Row{
			UserId:      r.UserId,
			ItemId:      r.ItemId,
			Actual:      r.Actual,
			KNN:         r.Predicted,
			KNNFallback: r.Fallback,
		}
		if alsResults != nil {
			report.Rows[i].ALS = alsResults[i].Predicted
			report.Rows[i].ALSFallback = alsResults[i].Fallback
		}
	}
	OfflineTotalSeconds.Set(time.Since(start).Seconds())
	return report, nil
}

func score(predictor string, results []model.PredictionResult) (model.Score, error) {
	s, err := model.Evaluate(results)
	if err != nil {
		return model.Score{}, errors.Annotatef(err, "evaluate %s", predictor)
	}
	log.Logger().Info("evaluate "+predictor,
		zap.Float64("rmse", s.RMSE),
		zap.Float64("mae", s.MAE),
		zap.Float64("r2", s.R2),
		zap.Int("n_ratings", s.Count),
		zap.Int("n_fallbacks", s.Fallbacks))
	RMSEVec.WithLabelValues(predictor).Set(s.RMSE)
	MAEVec.WithLabelValues(predictor).Set(s.MAE)
	R2Vec.WithLabelValues(predictor).Set(s.R2)
	FallbacksTotalVec.WithLabelValues(predictor).Set(float64(s.Fallbacks))
	return s, nil
}

// WriteCSV writes the rows of a report as user,item,actual,item_knn,als.
func (r *Report) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"userId", "itemId", "rating", PredictorKNN, PredictorKNN + "_fallback", PredictorALS, PredictorALS + "_fallback"}); err != nil {
		return errors.Trace(err)
	}
	formatFloat := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, row := range r.Rows {
		record := []string{
			strconv.Itoa(row.UserId),
			strconv.Itoa(row.ItemId),
			formatFloat(row.Actual),
			formatFloat(row.KNN),
			strconv.FormatBool(row.KNNFallback),
			"",
			"",
		}
		if r.ALS != nil {
			record[5] = formatFloat(row.ALS)
			record[6] = strconv.FormatBool(row.ALSFallback)
		}
		if err := writer.Write(record); err != nil {
			return errors.Trace(err)
		}
	}
	writer.Flush()
	return errors.Trace(writer.Error())
}

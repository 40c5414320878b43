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
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/gorse-io/itemcf/model"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func newRatings() []dataset.Rating {
	var ratings []dataset.Rating
	for u := 1; u <= 30; u++ {
		for i := 1; i <= 12; i++ {
			if (u+i)%3 != 0 {
				ratings = append(ratings, dataset.Rating{UserId: u, ItemId: i, Value: float64(1 + (u*7+i*3)%5)})
			}
		}
	}
	return ratings
}

type OfflineTestSuite struct {
	suite.Suite
	config *config.Config
	data   *dataset.Dataset
}

func (suite *OfflineTestSuite) SetupSuite() {
	log.CloseLogger()
}

func (suite *OfflineTestSuite) SetupTest() {
	suite.config = config.GetDefaultConfig()
	suite.config.KNN.Jobs = 2
	suite.config.ALS.NFactors = 4
	suite.config.ALS.NEpochs = 5
	suite.config.ALS.Jobs = 2
	suite.data = dataset.NewDataset(newRatings())
}

func (suite *OfflineTestSuite) TestEvaluate() {
	report, err := NewOffline(suite.config).Evaluate(context.Background(), suite.data)
	suite.NoError(err)
	suite.Equal(suite.data.Count(), report.TrainSize+report.TestSize)
	suite.Equal(suite.data.Count(), report.Summary.Count)
	suite.Equal(report.TestSize-report.ColdStart, len(report.Rows))
	suite.Equal(len(report.Rows), report.KNN.Count)
	suite.False(math.IsNaN(report.KNN.RMSE))
	suite.NotNil(report.ALS)
	suite.Equal(len(report.Rows), report.ALS.Count)
	suite.False(math.IsNaN(report.ALS.RMSE))

	// metrics
	suite.Equal(float64(report.TrainSize), testutil.ToFloat64(RatingsTotalVec.WithLabelValues("train")))
	suite.Equal(float64(report.TestSize), testutil.ToFloat64(RatingsTotalVec.WithLabelValues("test")))
	suite.Equal(report.KNN.RMSE, testutil.ToFloat64(RMSEVec.WithLabelValues(PredictorKNN)))
	suite.Equal(report.ALS.MAE, testutil.ToFloat64(MAEVec.WithLabelValues(PredictorALS)))
	suite.Equal(float64(report.Degenerate), testutil.ToFloat64(DegenerateSimilaritiesTotal))
	suite.Greater(testutil.ToFloat64(OfflineTotalSeconds), 0.0)

	// both predictors are scored on the same ratings
	for _, row := range report.Rows {
		suite.True(suite.data.Users().Contains(row.UserId))
		suite.True(suite.data.Items().Contains(row.ItemId))
	}
}

func (suite *OfflineTestSuite) TestEvaluateDefaultRating() {
	suite.config.Evaluate.ColdStart = string(model.ColdStartDefault)
	suite.config.Evaluate.DefaultRating = 3
	report, err := NewOffline(suite.config).Evaluate(context.Background(), suite.data)
	suite.NoError(err)
	suite.Equal(report.TestSize, len(report.Rows))
	suite.GreaterOrEqual(report.KNN.Fallbacks, report.ColdStart)
	suite.GreaterOrEqual(report.ALS.Fallbacks, report.ColdStart)
}

func (suite *OfflineTestSuite) TestEvaluateWithoutALS() {
	suite.config.ALS.Enable = false
	report, err := NewOffline(suite.config).Evaluate(context.Background(), suite.data)
	suite.NoError(err)
	suite.Nil(report.ALS)

	var buf bytes.Buffer
	suite.NoError(report.WriteCSV(&buf))
	records, err := csv.NewReader(&buf).ReadAll()
	suite.NoError(err)
	suite.Equal(len(report.Rows)+1, len(records))
	suite.Equal([]string{"userId", "itemId", "rating", "item_knn", "item_knn_fallback", "als", "als_fallback"}, records[0])
	for _, record := range records[1:] {
		suite.Empty(record[5])
		suite.Empty(record[6])
	}
}

func (suite *OfflineTestSuite) TestEvaluateInvalidSplit() {
	suite.config.Split.TestRatio = 1
	_, err := NewOffline(suite.config).Evaluate(context.Background(), suite.data)
	suite.True(errors.Is(err, errors.NotValid))
}

func (suite *OfflineTestSuite) TestEvaluateAllColdStart() {
	// every user rated a single item, so every held-out rating is cold start
	var ratings []dataset.Rating
	for i := 0; i < 10; i++ {
		ratings = append(ratings, dataset.Rating{UserId: i, ItemId: i, Value: 1})
	}
	_, err := NewOffline(suite.config).Evaluate(context.Background(), dataset.NewDataset(ratings))
	suite.True(errors.Is(err, model.ErrEmptyEvaluationSet))
}

func (suite *OfflineTestSuite) TestEvaluateCanceled() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOffline(suite.config).Evaluate(ctx, suite.data)
	suite.ErrorIs(err, context.Canceled)
}

func (suite *OfflineTestSuite) TestRun() {
	var sb strings.Builder
	sb.WriteString("userId,movieId,rating\n")
	for _, r := range newRatings() {
		sb.WriteString(fmt.Sprintf("%d,%d,%v\n", r.UserId, r.ItemId, r.Value))
	}
	path := filepath.Join(suite.T().TempDir(), "ratings.csv")
	suite.NoError(os.WriteFile(path, []byte(sb.String()), 0644))
	suite.config.Dataset.Source = path
	report, err := NewOffline(suite.config).Run(context.Background())
	suite.NoError(err)
	expected, err := NewOffline(suite.config).Evaluate(context.Background(), suite.data)
	suite.NoError(err)
	suite.Equal(expected.Rows, report.Rows)
	suite.Equal(expected.KNN.RMSE, report.KNN.RMSE)
}

func (suite *OfflineTestSuite) TestRunMissingFile() {
	suite.config.Dataset.Source = filepath.Join(suite.T().TempDir(), "missing.csv")
	_, err := NewOffline(suite.config).Run(context.Background())
	suite.Error(err)
}

func TestOffline(t *testing.T) {
	suite.Run(t, new(OfflineTestSuite))
}

func TestWriteCSV(t *testing.T) {
	report := &Report{
		ALS: &model.Score{},
		Rows: []Row{
			{UserId: 1, ItemId: 2, Actual: 4, KNN: 3.5, ALS: 4.25},
			{UserId: 3, ItemId: 4, Actual: 1, KNN: 0, KNNFallback: true, ALS: 1.5},
		},
	}
	var buf bytes.Buffer
	assert.NoError(t, report.WriteCSV(&buf))
	assert.Equal(t, "userId,itemId,rating,item_knn,item_knn_fallback,als,als_fallback\n"+
		"1,2,4,3.5,false,4.25,false\n"+
		"3,4,1,0,true,1.5,false\n", buf.String())
}

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

package knn

import (
	"context"
	"time"

	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/common/parallel"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/gorse-io/itemcf/model"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Config of item-based collaborative filtering.
type Config struct {
	// Neighbors is the maximum number of neighbors used for a prediction.
	Neighbors int
	// Jobs is the number of goroutines.
	Jobs int
	// OnProgress is called with the number of finished similarity rows.
	OnProgress func(int)
}

func NewConfig() *Config {
	return &Config{
		Neighbors: 20,
		Jobs:      1,
	}
}

func (config *Config) LoadDefaultIfNil() *Config {
	if config == nil {
		return NewConfig()
	}
	return config
}

func (config *Config) SetNeighbors(n int) *Config {
	config.Neighbors = n
	return config
}

func (config *Config) SetJobs(nJobs int) *Config {
	config.Jobs = nJobs
	return config
}

// WeightedAverage predicts a rating as the similarity-weighted average of neighbor
// ratings. It returns (0.0, false) if there are no neighbors or the similarities
// sum to exactly zero.
func WeightedAverage(neighbors []Neighbor) (float64, bool) {
	var weighted, sum float64
	for _, neighbor := range neighbors {
		weighted += neighbor.Similarity * neighbor.Rating
		sum += neighbor.Similarity
	}
	if sum == 0 {
		return 0, false
	}
	return weighted / sum, true
}

// ItemKNN predicts ratings from the ratings a user gave to similar items.
type ItemKNN struct {
	matrix *UtilityMatrix
	table  *SimilarityTable
	ranker *NeighborRanker
	config *Config
}

// Fit builds the utility matrix and the similarity table of a training set.
func Fit(ctx context.Context, train *dataset.Dataset, config *Config) (*ItemKNN, error) {
	config = config.LoadDefaultIfNil()
	if config.Neighbors < 1 {
		return nil, errors.NotValidf("number of neighbors %d", config.Neighbors)
	}
	start := time.Now()
	matrix, err := NewUtilityMatrix(train)
	if err != nil {
		return nil, errors.Trace(err)
	}
	log.Logger().Info("build utility matrix",
		zap.Int("n_users", matrix.Users().Len()),
		zap.Int("n_items", matrix.Items().Len()),
		zap.Int("n_ratings", train.Count()))
	table, err := ComputeSimilarity(ctx, matrix, config)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if table.Degenerate() > 0 {
		log.Logger().Warn("similarity defaulted to zero for items without ratings",
			zap.Int("n_pairs", table.Degenerate()))
	}
	log.Logger().Info("fit item knn complete",
		zap.Int("n_pairs", table.Len()),
		zap.Duration("used_time", time.Since(start)))
	return &ItemKNN{
		matrix: matrix,
		table:  table,
		ranker: NewNeighborRanker(table, config.Neighbors),
		config: config,
	}, nil
}

func (knn *ItemKNN) Matrix() *UtilityMatrix {
	return knn.matrix
}

func (knn *ItemKNN) Similarity() *SimilarityTable {
	return knn.table
}

// Neighbors returns the neighbors used to predict the rating of a user on an item.
func (knn *ItemKNN) Neighbors(userId, itemId int) []Neighbor {
	return knn.ranker.Rank(itemId, knn.matrix.Rated(userId))
}

// Predict the rating of a user on an item. See WeightedAverage for the fallback.
func (knn *ItemKNN) Predict(userId, itemId int) (float64, bool) {
	return WeightedAverage(knn.Neighbors(userId, itemId))
}

// BatchPredict predicts every query in one grouped pass. Queries are grouped by
// user so the rated items of a user are looked up once, groups are processed in
// parallel, and results are returned in query order. Fallback predictions are
// flagged on the result.
func (knn *ItemKNN) BatchPredict(ctx context.Context, queries []dataset.Rating) ([]model.PredictionResult, error) {
	results := make([]model.PredictionResult, len(queries))
	groups := lo.GroupBy(lo.Range(len(queries)), func(i int) int { return queries[i].UserId })
	users := lo.Keys(groups)
	err := parallel.Parallel(ctx, len(users), knn.config.Jobs, func(_, jobId int) error {
		userId := users[jobId]
		rated := knn.matrix.Rated(userId)
		for _, i := range groups[userId] {
			predicted, ok := WeightedAverage(knn.ranker.Rank(queries[i].ItemId, rated))
			results[i] = model.PredictionResult{
				UserId:    userId,
				ItemId:    queries[i].ItemId,
				Actual:    queries[i].Value,
				Predicted: predicted,
				Fallback:  !ok,
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return results, nil
}

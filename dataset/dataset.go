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

package dataset

import (
	"math"
	"sort"

	"github.com/gorse-io/itemcf/base"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Rating is an explicit rating given by a user to an item.
type Rating struct {
	UserId int
	ItemId int
	Value  float64
}

// ValidateRating checks that the value of a rating is a number within [minRating, maxRating].
func ValidateRating(r Rating, minRating, maxRating float64) error {
	if math.IsNaN(r.Value) || r.Value < minRating || r.Value > maxRating {
		return errors.NotValidf("rating %v of user %d on item %d (expected [%v, %v])",
			r.Value, r.UserId, r.ItemId, minRating, maxRating)
	}
	return nil
}

// Dataset is an immutable collection of ratings with user and item indices.
type Dataset struct {
	ratings []Rating
	users   *Index
	items   *Index
}

// NewDataset creates a dataset. The dataset takes ownership of ratings.
func NewDataset(ratings []Rating) *Dataset {
	return &Dataset{
		ratings: ratings,
		users:   NewIndex(lo.Map(ratings, func(r Rating, _ int) int { return r.UserId })),
		items:   NewIndex(lo.Map(ratings, func(r Rating, _ int) int { return r.ItemId })),
	}
}

func (d *Dataset) Count() int {
	return len(d.ratings)
}

// Ratings returns all ratings in load order. The slice must not be modified.
func (d *Dataset) Ratings() []Rating {
	return d.ratings
}

func (d *Dataset) Users() *Index {
	return d.users
}

func (d *Dataset) Items() *Index {
	return d.items
}

// Split randomly partitions ratings into a training set and a test set holding
// floor(testRatio * Count()) ratings. The same seed always yields the same
// partition, and both partitions keep the load order of ratings.
func (d *Dataset) Split(testRatio float64, seed int64) (*Dataset, *Dataset, error) {
	if testRatio < 0 || testRatio >= 1 || math.IsNaN(testRatio) {
		return nil, nil, errors.NotValidf("test ratio %v (expected [0, 1))", testRatio)
	}
	rng := base.NewRandomGenerator(seed)
	perm := rng.Perm(len(d.ratings))
	numTest := int(float64(len(d.ratings)) * testRatio)
	testIndices := perm[:numTest]
	trainIndices := perm[numTest:]
	sort.Ints(testIndices)
	sort.Ints(trainIndices)
	pick := func(indices []int) []Rating {
		ratings := make([]Rating, len(indices))
		for i, j := range indices {
			ratings[i] = d.ratings[j]
		}
		return ratings
	}
	return NewDataset(pick(trainIndices)), NewDataset(pick(testIndices)), nil
}

// Summary describes the shape and value distribution of a dataset.
type Summary struct {
	Count  int
	Users  int
	Items  int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	// Density is the fraction of the user-item grid that is rated.
	Density float64
}

func (d *Dataset) Summary() Summary {
	s := Summary{
		Count: len(d.ratings),
		Users: d.users.Len(),
		Items: d.items.Len(),
	}
	if len(d.ratings) == 0 {
		return s
	}
	values := lo.Map(d.ratings, func(r Rating, _ int) float64 { return r.Value })
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	s.Min, s.Max = floats.Min(values), floats.Max(values)
	s.Density = float64(s.Count) / float64(s.Users) / float64(s.Items)
	return s
}

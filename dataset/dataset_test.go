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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-6

func newTestDataset(n int) *Dataset {
	ratings := make([]Rating, 0, n)
	for i := 0; i < n; i++ {
		ratings = append(ratings, Rating{UserId: i % 7, ItemId: i % 11, Value: float64(i % 5)})
	}
	return NewDataset(ratings)
}

func TestIndex(t *testing.T) {
	idx := NewIndex([]int{30, 10, 20, 10})
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, []int{10, 20, 30}, idx.Ids())
	i, ok := idx.Index(20)
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	assert.Equal(t, 30, idx.Id(2))
	_, ok = idx.Index(40)
	assert.False(t, ok)
	assert.True(t, idx.Contains(10))
	assert.False(t, idx.Contains(0))
}

func TestDataset(t *testing.T) {
	d := NewDataset([]Rating{
		{UserId: 2, ItemId: 5, Value: 4},
		{UserId: 1, ItemId: 5, Value: 2},
		{UserId: 1, ItemId: 3, Value: 3},
	})
	assert.Equal(t, 3, d.Count())
	assert.Equal(t, []int{1, 2}, d.Users().Ids())
	assert.Equal(t, []int{3, 5}, d.Items().Ids())

	s := d.Summary()
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 2, s.Users)
	assert.Equal(t, 2, s.Items)
	assert.InDelta(t, 3.0, s.Mean, epsilon)
	assert.InDelta(t, 1.0, s.StdDev, epsilon)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.InDelta(t, 0.75, s.Density, epsilon)

	assert.Equal(t, Summary{}, NewDataset(nil).Summary())
}

func TestDataset_Split(t *testing.T) {
	d := newTestDataset(100)
	train, test, err := d.Split(0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, 80, train.Count())
	assert.Equal(t, 20, test.Count())
	// partitions are disjoint and complete
	assert.ElementsMatch(t, d.Ratings(), append(lo.Clone(train.Ratings()), test.Ratings()...))
	// same seed, same partition
	train2, test2, err := d.Split(0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, train.Ratings(), train2.Ratings())
	assert.Equal(t, test.Ratings(), test2.Ratings())
	// different seed, different partition
	_, test3, err := d.Split(0.2, 1)
	require.NoError(t, err)
	assert.NotEqual(t, test.Ratings(), test3.Ratings())
	// invalid ratios
	_, _, err = d.Split(1, 0)
	assert.True(t, errors.Is(err, errors.NotValid))
	_, _, err = d.Split(-0.1, 0)
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestLoadCSV(t *testing.T) {
	text := "userId,movieId,rating,timestamp\n" +
		"1,31,2.5,1260759144\n" +
		"1,1029,3.0,1260759179\n" +
		"\n" +
		"7,31,0,1260759182\n"
	ratings, err := LoadCSV(strings.NewReader(text), DefaultCSVOptions())
	require.NoError(t, err)
	assert.Equal(t, []Rating{
		{UserId: 1, ItemId: 31, Value: 2.5},
		{UserId: 1, ItemId: 1029, Value: 3},
		{UserId: 7, ItemId: 31, Value: 0},
	}, ratings)

	// without header and timestamp
	opts := DefaultCSVOptions()
	opts.Header = false
	ratings, err = LoadCSV(strings.NewReader("1,2,3\n"), opts)
	require.NoError(t, err)
	assert.Equal(t, []Rating{{UserId: 1, ItemId: 2, Value: 3}}, ratings)

	// custom separator
	opts.Separator = '\t'
	ratings, err = LoadCSV(strings.NewReader("4\t5\t1.5\t0\n"), opts)
	require.NoError(t, err)
	assert.Equal(t, []Rating{{UserId: 4, ItemId: 5, Value: 1.5}}, ratings)
}

func TestLoadCSV_Invalid(t *testing.T) {
	opts := DefaultCSVOptions()
	opts.Header = false
	for _, text := range []string{
		"1,2\n",
		"a,2,3\n",
		"1,b,3\n",
		"1,2,c\n",
		"1,2,5.5\n",
		"1,2,-1\n",
		"1,2,NaN\n",
	} {
		_, err := LoadCSV(strings.NewReader(text), opts)
		assert.True(t, errors.Is(err, errors.NotValid), text)
		assert.ErrorContains(t, err, "line 1")
	}
	// blank lines still count
	_, err := LoadCSV(strings.NewReader("1,2,3\n\n1,3,9\n"), opts)
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "line 3")
}

func TestLoadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratings.csv")
	err := os.WriteFile(path, []byte("userId,movieId,rating,timestamp\n1,2,3,0\n1,3,9,0\n"), 0644)
	require.NoError(t, err)
	_, err = LoadCSVFile(path, DefaultCSVOptions())
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "line 3")

	_, err = LoadCSVFile(filepath.Join(t.TempDir(), "missing.csv"), DefaultCSVOptions())
	assert.Error(t, err)
}

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
	"math"
	"sort"

	"github.com/gorse-io/itemcf/common/parallel"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/floats"
)

// Cosine computes the cosine similarity between two rating vectors. Missing
// ratings are zeros, so no mean-centering is applied. The similarity is 0.0 if
// either vector has zero norm.
func Cosine(a, b []float64) float64 {
	return cosine(a, b, floats.Norm(a, 2), floats.Norm(b, 2))
}

func cosine(a, b []float64, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	score := floats.Dot(a, b) / (normA * normB)
	// rounding may push the score slightly out of range
	return math.Max(-1, math.Min(1, score))
}

// SimilarityEntry is the similarity of an ordered pair of distinct items.
type SimilarityEntry struct {
	ItemA int
	ItemB int
	Score float64
}

// SimilarityTable holds the similarity of every unordered pair of distinct items
// as a packed upper triangle. It is read-only once computed.
type SimilarityTable struct {
	items      *dataset.Index
	scores     []float64
	degenerate int
}

func newSimilarityTable(items *dataset.Index) *SimilarityTable {
	n := items.Len()
	return &SimilarityTable{
		items:  items,
		scores: make([]float64, n*(n-1)/2),
	}
}

// offset of the pair (i, j) where i < j.
func (t *SimilarityTable) offset(i, j int) int {
	n := t.items.Len()
	return i*(2*n-i-1)/2 + (j - i - 1)
}

func (t *SimilarityTable) Items() *dataset.Index {
	return t.items
}

// Get returns the similarity between two items. It returns false if the items are
// the same or either item is unknown.
func (t *SimilarityTable) Get(itemA, itemB int) (float64, bool) {
	i, ok := t.items.Index(itemA)
	if !ok {
		return 0, false
	}
	j, ok := t.items.Index(itemB)
	if !ok || i == j {
		return 0, false
	}
	if i > j {
		i, j = j, i
	}
	return t.scores[t.offset(i, j)], true
}

// Degenerate returns the number of pairs whose similarity was defaulted to 0.0
// because one of the items has an all-zero rating vector.
func (t *SimilarityTable) Degenerate() int {
	return t.degenerate
}

// Len returns the number of ordered pairs.
func (t *SimilarityTable) Len() int {
	return 2 * len(t.scores)
}

// Entries lists every ordered pair, sorted by (ItemA, ItemB).
func (t *SimilarityTable) Entries() []SimilarityEntry {
	n := t.items.Len()
	entries := make([]SimilarityEntry, 0, t.Len())
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			a, b := min(i, j), max(i, j)
			entries = append(entries, SimilarityEntry{
				ItemA: t.items.Id(i),
				ItemB: t.items.Id(j),
				Score: t.scores[t.offset(a, b)],
			})
		}
	}
	return entries
}

// Similar returns at most n items most similar to itemId, best first.
func (t *SimilarityTable) Similar(itemId, n int) []SimilarityEntry {
	if _, ok := t.items.Index(itemId); !ok {
		return nil
	}
	entries := make([]SimilarityEntry, 0, t.items.Len()-1)
	for _, other := range t.items.Ids() {
		if score, ok := t.Get(itemId, other); ok {
			entries = append(entries, SimilarityEntry{ItemA: itemId, ItemB: other, Score: score})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// ComputeSimilarity computes the cosine similarity of every pair of items in the
// utility matrix. Each unordered pair is computed once. Rows are distributed over
// config.Jobs goroutines and every goroutine writes a disjoint part of the table.
func ComputeSimilarity(ctx context.Context, m *UtilityMatrix, config *Config) (*SimilarityTable, error) {
	config = config.LoadDefaultIfNil()
	n := m.Items().Len()
	table := newSimilarityTable(m.Items())
	norms := make([]float64, n)
	for i := range norms {
		norms[i] = floats.Norm(m.Row(i), 2)
	}
	degenerate := atomic.NewInt64(0)
	err := parallel.Parallel(ctx, n, config.Jobs, func(_, i int) error {
		for j := i + 1; j < n; j++ {
			if norms[i] == 0 || norms[j] == 0 {
				degenerate.Inc()
			}
			table.scores[table.offset(i, j)] = cosine(m.Row(i), m.Row(j), norms[i], norms[j])
		}
		if config.OnProgress != nil {
			config.OnProgress(1)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	table.degenerate = int(degenerate.Load())
	return table, nil
}

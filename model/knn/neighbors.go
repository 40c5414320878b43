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
	"github.com/gorse-io/itemcf/base/heap"
)

// Neighbor is an item rated by a user together with its similarity to a target item.
type Neighbor struct {
	ItemId     int
	Similarity float64
	Rating     float64
}

// NeighborRanker selects the top-N neighbors of a target item among the items a
// user has rated.
type NeighborRanker struct {
	table *SimilarityTable
	n     int
}

func NewNeighborRanker(table *SimilarityTable, n int) *NeighborRanker {
	return &NeighborRanker{table: table, n: n}
}

// Rank returns at most N neighbors ordered by similarity descending, ties broken by
// item id ascending. The target item itself and items without a similarity to the
// target are skipped. A user with fewer rated items than N gets all of them.
func (r *NeighborRanker) Rank(targetItem int, rated []Rated) []Neighbor {
	topK := heap.NewTopK[int, float64](r.n)
	ratings := make(map[int]float64, len(rated))
	for _, item := range rated {
		score, ok := r.table.Get(targetItem, item.ItemId)
		if !ok {
			continue
		}
		topK.Push(item.ItemId, score)
		ratings[item.ItemId] = item.Rating
	}
	elems := topK.Elems()
	neighbors := make([]Neighbor, len(elems))
	for i, elem := range elems {
		neighbors[i] = Neighbor{
			ItemId:     elem.Value,
			Similarity: elem.Weight,
			Rating:     ratings[elem.Value],
		}
	}
	return neighbors
}

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
	"sort"

	"github.com/samber/lo"
)

// Index maps external ids to dense positions. Positions follow ascending id order.
type Index struct {
	ids []int
	pos map[int]int
}

// NewIndex creates an index over the distinct values of ids.
func NewIndex(ids []int) *Index {
	uniq := lo.Uniq(ids)
	sort.Ints(uniq)
	pos := make(map[int]int, len(uniq))
	for i, id := range uniq {
		pos[id] = i
	}
	return &Index{ids: uniq, pos: pos}
}

func (idx *Index) Len() int {
	return len(idx.ids)
}

// Index returns the position of id.
func (idx *Index) Index(id int) (int, bool) {
	i, ok := idx.pos[id]
	return i, ok
}

func (idx *Index) Contains(id int) bool {
	_, ok := idx.pos[id]
	return ok
}

// Id returns the id at position i.
func (idx *Index) Id(i int) int {
	return idx.ids[i]
}

// Ids returns all ids in ascending order. The slice must not be modified.
func (idx *Index) Ids() []int {
	return idx.ids
}

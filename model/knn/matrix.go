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
	"github.com/bits-and-blooms/bitset"
	"github.com/gorse-io/itemcf/dataset"
	"github.com/juju/errors"
)

// Rated is a rating given by some user, keyed by item.
type Rated struct {
	ItemId int
	Rating float64
}

// UtilityMatrix is the item-by-user rating matrix of a training set. Rows are
// items and columns are users, both in ascending id order. Unrated cells hold
// 0.0 for the vector math, and the observed mask tells them apart from real
// zero ratings. A UtilityMatrix is read-only once built.
type UtilityMatrix struct {
	users    *dataset.Index
	items    *dataset.Index
	rows     [][]float64
	observed []*bitset.BitSet
	rated    [][]Rated
}

// NewUtilityMatrix pivots training ratings into a UtilityMatrix. It fails with a
// NotValid error if the training set is empty or rates a (user, item) pair twice.
func NewUtilityMatrix(train *dataset.Dataset) (*UtilityMatrix, error) {
	if train == nil || train.Count() == 0 {
		return nil, errors.NotValidf("empty training set")
	}
	m := &UtilityMatrix{
		users:    train.Users(),
		items:    train.Items(),
		rows:     make([][]float64, train.Items().Len()),
		observed: make([]*bitset.BitSet, train.Items().Len()),
		rated:    make([][]Rated, train.Users().Len()),
	}
	for i := range m.rows {
		m.rows[i] = make([]float64, m.users.Len())
		m.observed[i] = bitset.New(uint(m.users.Len()))
	}
	for _, r := range train.Ratings() {
		userIndex, _ := m.users.Index(r.UserId)
		itemIndex, _ := m.items.Index(r.ItemId)
		if m.observed[itemIndex].Test(uint(userIndex)) {
			return nil, errors.NotValidf("duplicate rating of user %d on item %d", r.UserId, r.ItemId)
		}
		m.rows[itemIndex][userIndex] = r.Value
		m.observed[itemIndex].Set(uint(userIndex))
	}
	// rated items of each user in ascending item order
	for itemIndex, mask := range m.observed {
		itemId := m.items.Id(itemIndex)
		for userIndex, ok := mask.NextSet(0); ok; userIndex, ok = mask.NextSet(userIndex + 1) {
			m.rated[userIndex] = append(m.rated[userIndex], Rated{ItemId: itemId, Rating: m.rows[itemIndex][userIndex]})
		}
	}
	return m, nil
}

func (m *UtilityMatrix) Users() *dataset.Index {
	return m.users
}

func (m *UtilityMatrix) Items() *dataset.Index {
	return m.items
}

// Row returns the rating vector of the item at position itemIndex. It must not be modified.
func (m *UtilityMatrix) Row(itemIndex int) []float64 {
	return m.rows[itemIndex]
}

// Get returns the rating of a user on an item and whether it was observed.
func (m *UtilityMatrix) Get(userId, itemId int) (float64, bool) {
	userIndex, ok := m.users.Index(userId)
	if !ok {
		return 0, false
	}
	itemIndex, ok := m.items.Index(itemId)
	if !ok {
		return 0, false
	}
	if !m.observed[itemIndex].Test(uint(userIndex)) {
		return 0, false
	}
	return m.rows[itemIndex][userIndex], true
}

// Rated returns the items rated by a user in ascending item order. The slice must not be modified.
func (m *UtilityMatrix) Rated(userId int) []Rated {
	userIndex, ok := m.users.Index(userId)
	if !ok {
		return nil
	}
	return m.rated[userIndex]
}

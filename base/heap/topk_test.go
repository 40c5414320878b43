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

package heap

import (
	"math"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestTopK(t *testing.T) {
	elements := []int{5, 3, 7, 8, 6, 2, 9}
	topK := NewTopK[int, float64](3)
	for _, e := range elements {
		topK.Push(e, float64(e))
	}
	assert.Equal(t, 3, topK.Len())
	assert.Equal(t, []int{9, 8, 7}, topK.Values())
	elems := topK.Elems()
	assert.Equal(t, Elem[int, float64]{Value: 9, Weight: 9}, elems[0])

	// push order does not matter
	reversed := NewTopK[int, float64](3)
	for _, e := range lo.Reverse(elements) {
		reversed.Push(e, float64(e))
	}
	assert.Equal(t, topK.Values(), reversed.Values())
}

func TestTopK_Ties(t *testing.T) {
	topK := NewTopK[int, float64](2)
	topK.Push(4, 0.5)
	topK.Push(3, 0.5)
	topK.Push(1, 0.1)
	topK.Push(2, 0.5)
	assert.Equal(t, []int{2, 3}, topK.Values())
}

func TestTopK_Capacity(t *testing.T) {
	topK := NewTopK[int, float64](10)
	topK.Push(1, 0.1)
	topK.Push(2, -0.2)
	assert.Equal(t, []int{1, 2}, topK.Values())

	empty := NewTopK[int, float64](0)
	empty.Push(1, 1)
	assert.Empty(t, empty.Values())

	assert.Panics(t, func() {
		topK.Push(3, math.NaN())
	})
}

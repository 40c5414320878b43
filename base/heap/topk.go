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
	"container/heap"
	"sort"

	"golang.org/x/exp/constraints"
)

type Elem[T constraints.Ordered, W constraints.Ordered] struct {
	Value  T
	Weight W
}

// better reports whether a ranks ahead of b: larger weight first, then smaller value.
func better[T, W constraints.Ordered](a, b Elem[T, W]) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	return a.Value < b.Value
}

// _heap keeps the worst retained element at the root.
type _heap[T, W constraints.Ordered] struct {
	elems []Elem[T, W]
}

func (e *_heap[T, W]) Len() int {
	return len(e.elems)
}

func (e *_heap[T, W]) Less(i, j int) bool {
	return better(e.elems[j], e.elems[i])
}

func (e *_heap[T, W]) Swap(i, j int) {
	e.elems[i], e.elems[j] = e.elems[j], e.elems[i]
}

func (e *_heap[T, W]) Push(x interface{}) {
	e.elems = append(e.elems, x.(Elem[T, W]))
}

func (e *_heap[T, W]) Pop() interface{} {
	old := e.elems
	item := old[len(old)-1]
	e.elems = old[0 : len(old)-1]
	return item
}

// TopK retains the k best elements pushed into it. Elements are ranked by
// weight descending and ties are broken by value ascending, so the result
// does not depend on push order.
type TopK[T, W constraints.Ordered] struct {
	_heap[T, W]
	k int
}

// NewTopK creates a TopK with capacity k.
func NewTopK[T, W constraints.Ordered](k int) *TopK[T, W] {
	return &TopK[T, W]{
		_heap: _heap[T, W]{elems: make([]Elem[T, W], 0, max(k, 0))},
		k:     k,
	}
}

// Push offers an element. It is kept only if it ranks among the best k so far.
func (p *TopK[T, W]) Push(v T, w W) {
	if w != w {
		panic("NaN weight is forbidden")
	}
	if p.k <= 0 {
		return
	}
	elem := Elem[T, W]{Value: v, Weight: w}
	if p.Len() < p.k {
		heap.Push(&p._heap, elem)
	} else if better(elem, p.elems[0]) {
		p.elems[0] = elem
		heap.Fix(&p._heap, 0)
	}
}

// Elems returns retained elements from best to worst. The queue is not modified.
func (p *TopK[T, W]) Elems() []Elem[T, W] {
	elems := make([]Elem[T, W], len(p.elems))
	copy(elems, p.elems)
	sort.Slice(elems, func(i, j int) bool {
		return better(elems[i], elems[j])
	})
	return elems
}

// Values returns retained values from best to worst.
func (p *TopK[T, W]) Values() []T {
	elems := p.Elems()
	values := make([]T, len(elems))
	for i, elem := range elems {
		values[i] = elem.Value
	}
	return values
}

// Copyright 2025 Supabase, Inc.
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

package list

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ticket struct {
	id int
	ch chan int
}

func newTicket(id int) *Element[ticket] {
	return &Element[ticket]{Value: ticket{id: id, ch: make(chan int, 1)}}
}

func ids(l *List[ticket]) []int {
	var out []int
	for e := l.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.id)
	}
	return out
}

func idsBackward(l *List[ticket]) []int {
	var out []int
	for e := l.Back(); e != nil; e = e.Prev() {
		out = append(out, e.Value.id)
	}
	return out
}

func popFront(l *List[ticket]) *Element[ticket] {
	e := l.Front()
	if e != nil {
		l.Remove(e)
	}
	return e
}

func TestEmbeddedListNeedsInit(t *testing.T) {
	var q struct{ l List[ticket] }
	q.l.Init()
	assert.Zero(t, q.l.Len())
	assert.Nil(t, q.l.Front())
	assert.Nil(t, q.l.Back())
	assert.Nil(t, popFront(&q.l))
}

func TestPushBackValueIsFIFO(t *testing.T) {
	l := New[ticket]()
	for id := 1; id <= 4; id++ {
		l.PushBackValue(newTicket(id))
	}
	require.Equal(t, 4, l.Len())
	assert.Equal(t, []int{1, 2, 3, 4}, ids(l))
	assert.Equal(t, []int{4, 3, 2, 1}, idsBackward(l))

	var served []int
	for e := popFront(l); e != nil; e = popFront(l) {
		served = append(served, e.Value.id)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, served)
	assert.Zero(t, l.Len())
}

func TestRemoveCancelledTickets(t *testing.T) {
	l := New[ticket]()
	elems := make([]*Element[ticket], 5)
	for i := range elems {
		elems[i] = newTicket(i + 1)
		l.PushBackValue(elems[i])
	}

	l.Remove(elems[2])
	assert.Equal(t, []int{1, 2, 4, 5}, ids(l))
	assert.Same(t, elems[3], elems[1].Next())
	assert.Same(t, elems[1], elems[3].Prev())

	l.Remove(elems[4])
	assert.Equal(t, []int{1, 2, 4}, ids(l))
	assert.Equal(t, []int{4, 2, 1}, idsBackward(l))
	assert.Same(t, elems[3], l.Back())
	assert.Nil(t, elems[3].Next())

	assert.Equal(t, 3, l.Len())
	assert.Same(t, elems[0], popFront(l))
	assert.Nil(t, elems[1].Prev())
}

func TestRemovedElementIsDetached(t *testing.T) {
	l := New[ticket]()
	e := newTicket(1)
	l.PushBackValue(e)
	l.PushBackValue(newTicket(2))

	l.Remove(e)
	assert.Nil(t, e.Next())
	assert.Nil(t, e.Prev())
	assert.Panics(t, func() { l.Remove(e) }, "element is no longer in l")
	assert.Equal(t, 1, l.Len())
}

func TestRecycledElementKeepsValue(t *testing.T) {
	l := New[ticket]()
	e := newTicket(7)
	ch := e.Value.ch

	for range 3 {
		l.PushBackValue(newTicket(0))
		l.PushBackValue(e)
		assert.Same(t, e, l.Back())
		l.Remove(e)
		popFront(l)
		require.Zero(t, l.Len())
	}
	assert.Equal(t, 7, e.Value.id)
	assert.Equal(t, ch, e.Value.ch)

	other := New[ticket]()
	other.PushBackValue(e)
	assert.Panics(t, func() { l.Remove(e) })
	other.Remove(e)
}

func TestPushFrontJumpsQueue(t *testing.T) {
	l := New[ticket]()
	l.PushBackValue(newTicket(2))
	l.PushBack(ticket{id: 3})
	l.PushFrontValue(newTicket(1))
	first := l.PushFront(ticket{id: 0})

	assert.Same(t, first, l.Front())
	assert.Equal(t, []int{0, 1, 2, 3}, ids(l))
	assert.Equal(t, []int{3, 2, 1, 0}, idsBackward(l))
}

func TestInitEmptiesList(t *testing.T) {
	l := New[ticket]()
	l.PushBackValue(newTicket(1))
	l.PushBackValue(newTicket(2))

	l.Init()
	assert.Zero(t, l.Len())
	assert.Nil(t, l.Front())
	l.PushBackValue(newTicket(3))
	assert.Equal(t, []int{3}, ids(l))
}

// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connpool

import (
	"sync"

	"github.com/multigres/dbpool/go/tools/list"
)

// grant is what a waiter receives. Either a connection handed over by a
// releasing client, a reserved slot to create a connection in, or neither,
// which means the pool was disposed.
type grant struct {
	pc   *Pooled
	slot bool
}

type waiter struct {
	// ch is buffered so the granting side never blocks; each queued waiter
	// receives at most one grant.
	ch chan grant
}

// waitlist is the FIFO queue of blocked Acquire calls. It is guarded by
// Pool.mu.
type waitlist struct {
	nodes sync.Pool
	list  list.List[waiter]
}

func (wl *waitlist) init() {
	wl.nodes.New = func() any {
		return &list.Element[waiter]{Value: waiter{ch: make(chan grant, 1)}}
	}
	wl.list.Init()
}

func (wl *waitlist) enqueue() *list.Element[waiter] {
	elem := wl.nodes.Get().(*list.Element[waiter])
	wl.list.PushBackValue(elem)
	return elem
}

// remove unlinks elem if it is still queued. A false result means elem was
// already granted something, which is waiting in its channel.
func (wl *waitlist) remove(elem *list.Element[waiter]) bool {
	for e := wl.list.Front(); e != nil; e = e.Next() {
		if e == elem {
			wl.list.Remove(elem)
			return true
		}
	}
	return false
}

// grantFront hands g to the oldest waiter. It returns false when nobody
// is waiting.
func (wl *waitlist) grantFront(g grant) bool {
	front := wl.list.Front()
	if front == nil {
		return false
	}
	wl.list.Remove(front)
	front.Value.ch <- g
	return true
}

// recycle returns a node whose channel has been drained.
func (wl *waitlist) recycle(elem *list.Element[waiter]) {
	wl.nodes.Put(elem)
}

func (wl *waitlist) len() int {
	return wl.list.Len()
}

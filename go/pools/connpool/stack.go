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

// connStack is the LIFO set of idle connections. It is linked through
// Pooled.next and is not synchronized: callers hold Pool.mu.
type connStack struct {
	top   *Pooled
	count int
}

func (s *connStack) Push(pc *Pooled) {
	pc.next = s.top
	s.top = pc
	s.count++
}

// Pop returns the most recently pushed connection, or nil.
func (s *connStack) Pop() *Pooled {
	pc := s.top
	if pc == nil {
		return nil
	}
	s.top = pc.next
	s.count--
	pc.next = nil
	return pc
}

func (s *connStack) Len() int {
	return s.count
}

// ForEach visits connections from most to least recently pushed until fn
// returns false.
func (s *connStack) ForEach(fn func(*Pooled) bool) {
	for pc := s.top; pc != nil; pc = pc.next {
		if !fn(pc) {
			return
		}
	}
}

// RemoveIf unlinks every connection for which remove returns true and
// returns them. Order of the remaining connections is preserved.
func (s *connStack) RemoveIf(remove func(*Pooled) bool) []*Pooled {
	var removed []*Pooled
	link := &s.top
	for pc := s.top; pc != nil; {
		next := pc.next
		if remove(pc) {
			*link = next
			pc.next = nil
			s.count--
			removed = append(removed, pc)
		} else {
			link = &pc.next
		}
		pc = next
	}
	return removed
}

// Drain empties the stack and returns its contents.
func (s *connStack) Drain() []*Pooled {
	out := make([]*Pooled, 0, s.count)
	for pc := s.Pop(); pc != nil; pc = s.Pop() {
		out = append(out, pc)
	}
	return out
}

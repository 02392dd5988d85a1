// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import "github.com/gogama/httpq/request"

// An entry is one Request waiting in the pending queue.
type entry struct {
	r *request.Request
	// prio is the effective priority: the Request's own, or High for a
	// re-admission.
	prio request.Priority
	// probe marks the access point probe, the only work dispatched
	// while probing is in progress.
	probe bool
}

// queue is the pending queue, ordered by descending effective priority
// and by arrival within a priority. It is not safe for concurrent use;
// the Scheduler guards it with its lock.
type queue struct {
	entries []entry
}

func (q *queue) len() int {
	return len(q.entries)
}

// push inserts x at the tail of its priority tier and returns its
// index.
func (q *queue) push(x entry) int {
	i := len(q.entries)
	for i > 0 && q.entries[i-1].prio < x.prio {
		i--
	}
	q.insertAt(i, x)
	return i
}

func (q *queue) insertAt(i int, x entry) {
	if i > len(q.entries) {
		i = len(q.entries)
	}
	q.entries = append(q.entries, entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = x
}

func (q *queue) removeAt(i int) entry {
	x := q.entries[i]
	copy(q.entries[i:], q.entries[i+1:])
	q.entries[len(q.entries)-1] = entry{}
	q.entries = q.entries[:len(q.entries)-1]
	return x
}

// index returns the index of the entry for r, or -1.
func (q *queue) index(r *request.Request) int {
	for i := range q.entries {
		if q.entries[i].r == r {
			return i
		}
	}
	return -1
}

// remove removes the entry for r and reports whether there was one.
func (q *queue) remove(r *request.Request) bool {
	i := q.index(r)
	if i < 0 {
		return false
	}
	q.removeAt(i)
	return true
}

// containsEqual reports whether a Request equal to r is pending.
func (q *queue) containsEqual(r *request.Request) bool {
	for i := range q.entries {
		if q.entries[i].r.Equal(r) {
			return true
		}
	}
	return false
}

// drain empties the queue and returns what was in it.
func (q *queue) drain() []entry {
	entries := q.entries
	q.entries = nil
	return entries
}

package view

import (
	"github.com/vango-dev/viewcore/pkg/element"
	"github.com/vango-dev/viewcore/pkg/viewid"
)

// ReconcileSeq brings the children of the current node in line with seq and
// keeps parentEl's children in the same order. It is used from Build (where
// there are no previous children) and from Rebuild alike.
//
// Matching is by identity only: an explicit key when the entry has one,
// otherwise its index in seq. Matched entries are rebuilt, new ones built,
// unmatched ones torn down. Element order is then fixed with the fewest
// moves: matched entries on a longest increasing run of previous positions
// stay put and every other entry is moved or inserted.
//
// Two entries with the same identity fail with *DuplicateKeyError before
// anything is touched. Failures of individual children are contained at the
// child and do not fail the sequence.
//
// A node uses either one sequence or fixed children (BuildChild), not both.
func (cx *Cx) ReconcileSeq(parentEl element.Handle, seq Seq) (Change, error) {
	parent := cx.cur
	n := len(seq)

	ids := make([]viewid.ID, n)
	seen := make(map[viewid.ID]int, n)
	for i, e := range seq {
		id := e.id(i)
		if j, dup := seen[id]; dup {
			err := &DuplicateKeyError{Path: cx.Path(), Key: e.Key, First: j, Second: i}
			if seq[j].Key != e.Key {
				err.Collision = true
				err.Other = seq[j].Key
			}
			return 0, err
		}
		seen[id] = i
		ids[i] = id
	}

	prev := append([]int32(nil), cx.store.slots[parent].children...)
	prevAt := make(map[viewid.ID]int, len(prev))
	for j, c := range prev {
		prevAt[cx.store.slots[c].id] = j
	}

	var change Change
	next := make([]int32, n)
	// from[i] is the previous index of entry i when its element is still
	// attached to parentEl, -1 when it has to be inserted.
	from := make([]int, n)
	used := make([]bool, len(prev))

	for i, e := range seq {
		if j, ok := prevAt[ids[i]]; ok {
			used[j] = true
			c := prev[j]
			before := cx.store.slots[c].el
			el, _ := cx.rebuildSlot(c, e.View)
			cx.store.slots[c].key = e.Key
			next[i] = c
			if el == before {
				from[i] = j
			} else {
				from[i] = -1
			}
			continue
		}

		c := cx.store.alloc(parent, ids[i])
		cx.store.slots[c].key = e.Key
		if err := cx.materialize(c, e.View); err != nil {
			cx.placeholder(c, e.View, "build", err)
		}
		next[i] = c
		from[i] = -1
	}

	for j, c := range prev {
		if !used[j] {
			cx.teardownSlot(c, false, true)
			change |= ChangeChildren
		}
	}
	cx.store.slots[parent].children = append(cx.store.slots[parent].children[:0], next...)

	if cx.place(parentEl, prev, next, from) {
		change |= ChangeChildren
	}
	return change, nil
}

// place emits the Move and Insert ops that turn the attached survivors of
// prev into the order of next. It walks next right to left so every entry is
// placed before an anchor that is already final.
func (cx *Cx) place(parentEl element.Handle, prev, next []int32, from []int) bool {
	n := len(next)

	back := make([]int, len(prev))
	for j := range back {
		back[j] = -1
	}
	for i, j := range from {
		if j >= 0 {
			back[j] = i
		}
	}
	cur := make([]element.Handle, 0, len(prev))
	for j := range prev {
		if i := back[j]; i >= 0 {
			cur = append(cur, cx.store.slots[next[i]].el)
		}
	}

	keep := longestIncreasing(from)
	changed := false
	var anchor element.Handle
	hasAnchor := false

	for i := n - 1; i >= 0; i-- {
		el := cx.store.slots[next[i]].el
		if from[i] >= 0 && keep[i] {
			anchor, hasAnchor = el, true
			continue
		}

		if from[i] >= 0 {
			cur = removeHandle(cur, el)
		}
		to := len(cur)
		if hasAnchor {
			to = indexOf(cur, anchor)
		}
		cur = insertHandle(cur, to, el)

		if from[i] >= 0 {
			cx.script.Move(parentEl, to, el)
			cx.stats.Moves++
		} else {
			cx.script.Insert(parentEl, to, el)
			cx.stats.Inserts++
		}
		changed = true
		anchor, hasAnchor = el, true
	}
	return changed
}

func indexOf(list []element.Handle, h element.Handle) int {
	for i, x := range list {
		if x == h {
			return i
		}
	}
	return len(list)
}

func insertHandle(list []element.Handle, i int, h element.Handle) []element.Handle {
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = h
	return list
}

func removeHandle(list []element.Handle, h element.Handle) []element.Handle {
	for i, x := range list {
		if x == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

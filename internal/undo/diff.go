package undo

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/example/planboard/internal/types"
)

// Op classifies one inverse mutation produced by a snapshot diff.
type Op int

const (
	OpCreate Op = iota
	OpUpdate
	OpDelete
)

// ContentChange is one inverse mutation of the content collection.
type ContentChange struct {
	Op   Op
	ID   string
	Item types.ContentItem
}

// CategoryChange is one inverse mutation of the category collection.
type CategoryChange struct {
	Op       Op
	ID       string
	Category types.Category
}

// VacationChange is one inverse mutation of the vacation collection. Only
// OpCreate and OpDelete occur: the wire has no vacation update kind, so a
// changed value appears as a delete followed by a create.
type VacationChange struct {
	Op       Op
	ID       string
	Vacation types.VacationPeriod
}

// Diff lists the mutations that turn the `from` state into the `to` state,
// per collection, in deterministic id order.
type Diff struct {
	Contents   []ContentChange
	Categories []CategoryChange
	Vacations  []VacationChange
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Contents) == 0 && len(d.Categories) == 0 && len(d.Vacations) == 0
}

// DiffSnapshots computes the inverse mutations needed to move a store from
// one snapshot to another: ids present only in `from` are deleted, ids
// present only in `to` are created, and ids in both whose canonical
// serialized values differ are updated with the `to` value. Equality is
// decided on the JSON encoding, which normalizes dates to their fixed
// calendar form, so values that merely differ in in-memory shape compare
// equal.
func DiffSnapshots(from, to types.Snapshot) Diff {
	var d Diff

	walk(from.Contents, to.Contents, func(op Op, id string, item types.ContentItem) {
		d.Contents = append(d.Contents, ContentChange{Op: op, ID: id, Item: item})
	})
	walk(from.Categories, to.Categories, func(op Op, id string, cat types.Category) {
		d.Categories = append(d.Categories, CategoryChange{Op: op, ID: id, Category: cat})
	})
	walk(from.Vacations, to.Vacations, func(op Op, id string, vac types.VacationPeriod) {
		if op == OpUpdate {
			// Delete before create so an id-keyed remote store never sees
			// the same id twice.
			d.Vacations = append(d.Vacations,
				VacationChange{Op: OpDelete, ID: id},
				VacationChange{Op: OpCreate, ID: id, Vacation: vac})
			return
		}
		d.Vacations = append(d.Vacations, VacationChange{Op: op, ID: id, Vacation: vac})
	})

	return d
}

func walk[T any](from, to map[string]T, emit func(Op, string, T)) {
	ids := make([]string, 0, len(from)+len(to))
	seen := make(map[string]struct{}, len(from)+len(to))
	for id := range from {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	for id := range to {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		fromValue, inFrom := from[id]
		toValue, inTo := to[id]
		switch {
		case inFrom && !inTo:
			var zero T
			emit(OpDelete, id, zero)
		case !inFrom && inTo:
			emit(OpCreate, id, toValue)
		default:
			if !canonicalEqual(fromValue, toValue) {
				emit(OpUpdate, id, toValue)
			}
		}
	}
}

func canonicalEqual(a, b any) bool {
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

package query

import "sort"

// EntryID is an opaque handle to a File or Directory node, shared with the
// graph package so both sides of the evaluator/graph boundary agree on a
// single handle type without an import cycle.
type EntryID int

// Snapshot is the read-only view of the tagged-entry graph the evaluator
// needs: resolving a tag name to the entries it is attached to, and an
// entry handle back to its absolute path.
type Snapshot interface {
	EntriesForTag(tag string) map[EntryID]struct{}
	Absolute(id EntryID) string
}

// Evaluate executes a postfix tag expression against snap, returning the
// matching absolute paths sorted lexicographically. An unknown tag operand
// contributes the empty set. If the postfix sequence is malformed (does not
// reduce to exactly one set), the result is empty.
func Evaluate(postfix []Item, snap Snapshot) []string {
	var stack []map[EntryID]struct{}

	for _, item := range postfix {
		switch item.Kind {
		case Operand:
			stack = append(stack, snap.EntriesForTag(item.Tag))
		case OperatorItem:
			if len(stack) < 2 {
				return nil
			}
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]

			var result map[EntryID]struct{}
			switch item.Op {
			case AND:
				result = intersect(left, right)
			case OR:
				result = union(left, right)
			}
			stack = append(stack, result)
		}
	}

	if len(stack) != 1 {
		return nil
	}

	paths := make([]string, 0, len(stack[0]))
	for id := range stack[0] {
		paths = append(paths, snap.Absolute(id))
	}
	sort.Strings(paths)
	return paths
}

func intersect(a, b map[EntryID]struct{}) map[EntryID]struct{} {
	out := make(map[EntryID]struct{})
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for id := range small {
		if _, ok := large[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func union(a, b map[EntryID]struct{}) map[EntryID]struct{} {
	out := make(map[EntryID]struct{}, len(a)+len(b))
	for id := range a {
		out[id] = struct{}{}
	}
	for id := range b {
		out[id] = struct{}{}
	}
	return out
}

// Package executor implements the pull-based query operators. An operator
// tree is driven from the root: Open cascades down, Next pulls one tuple at a
// time, and Rewind restarts a subtree so it can be replayed.
package executor

import (
	"go-reldb/pkg/tuple"
)

// OpIterator is a node of an operator tree. Beyond plain tuple iteration it
// exposes its output schema and its children, so plans can be inspected and
// rewired after construction.
type OpIterator interface {
	tuple.Iterator

	Desc() *tuple.Desc
	Children() []OpIterator
	SetChildren(children []OpIterator)
}

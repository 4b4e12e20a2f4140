// Package aggregator implements the single-pass grouping accumulators the
// Aggregate operator builds its result from.
package aggregator

import (
	"fmt"

	"go-reldb/pkg/tuple"
)

// NoGrouping is the group-by field index of an ungrouped aggregate.
const NoGrouping = -1

// Op is an aggregate operation.
type Op uint8

const (
	Min Op = iota
	Max
	Sum
	Avg
	Count
)

func (op Op) String() string {
	switch op {
	case Min:
		return "min"
	case Max:
		return "max"
	case Sum:
		return "sum"
	case Avg:
		return "avg"
	case Count:
		return "count"
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Aggregator folds tuples into per-group accumulators. Merge is called once
// per input tuple; Iterator yields the finished groups as (groupVal, aggVal)
// pairs, or a single (aggVal) tuple when grouping is off.
type Aggregator interface {
	Merge(t *tuple.Tuple) error
	Iterator() tuple.Iterator
}

package aggregator

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// intGroup is one group's running state. Extremes and sums start from the
// first merged value rather than a constant, so any int32 works as input.
type intGroup struct {
	seen  bool
	min   int32
	max   int32
	sum   int64
	count int64
}

func (g *intGroup) merge(v int32) {
	if !g.seen {
		g.seen = true
		g.min = v
		g.max = v
	} else {
		if v < g.min {
			g.min = v
		}
		if v > g.max {
			g.max = v
		}
	}
	g.sum += int64(v)
	g.count++
}

func (g *intGroup) result(op Op) int32 {
	switch op {
	case Min:
		return g.min
	case Max:
		return g.max
	case Sum:
		return int32(g.sum)
	case Avg:
		return int32(g.sum / g.count)
	case Count:
		return int32(g.count)
	}
	return 0
}

// IntegerAggregator aggregates an int field, optionally grouped by another
// field. Group order in the output is the order groups were first seen.
type IntegerAggregator struct {
	gbField int
	gbType  types.Type
	aField  int
	op      Op

	groups map[types.Field]*intGroup
	order  []types.Field
}

// NewIntegerAggregator builds an aggregator over the aField-th field. Pass
// NoGrouping as gbField (gbType is then ignored) to fold everything into one
// group.
func NewIntegerAggregator(gbField int, gbType types.Type, aField int, op Op) *IntegerAggregator {
	return &IntegerAggregator{
		gbField: gbField,
		gbType:  gbType,
		aField:  aField,
		op:      op,
		groups:  map[types.Field]*intGroup{},
	}
}

func (a *IntegerAggregator) Merge(t *tuple.Tuple) error {
	var key types.Field
	if a.gbField != NoGrouping {
		f, err := t.Field(a.gbField)
		if err != nil {
			return err
		}
		if f.Type() != a.gbType {
			return errors.Wrapf(storage.ErrTypeMismatch,
				"group field is %s, expected %s", f.Type(), a.gbType)
		}
		key = f
	}

	f, err := t.Field(a.aField)
	if err != nil {
		return err
	}
	iv, ok := f.(types.IntField)
	if !ok {
		return errors.Wrapf(storage.ErrTypeMismatch, "aggregate field is %s, expected INT", f.Type())
	}

	g, ok := a.groups[key]
	if !ok {
		g = &intGroup{}
		a.groups[key] = g
		a.order = append(a.order, key)
	}
	g.merge(iv.Value)
	return nil
}

func (a *IntegerAggregator) Iterator() tuple.Iterator {
	var desc *tuple.Desc
	if a.gbField == NoGrouping {
		desc = tuple.MustDesc([]types.Type{types.IntType}, []string{"aggVal"})
	} else {
		desc = tuple.MustDesc([]types.Type{a.gbType, types.IntType}, []string{"groupVal", "aggVal"})
	}

	results := make([]*tuple.Tuple, 0, len(a.order))
	for _, key := range a.order {
		g := a.groups[key]
		t := tuple.NewTuple(desc)
		if a.gbField == NoGrouping {
			t.SetField(0, types.NewIntField(g.result(a.op)))
		} else {
			t.SetField(0, key)
			t.SetField(1, types.NewIntField(g.result(a.op)))
		}
		results = append(results, t)
	}
	return tuple.NewSliceIterator(results)
}

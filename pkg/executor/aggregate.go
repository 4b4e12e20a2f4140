package executor

import (
	"go-reldb/pkg/executor/aggregator"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// Aggregate folds its child through an aggregator and yields the per-group
// results. The child is consumed in full on Open; groups come out in the
// order they were first seen.
type Aggregate struct {
	child   OpIterator
	aField  int
	gbField int
	op      aggregator.Op

	desc    *tuple.Desc
	results tuple.Iterator
}

func NewAggregate(child OpIterator, aField, gbField int, op aggregator.Op) (*Aggregate, error) {
	cd := child.Desc()
	aType, err := cd.TypeAt(aField)
	if err != nil {
		return nil, err
	}
	if aType == types.StringType && op != aggregator.Count {
		return nil, errors.Wrapf(storage.ErrTypeMismatch, "%s is not defined over strings", op)
	}

	var ft []types.Type
	var fn []string
	aName, _ := cd.NameAt(aField)
	if gbField == aggregator.NoGrouping {
		ft = []types.Type{types.IntType}
		fn = []string{op.String() + "(" + aName + ")"}
	} else {
		gbType, err := cd.TypeAt(gbField)
		if err != nil {
			return nil, err
		}
		gbName, _ := cd.NameAt(gbField)
		ft = []types.Type{gbType, types.IntType}
		fn = []string{gbName, op.String() + "(" + aName + ")"}
	}
	desc, err := tuple.NewDesc(ft, fn)
	if err != nil {
		return nil, err
	}

	return &Aggregate{
		child:   child,
		aField:  aField,
		gbField: gbField,
		op:      op,
		desc:    desc,
	}, nil
}

func (a *Aggregate) newAggregator() (aggregator.Aggregator, error) {
	cd := a.child.Desc()
	aType, _ := cd.TypeAt(a.aField)
	var gbType types.Type
	if a.gbField != aggregator.NoGrouping {
		gbType, _ = cd.TypeAt(a.gbField)
	}

	if aType == types.StringType {
		return aggregator.NewStringAggregator(a.gbField, gbType, a.aField, a.op)
	}
	return aggregator.NewIntegerAggregator(a.gbField, gbType, a.aField, a.op), nil
}

func (a *Aggregate) Open() error {
	agg, err := a.newAggregator()
	if err != nil {
		return err
	}

	if err := a.child.Open(); err != nil {
		return err
	}
	defer a.child.Close()

	for {
		has, err := a.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := a.child.Next()
		if err != nil {
			return err
		}
		if err := agg.Merge(t); err != nil {
			return err
		}
	}

	a.results = agg.Iterator()
	return a.results.Open()
}

func (a *Aggregate) HasNext() (bool, error) {
	if a.results == nil {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return a.results.HasNext()
}

func (a *Aggregate) Next() (*tuple.Tuple, error) {
	if a.results == nil {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return a.results.Next()
}

func (a *Aggregate) Rewind() error {
	if a.results == nil {
		return errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return a.results.Rewind()
}

func (a *Aggregate) Close() {
	if a.results != nil {
		a.results.Close()
		a.results = nil
	}
}

func (a *Aggregate) Desc() *tuple.Desc {
	return a.desc
}

func (a *Aggregate) Children() []OpIterator {
	return []OpIterator{a.child}
}

func (a *Aggregate) SetChildren(children []OpIterator) {
	a.child = children[0]
}

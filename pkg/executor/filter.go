package executor

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"

	"github.com/pkg/errors"
)

// Filter passes through the child tuples that satisfy its predicate.
type Filter struct {
	pred  Predicate
	child OpIterator

	pending *tuple.Tuple
}

func NewFilter(pred Predicate, child OpIterator) *Filter {
	return &Filter{pred: pred, child: child}
}

func (f *Filter) Open() error {
	f.pending = nil
	return f.child.Open()
}

func (f *Filter) HasNext() (bool, error) {
	if f.pending != nil {
		return true, nil
	}
	for {
		has, err := f.child.HasNext()
		if err != nil {
			return false, err
		}
		if !has {
			return false, nil
		}
		t, err := f.child.Next()
		if err != nil {
			return false, err
		}
		ok, err := f.pred.Matches(t)
		if err != nil {
			return false, err
		}
		if ok {
			f.pending = t
			return true, nil
		}
	}
}

func (f *Filter) Next() (*tuple.Tuple, error) {
	has, err := f.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	t := f.pending
	f.pending = nil
	return t, nil
}

func (f *Filter) Rewind() error {
	f.pending = nil
	return f.child.Rewind()
}

func (f *Filter) Close() {
	f.pending = nil
	f.child.Close()
}

func (f *Filter) Desc() *tuple.Desc {
	return f.child.Desc()
}

func (f *Filter) Children() []OpIterator {
	return []OpIterator{f.child}
}

func (f *Filter) SetChildren(children []OpIterator) {
	f.child = children[0]
}

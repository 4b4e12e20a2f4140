package tuple

import (
	"go-reldb/pkg/storage"

	"github.com/pkg/errors"
)

// sliceIterator yields an in-memory slice of tuples. Rewind restarts from the
// first element.
type sliceIterator struct {
	tuples []*Tuple
	pos    int
	opened bool
}

// NewSliceIterator wraps an already-materialized tuple slice in an Iterator.
func NewSliceIterator(tuples []*Tuple) Iterator {
	return &sliceIterator{tuples: tuples}
}

func (it *sliceIterator) Open() error {
	it.opened = true
	it.pos = 0
	return nil
}

func (it *sliceIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return it.pos < len(it.tuples), nil
}

func (it *sliceIterator) Next() (*Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	t := it.tuples[it.pos]
	it.pos++
	return t, nil
}

func (it *sliceIterator) Rewind() error {
	if !it.opened {
		return errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	it.pos = 0
	return nil
}

func (it *sliceIterator) Close() {
	it.opened = false
}

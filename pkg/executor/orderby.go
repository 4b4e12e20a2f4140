package executor

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// OrderBy materializes its child on Open and yields the tuples sorted on one
// field. The sort is stable, so ties keep the child's order.
type OrderBy struct {
	child OpIterator
	field int
	asc   bool

	results tuple.Iterator
}

func NewOrderBy(child OpIterator, field int, asc bool) *OrderBy {
	return &OrderBy{child: child, field: field, asc: asc}
}

func (o *OrderBy) Open() error {
	if err := o.child.Open(); err != nil {
		return err
	}
	defer o.child.Close()

	var all []*tuple.Tuple
	for {
		has, err := o.child.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := o.child.Next()
		if err != nil {
			return err
		}
		if _, err := t.Field(o.field); err != nil {
			return err
		}
		all = append(all, t)
	}

	slices.SortStableFunc(all, func(a, b *tuple.Tuple) int {
		fa, _ := a.Field(o.field)
		fb, _ := b.Field(o.field)
		cmp := 0
		if fa.Compare(types.LessThan, fb) {
			cmp = -1
		} else if fa.Compare(types.GreaterThan, fb) {
			cmp = 1
		}
		if !o.asc {
			cmp = -cmp
		}
		return cmp
	})

	o.results = tuple.NewSliceIterator(all)
	return o.results.Open()
}

func (o *OrderBy) HasNext() (bool, error) {
	if o.results == nil {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return o.results.HasNext()
}

func (o *OrderBy) Next() (*tuple.Tuple, error) {
	if o.results == nil {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return o.results.Next()
}

func (o *OrderBy) Rewind() error {
	if o.results == nil {
		return errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return o.results.Rewind()
}

func (o *OrderBy) Close() {
	if o.results != nil {
		o.results.Close()
		o.results = nil
	}
}

func (o *OrderBy) Desc() *tuple.Desc {
	return o.child.Desc()
}

func (o *OrderBy) Children() []OpIterator {
	return []OpIterator{o.child}
}

func (o *OrderBy) SetChildren(children []OpIterator) {
	o.child = children[0]
}

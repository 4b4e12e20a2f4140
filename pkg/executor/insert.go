package executor

import (
	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// Insert drains its child into the named table and yields a single tuple
// holding the number of rows inserted. Calling it twice without a rewind
// yields nothing.
type Insert struct {
	tid     storage.TransactionID
	pool    *bufferpool.Pool
	tableID int32
	child   OpIterator

	desc *tuple.Desc
	done bool
}

func NewInsert(tid storage.TransactionID, pool *bufferpool.Pool, tableID int32, child OpIterator) *Insert {
	return &Insert{
		tid:     tid,
		pool:    pool,
		tableID: tableID,
		child:   child,
		desc:    tuple.MustDesc([]types.Type{types.IntType}, []string{"count"}),
	}
}

func (op *Insert) Open() error {
	op.done = false
	return op.child.Open()
}

func (op *Insert) HasNext() (bool, error) {
	return !op.done, nil
}

func (op *Insert) Next() (*tuple.Tuple, error) {
	if op.done {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	op.done = true

	count := int32(0)
	for {
		has, err := op.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			break
		}
		t, err := op.child.Next()
		if err != nil {
			return nil, err
		}
		if err := op.pool.InsertTuple(op.tid, op.tableID, t); err != nil {
			return nil, err
		}
		count++
	}

	out := tuple.NewTuple(op.desc)
	out.SetField(0, types.NewIntField(count))
	return out, nil
}

func (op *Insert) Rewind() error {
	op.done = false
	return op.child.Rewind()
}

func (op *Insert) Close() {
	op.child.Close()
}

func (op *Insert) Desc() *tuple.Desc {
	return op.desc
}

func (op *Insert) Children() []OpIterator {
	return []OpIterator{op.child}
}

func (op *Insert) SetChildren(children []OpIterator) {
	op.child = children[0]
}

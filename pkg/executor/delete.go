package executor

import (
	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// Delete removes every tuple its child yields and reports the count as a
// single output tuple. Child tuples must carry record ids, so the child is
// normally a scan over the target table.
type Delete struct {
	tid   storage.TransactionID
	pool  *bufferpool.Pool
	child OpIterator

	desc *tuple.Desc
	done bool
}

func NewDelete(tid storage.TransactionID, pool *bufferpool.Pool, child OpIterator) *Delete {
	return &Delete{
		tid:   tid,
		pool:  pool,
		child: child,
		desc:  tuple.MustDesc([]types.Type{types.IntType}, []string{"count"}),
	}
}

func (op *Delete) Open() error {
	op.done = false
	return op.child.Open()
}

func (op *Delete) HasNext() (bool, error) {
	return !op.done, nil
}

func (op *Delete) Next() (*tuple.Tuple, error) {
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
		if err := op.pool.DeleteTuple(op.tid, t); err != nil {
			return nil, err
		}
		count++
	}

	out := tuple.NewTuple(op.desc)
	out.SetField(0, types.NewIntField(count))
	return out, nil
}

func (op *Delete) Rewind() error {
	op.done = false
	return op.child.Rewind()
}

func (op *Delete) Close() {
	op.child.Close()
}

func (op *Delete) Desc() *tuple.Desc {
	return op.desc
}

func (op *Delete) Children() []OpIterator {
	return []OpIterator{op.child}
}

func (op *Delete) SetChildren(children []OpIterator) {
	op.child = children[0]
}

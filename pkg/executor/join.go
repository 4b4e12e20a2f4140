package executor

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"

	"github.com/pkg/errors"
)

// Join is a nested loop join: for each tuple of the left child the right
// child is rewound and scanned in full. Output tuples are the concatenation
// of the matching pair.
type Join struct {
	pred  JoinPredicate
	left  OpIterator
	right OpIterator

	desc    *tuple.Desc
	cur     *tuple.Tuple
	pending *tuple.Tuple
}

func NewJoin(pred JoinPredicate, left, right OpIterator) *Join {
	return &Join{
		pred:  pred,
		left:  left,
		right: right,
		desc:  tuple.Merge(left.Desc(), right.Desc()),
	}
}

func (j *Join) Open() error {
	j.cur = nil
	j.pending = nil
	if err := j.left.Open(); err != nil {
		return err
	}
	if err := j.right.Open(); err != nil {
		j.left.Close()
		return err
	}
	return nil
}

// advanceLeft pulls the next left tuple and restarts the right scan, false
// when the left side is exhausted.
func (j *Join) advanceLeft() (bool, error) {
	has, err := j.left.HasNext()
	if err != nil {
		return false, err
	}
	if !has {
		return false, nil
	}
	t, err := j.left.Next()
	if err != nil {
		return false, err
	}
	j.cur = t
	return true, j.right.Rewind()
}

func (j *Join) HasNext() (bool, error) {
	if j.pending != nil {
		return true, nil
	}

	if j.cur == nil {
		moved, err := j.advanceLeft()
		if err != nil {
			return false, err
		}
		if !moved {
			return false, nil
		}
	}

	for {
		has, err := j.right.HasNext()
		if err != nil {
			return false, err
		}
		if !has {
			moved, err := j.advanceLeft()
			if err != nil {
				return false, err
			}
			if !moved {
				return false, nil
			}
			continue
		}

		rt, err := j.right.Next()
		if err != nil {
			return false, err
		}
		ok, err := j.pred.Matches(j.cur, rt)
		if err != nil {
			return false, err
		}
		if ok {
			out, err := j.merge(j.cur, rt)
			if err != nil {
				return false, err
			}
			j.pending = out
			return true, nil
		}
	}
}

func (j *Join) merge(lt, rt *tuple.Tuple) (*tuple.Tuple, error) {
	out := tuple.NewTuple(j.desc)
	n := lt.Desc().NumFields()
	for i := 0; i < n; i++ {
		f, err := lt.Field(i)
		if err != nil {
			return nil, err
		}
		if err := out.SetField(i, f); err != nil {
			return nil, err
		}
	}
	for i := 0; i < rt.Desc().NumFields(); i++ {
		f, err := rt.Field(i)
		if err != nil {
			return nil, err
		}
		if err := out.SetField(n+i, f); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (j *Join) Next() (*tuple.Tuple, error) {
	has, err := j.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	t := j.pending
	j.pending = nil
	return t, nil
}

func (j *Join) Rewind() error {
	j.cur = nil
	j.pending = nil
	if err := j.left.Rewind(); err != nil {
		return err
	}
	return j.right.Rewind()
}

func (j *Join) Close() {
	j.cur = nil
	j.pending = nil
	j.right.Close()
	j.left.Close()
}

func (j *Join) Desc() *tuple.Desc {
	return j.desc
}

func (j *Join) Children() []OpIterator {
	return []OpIterator{j.left, j.right}
}

func (j *Join) SetChildren(children []OpIterator) {
	j.left = children[0]
	j.right = children[1]
}

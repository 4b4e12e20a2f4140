package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// IndexPredicate restricts an index scan to the tuples whose key satisfies
// Op against Value.
type IndexPredicate struct {
	Op    types.Op
	Value types.Field
}

// treeIterator walks the leaf chain in either direction. With a predicate it
// starts at the leaf the predicate key lives in where the operator allows,
// and stops as soon as no further tuple can match.
type treeIterator struct {
	f       *File
	tid     storage.TransactionID
	pred    *IndexPredicate
	reverse bool

	opened  bool
	done    bool
	leaf    *LeafPage
	slots   tuple.Iterator
	pending *tuple.Tuple
}

// startKey returns the key the traversal can start from, nil when the whole
// direction must be walked.
func (it *treeIterator) startKey() types.Field {
	if it.pred == nil {
		return nil
	}
	if it.reverse {
		switch it.pred.Op {
		case types.Equals, types.LessThan, types.LessThanOrEq:
			return it.pred.Value
		}
		return nil
	}
	switch it.pred.Op {
	case types.Equals, types.GreaterThan, types.GreaterThanOrEq:
		return it.pred.Value
	}
	return nil
}

func (it *treeIterator) Open() error {
	it.opened = true
	it.done = false
	it.leaf = nil
	it.slots = nil
	it.pending = nil

	pg, err := it.f.pool.GetPage(it.tid, it.f.rootPtrPID(), storage.ReadOnly)
	if err != nil {
		return err
	}
	rootID := pg.(*RootPtrPage).RootID()
	if rootID == nil {
		it.done = true
		return nil
	}

	scratch := map[storage.PageID]storage.Page{}
	var leaf *LeafPage
	if it.reverse {
		leaf, err = it.f.findLeafPageReverse(it.tid, scratch, *rootID, storage.ReadOnly, it.startKey())
	} else {
		leaf, err = it.f.findLeafPage(it.tid, scratch, *rootID, storage.ReadOnly, it.startKey())
	}
	if err != nil {
		return err
	}
	it.setLeaf(leaf)
	return nil
}

func (it *treeIterator) setLeaf(leaf *LeafPage) {
	it.leaf = leaf
	if it.reverse {
		it.slots = leaf.ReverseIterator()
	} else {
		it.slots = leaf.Iterator()
	}
	it.slots.Open()
}

// advanceLeaf moves to the next leaf in the traversal direction, false at
// the edge of the chain.
func (it *treeIterator) advanceLeaf() (bool, error) {
	it.slots.Close()

	var sibID *storage.BTreePageID
	if it.reverse {
		sibID = it.leaf.LeftSiblingID()
	} else {
		sibID = it.leaf.RightSiblingID()
	}
	if sibID == nil {
		return false, nil
	}

	pg, err := it.f.pool.GetPage(it.tid, *sibID, storage.ReadOnly)
	if err != nil {
		return false, err
	}
	it.setLeaf(pg.(*LeafPage))
	return true, nil
}

// exhausted reports whether key is past the last possibly-matching tuple in
// the traversal direction.
func (it *treeIterator) exhausted(key types.Field) bool {
	if it.pred == nil {
		return false
	}
	switch it.pred.Op {
	case types.Equals:
		if it.reverse {
			return key.Compare(types.LessThan, it.pred.Value)
		}
		return key.Compare(types.GreaterThan, it.pred.Value)
	case types.LessThan, types.LessThanOrEq:
		return !it.reverse && key.Compare(types.GreaterThan, it.pred.Value)
	case types.GreaterThan, types.GreaterThanOrEq:
		return it.reverse && key.Compare(types.LessThan, it.pred.Value)
	}
	return false
}

func (it *treeIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	if it.pending != nil {
		return true, nil
	}
	if it.done {
		return false, nil
	}

	for {
		has, err := it.slots.HasNext()
		if err != nil {
			return false, err
		}
		if !has {
			moved, err := it.advanceLeaf()
			if err != nil {
				return false, err
			}
			if !moved {
				it.done = true
				return false, nil
			}
			continue
		}

		t, err := it.slots.Next()
		if err != nil {
			return false, err
		}
		key, err := t.Field(it.f.keyField)
		if err != nil {
			return false, err
		}

		if it.pred == nil || key.Compare(it.pred.Op, it.pred.Value) {
			it.pending = t
			return true, nil
		}
		if it.exhausted(key) {
			it.done = true
			return false, nil
		}
	}
}

func (it *treeIterator) Next() (*tuple.Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	t := it.pending
	it.pending = nil
	return t, nil
}

func (it *treeIterator) Rewind() error {
	it.Close()
	return it.Open()
}

func (it *treeIterator) Close() {
	if it.slots != nil {
		it.slots.Close()
		it.slots = nil
	}
	it.leaf = nil
	it.pending = nil
	it.opened = false
}

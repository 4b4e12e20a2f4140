package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// CheckIntegrity walks the whole tree and verifies its shape: parent
// pointers match the traversal, internal keys ascend, every subtree stays
// inside the key bounds its parent routes to it, and leaf keys are sorted.
// Leaf sibling pointers and page occupancy are not checked. Intended for
// tests and debugging.
func (bf *File) CheckIntegrity(tid storage.TransactionID) error {
	pg, err := bf.pool.GetPage(tid, bf.rootPtrPID(), storage.ReadOnly)
	if err != nil {
		return err
	}
	rootID := pg.(*RootPtrPage).RootID()
	if rootID == nil {
		return nil
	}
	return bf.checkSubtree(tid, *rootID, bf.rootPtrPID(), nil, nil)
}

// checkSubtree verifies the subtree at pid: its parent pointer equals
// parentID and every key k satisfies lower <= k and k <= upper (nil bounds
// are open).
func (bf *File) checkSubtree(
	tid storage.TransactionID,
	pid storage.BTreePageID,
	parentID storage.BTreePageID,
	lower, upper types.Field,
) error {
	inBounds := func(k types.Field) bool {
		if lower != nil && !k.Compare(types.GreaterThanOrEq, lower) {
			return false
		}
		if upper != nil && !k.Compare(types.LessThanOrEq, upper) {
			return false
		}
		return true
	}

	pg, err := bf.pool.GetPage(tid, pid, storage.ReadOnly)
	if err != nil {
		return err
	}

	switch p := pg.(type) {
	case *LeafPage:
		if p.ParentID() != parentID {
			return errors.Wrapf(storage.ErrBadPageID,
				"leaf %v: parent is %v, expected %v", pid, p.ParentID(), parentID)
		}
		var prev types.Field
		it := p.Iterator()
		if err := it.Open(); err != nil {
			return err
		}
		defer it.Close()
		for {
			has, err := it.HasNext()
			if err != nil {
				return err
			}
			if !has {
				return nil
			}
			t, err := it.Next()
			if err != nil {
				return err
			}
			k, err := t.Field(bf.keyField)
			if err != nil {
				return err
			}
			if !inBounds(k) {
				return errors.Wrapf(storage.ErrBadPageID,
					"leaf %v: key %s out of bounds", pid, k)
			}
			if prev != nil && prev.Compare(types.GreaterThan, k) {
				return errors.Wrapf(storage.ErrBadPageID,
					"leaf %v: keys %s, %s out of order", pid, prev, k)
			}
			prev = k
		}

	case *InternalPage:
		if p.ParentID() != parentID {
			return errors.Wrapf(storage.ErrBadPageID,
				"internal %v: parent is %v, expected %v", pid, p.ParentID(), parentID)
		}
		entries := make([]*Entry, 0, p.NumEntries())
		it := p.Entries()
		for e := it.Next(); e != nil; e = it.Next() {
			entries = append(entries, e)
		}
		if len(entries) == 0 {
			return errors.Wrapf(storage.ErrBadPageID, "internal %v has no entries", pid)
		}

		childLower := lower
		var prevKey types.Field
		for _, e := range entries {
			if !inBounds(e.Key) {
				return errors.Wrapf(storage.ErrBadPageID,
					"internal %v: key %s out of bounds", pid, e.Key)
			}
			if prevKey != nil && prevKey.Compare(types.GreaterThan, e.Key) {
				return errors.Wrapf(storage.ErrBadPageID,
					"internal %v: keys %s, %s out of order", pid, prevKey, e.Key)
			}
			if err := bf.checkSubtree(tid, e.LeftChild, pid, childLower, e.Key); err != nil {
				return err
			}
			childLower = e.Key
			prevKey = e.Key
		}
		last := entries[len(entries)-1]
		return bf.checkSubtree(tid, last.RightChild, pid, last.Key, upper)
	}
	return errors.Wrapf(storage.ErrBadPageID, "page %v is not part of the tree", pid)
}

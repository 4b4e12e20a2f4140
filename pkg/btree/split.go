package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// splitLeafPage splits the full leaf, copying the new right page's first key
// up into the parent, and returns the leaf the incoming key belongs in.
func (bf *File) splitLeafPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page *LeafPage,
	key types.Field,
) (*LeafPage, error) {
	pg, err := bf.emptyPage(tid, dirty, storage.Leaf)
	if err != nil {
		return nil, err
	}
	right := pg.(*LeafPage)

	n := page.NumTuples()
	toMove := make([]*tuple.Tuple, 0, (n+1)/2)
	rev := page.ReverseIterator()
	if err := rev.Open(); err != nil {
		return nil, err
	}
	for i := 0; i < (n+1)/2; i++ {
		t, err := rev.Next()
		if err != nil {
			return nil, err
		}
		toMove = append(toMove, t)
	}
	rev.Close()

	for _, t := range toMove {
		if err := page.DeleteTuple(t); err != nil {
			return nil, err
		}
		if err := right.InsertTuple(t); err != nil {
			return nil, err
		}
	}

	if oldRightID := page.RightSiblingID(); oldRightID != nil {
		opg, err := bf.page(tid, dirty, *oldRightID, storage.ReadWrite)
		if err != nil {
			return nil, err
		}
		opg.(*LeafPage).SetLeftSiblingNo(right.pid.Page)
	}
	right.SetRightSiblingNo(page.right)
	right.SetLeftSiblingNo(page.pid.Page)
	page.SetRightSiblingNo(right.pid.Page)

	promoted, err := right.FirstTuple().Field(bf.keyField)
	if err != nil {
		return nil, err
	}

	parent, err := bf.getParentWithEmptySlots(tid, dirty, page.ParentID(), promoted)
	if err != nil {
		return nil, err
	}
	if err := parent.InsertEntry(NewEntry(promoted, page.pid, right.pid)); err != nil {
		return nil, err
	}
	page.SetParentID(parent.pid)
	right.SetParentID(parent.pid)

	logger.L.WithField("prefix", "btree").
		Debugf("table %d: split leaf %v, new sibling %v, promoted %s",
			bf.id, page.pid, right.pid, promoted)

	if key.Compare(types.LessThan, promoted) {
		return page, nil
	}
	return right, nil
}

// splitInternalPage splits the full internal page, pushing the median key up
// into the parent, and returns the page the incoming key belongs in.
func (bf *File) splitInternalPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page *InternalPage,
	key types.Field,
) (*InternalPage, error) {
	pg, err := bf.emptyPage(tid, dirty, storage.Internal)
	if err != nil {
		return nil, err
	}
	right := pg.(*InternalPage)

	// The entries strictly above the median move right; the median itself
	// is pushed up, its right child becoming the new page's leftmost child.
	n := page.NumEntries()
	numToMove := n - n/2 - 1
	rev := page.ReverseEntries()
	for i := 0; i < numToMove; i++ {
		e := rev.Next()
		if e == nil {
			return nil, errors.Wrapf(storage.ErrBadPageID, "page %v ran out of entries mid-split", page.pid)
		}
		if err := page.DeleteKeyAndRightChild(e); err != nil {
			return nil, err
		}
		if err := right.InsertEntry(e); err != nil {
			return nil, err
		}
	}

	mid := rev.Next()
	if mid == nil {
		return nil, errors.Wrapf(storage.ErrBadPageID, "page %v has no median entry", page.pid)
	}
	if err := page.DeleteKeyAndRightChild(mid); err != nil {
		return nil, err
	}

	if err := bf.updateParentPointers(tid, dirty, right); err != nil {
		return nil, err
	}

	parent, err := bf.getParentWithEmptySlots(tid, dirty, page.ParentID(), mid.Key)
	if err != nil {
		return nil, err
	}
	if err := parent.InsertEntry(NewEntry(mid.Key, page.pid, right.pid)); err != nil {
		return nil, err
	}
	page.SetParentID(parent.pid)
	right.SetParentID(parent.pid)

	logger.L.WithField("prefix", "btree").
		Debugf("table %d: split internal %v, new sibling %v, pushed %s",
			bf.id, page.pid, right.pid, mid.Key)

	if key.Compare(types.GreaterThan, mid.Key) {
		return right, nil
	}
	return page, nil
}

// getParentWithEmptySlots returns parentID's page, ready to take one more
// entry: a brand-new root if the parent is the root pointer, split first if
// full.
func (bf *File) getParentWithEmptySlots(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	parentID storage.BTreePageID,
	key types.Field,
) (*InternalPage, error) {
	var parent *InternalPage

	if parentID.Cat == storage.RootPtr {
		pg, err := bf.emptyPage(tid, dirty, storage.Internal)
		if err != nil {
			return nil, err
		}
		parent = pg.(*InternalPage)

		rp, err := bf.rootPtr(tid, dirty)
		if err != nil {
			return nil, err
		}
		rp.SetRootID(parent.pid)
		logger.L.WithField("prefix", "btree").
			Debugf("table %d: new root %v", bf.id, parent.pid)
	} else {
		pg, err := bf.page(tid, dirty, parentID, storage.ReadWrite)
		if err != nil {
			return nil, err
		}
		parent = pg.(*InternalPage)
	}

	if parent.NumEmptySlots() == 0 {
		return bf.splitInternalPage(tid, dirty, parent, key)
	}
	return parent, nil
}

package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// handleMinOccupancyPage rebalances a page that fell under half occupancy:
// steal from a sibling that can spare entries, otherwise merge with it. The
// root is exempt.
func (bf *File) handleMinOccupancyPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page treePage,
) error {
	parentID := page.ParentID()
	if parentID.Cat == storage.RootPtr {
		return nil
	}

	ppg, err := bf.page(tid, dirty, parentID, storage.ReadWrite)
	if err != nil {
		return err
	}
	parent := ppg.(*InternalPage)

	pid := page.ID().(storage.BTreePageID)
	var leftEntry, rightEntry *Entry
	it := parent.Entries()
	for e := it.Next(); e != nil; e = it.Next() {
		if e.RightChild == pid {
			leftEntry = e
		}
		if e.LeftChild == pid && rightEntry == nil {
			rightEntry = e
		}
	}
	if leftEntry == nil && rightEntry == nil {
		return errors.Wrapf(storage.ErrBadPageID, "page %v is not a child of %v", pid, parent.pid)
	}

	switch p := page.(type) {
	case *LeafPage:
		if leftEntry != nil {
			return bf.rebalanceLeaf(tid, dirty, p, parent, leftEntry, false)
		}
		return bf.rebalanceLeaf(tid, dirty, p, parent, rightEntry, true)
	case *InternalPage:
		if leftEntry != nil {
			return bf.rebalanceInternal(tid, dirty, p, parent, leftEntry, false)
		}
		return bf.rebalanceInternal(tid, dirty, p, parent, rightEntry, true)
	}
	return errors.Wrapf(storage.ErrBadPageID, "page %v cannot be rebalanced", pid)
}

func (bf *File) rebalanceLeaf(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page *LeafPage,
	parent *InternalPage,
	entry *Entry,
	siblingOnRight bool,
) error {
	sibID := entry.LeftChild
	if siblingOnRight {
		sibID = entry.RightChild
	}
	spg, err := bf.page(tid, dirty, sibID, storage.ReadWrite)
	if err != nil {
		return err
	}
	sibling := spg.(*LeafPage)

	if canSteal(sibling.NumTuples(), sibling.NumSlots()) {
		return bf.stealFromLeafPage(page, sibling, parent, entry, siblingOnRight)
	}
	if siblingOnRight {
		return bf.mergeLeafPages(tid, dirty, page, sibling, parent, entry)
	}
	return bf.mergeLeafPages(tid, dirty, sibling, page, parent, entry)
}

// stealFromLeafPage moves tuples from the sibling until the two pages hold
// equally many, refreshing the parent entry's key after every move so it
// stays the first key of the right-hand page.
func (bf *File) stealFromLeafPage(
	page, sibling *LeafPage,
	parent *InternalPage,
	entry *Entry,
	siblingOnRight bool,
) error {
	for sibling.NumTuples() > page.NumTuples() {
		var t *tuple.Tuple
		if siblingOnRight {
			t = sibling.FirstTuple()
		} else {
			t = sibling.LastTuple()
		}
		if err := sibling.DeleteTuple(t); err != nil {
			return err
		}
		if err := page.InsertTuple(t); err != nil {
			return err
		}

		boundary := page.FirstTuple()
		if siblingOnRight {
			boundary = sibling.FirstTuple()
		}
		key, err := boundary.Field(bf.keyField)
		if err != nil {
			return err
		}
		entry.Key = key
		if err := parent.UpdateEntry(entry); err != nil {
			return err
		}
	}
	return nil
}

// mergeLeafPages empties right into left, unlinks right from the sibling
// chain, frees it and removes the bridging parent entry.
func (bf *File) mergeLeafPages(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	left, right *LeafPage,
	parent *InternalPage,
	entry *Entry,
) error {
	it := right.Iterator()
	if err := it.Open(); err != nil {
		return err
	}
	moved := make([]*tuple.Tuple, 0, right.NumTuples())
	for {
		has, err := it.HasNext()
		if err != nil {
			return err
		}
		if !has {
			break
		}
		t, err := it.Next()
		if err != nil {
			return err
		}
		moved = append(moved, t)
	}
	it.Close()

	for _, t := range moved {
		if err := right.DeleteTuple(t); err != nil {
			return err
		}
		if err := left.InsertTuple(t); err != nil {
			return err
		}
	}

	if rrID := right.RightSiblingID(); rrID != nil {
		rpg, err := bf.page(tid, dirty, *rrID, storage.ReadWrite)
		if err != nil {
			return err
		}
		rpg.(*LeafPage).SetLeftSiblingNo(left.pid.Page)
	}
	left.SetRightSiblingNo(right.right)

	logger.L.WithField("prefix", "btree").
		Debugf("table %d: merged leaf %v into %v", bf.id, right.pid, left.pid)

	if err := bf.setEmptyPage(tid, dirty, right.pid.Page); err != nil {
		return err
	}
	return bf.deleteParentEntry(tid, dirty, left, parent, entry)
}

func (bf *File) rebalanceInternal(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page *InternalPage,
	parent *InternalPage,
	entry *Entry,
	siblingOnRight bool,
) error {
	sibID := entry.LeftChild
	if siblingOnRight {
		sibID = entry.RightChild
	}
	spg, err := bf.page(tid, dirty, sibID, storage.ReadWrite)
	if err != nil {
		return err
	}
	sibling := spg.(*InternalPage)

	if canSteal(sibling.NumEntries(), sibling.MaxEntries()) {
		if siblingOnRight {
			return bf.stealFromRightInternalPage(tid, dirty, page, sibling, parent, entry)
		}
		return bf.stealFromLeftInternalPage(tid, dirty, page, sibling, parent, entry)
	}
	if siblingOnRight {
		return bf.mergeInternalPages(tid, dirty, page, sibling, parent, entry)
	}
	return bf.mergeInternalPages(tid, dirty, sibling, page, parent, entry)
}

// stealFromLeftInternalPage rotates entries through the parent: the parent
// key comes down as page's new leftmost entry, the sibling's last key goes
// up, and the stolen right child moves across.
func (bf *File) stealFromLeftInternalPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page, sibling *InternalPage,
	parent *InternalPage,
	entry *Entry,
) error {
	for sibling.NumEntries() > page.NumEntries() {
		stolen := sibling.LastEntry()
		first := page.FirstEntry()
		if stolen == nil || first == nil {
			return errors.Wrapf(storage.ErrBadPageID, "page %v ran out of entries mid-steal", page.pid)
		}

		if err := page.InsertEntry(NewEntry(entry.Key, stolen.RightChild, first.LeftChild)); err != nil {
			return err
		}
		if err := bf.updateParentPointer(tid, dirty, page.pid, stolen.RightChild); err != nil {
			return err
		}

		entry.Key = stolen.Key
		if err := parent.UpdateEntry(entry); err != nil {
			return err
		}
		if err := sibling.DeleteKeyAndRightChild(stolen); err != nil {
			return err
		}
	}
	return nil
}

// stealFromRightInternalPage mirrors stealFromLeftInternalPage for a right
// sibling.
func (bf *File) stealFromRightInternalPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	page, sibling *InternalPage,
	parent *InternalPage,
	entry *Entry,
) error {
	for sibling.NumEntries() > page.NumEntries() {
		stolen := sibling.FirstEntry()
		last := page.LastEntry()
		if stolen == nil || last == nil {
			return errors.Wrapf(storage.ErrBadPageID, "page %v ran out of entries mid-steal", page.pid)
		}

		if err := page.InsertEntry(NewEntry(entry.Key, last.RightChild, stolen.LeftChild)); err != nil {
			return err
		}
		if err := bf.updateParentPointer(tid, dirty, page.pid, stolen.LeftChild); err != nil {
			return err
		}

		entry.Key = stolen.Key
		if err := parent.UpdateEntry(entry); err != nil {
			return err
		}
		if err := sibling.DeleteKeyAndLeftChild(stolen); err != nil {
			return err
		}
	}
	return nil
}

// mergeInternalPages pulls the parent key down to bridge the two pages,
// empties right into left, reparents the moved children, frees right and
// removes the bridging parent entry.
func (bf *File) mergeInternalPages(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	left, right *InternalPage,
	parent *InternalPage,
	entry *Entry,
) error {
	leftLast := left.LastEntry()
	rightFirst := right.FirstEntry()
	if leftLast == nil || rightFirst == nil {
		return errors.Wrapf(storage.ErrBadPageID, "cannot merge %v and %v", left.pid, right.pid)
	}
	if err := left.InsertEntry(NewEntry(entry.Key, leftLast.RightChild, rightFirst.LeftChild)); err != nil {
		return err
	}

	moved := make([]*Entry, 0, right.NumEntries())
	it := right.Entries()
	for e := it.Next(); e != nil; e = it.Next() {
		moved = append(moved, e)
	}
	for _, e := range moved {
		if err := right.DeleteKeyAndRightChild(e); err != nil {
			return err
		}
		if err := left.InsertEntry(e); err != nil {
			return err
		}
	}

	if err := bf.updateParentPointers(tid, dirty, left); err != nil {
		return err
	}

	logger.L.WithField("prefix", "btree").
		Debugf("table %d: merged internal %v into %v", bf.id, right.pid, left.pid)

	if err := bf.setEmptyPage(tid, dirty, right.pid.Page); err != nil {
		return err
	}
	return bf.deleteParentEntry(tid, dirty, left, parent, entry)
}

// deleteParentEntry removes the bridging entry after a merge. An emptied
// root collapses: its surviving child is promoted through the root pointer.
func (bf *File) deleteParentEntry(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	leftPage treePage,
	parent *InternalPage,
	entry *Entry,
) error {
	if err := parent.DeleteKeyAndRightChild(entry); err != nil {
		return err
	}

	if parent.NumEntries() == 0 {
		if parent.ParentID().Cat != storage.RootPtr {
			return errors.Wrapf(storage.ErrBadPageID,
				"non-root internal page %v emptied out", parent.pid)
		}
		rp, err := bf.rootPtr(tid, dirty)
		if err != nil {
			return err
		}
		leftID := leftPage.ID().(storage.BTreePageID)
		rp.SetRootID(leftID)
		leftPage.SetParentID(bf.rootPtrPID())
		logger.L.WithField("prefix", "btree").
			Debugf("table %d: root collapsed to %v", bf.id, leftID)
		return bf.setEmptyPage(tid, dirty, parent.pid.Page)
	}

	if belowMinOccupancy(parent.NumEntries(), parent.MaxEntries()) {
		return bf.handleMinOccupancyPage(tid, dirty, parent)
	}
	return nil
}

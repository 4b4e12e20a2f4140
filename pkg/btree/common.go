package btree

import (
	"encoding/binary"

	"go-reldb/pkg/storage"
)

var bin = binary.LittleEndian

const (
	// RootPtrSize is the size of the root-pointer block at offset 0 of the
	// backing file. Data pages follow it, numbered from 1.
	RootPtrSize = 8

	// indexSize is the width of one on-disk page-number reference.
	indexSize = 4
)

// belowMinOccupancy reports whether a page with the given live count has
// fallen under half occupancy and needs rebalancing.
func belowMinOccupancy(used, max int) bool {
	return used < (max+1)/2
}

// canSteal reports whether a sibling holds enough entries to give some away
// instead of merging.
func canSteal(siblingUsed, max int) bool {
	return siblingUsed > (max+1)/2
}

// dirtyState carries the dirty-transaction bookkeeping shared by every page
// kind of the file.
type dirtyState struct {
	dirty    bool
	dirtyTID storage.TransactionID
}

func (d *dirtyState) MarkDirty(dirty bool, tid storage.TransactionID) {
	d.dirty = dirty
	if dirty {
		d.dirtyTID = tid
	} else {
		d.dirtyTID = storage.TransactionID{}
	}
}

func (d *dirtyState) DirtiedBy() (storage.TransactionID, bool) {
	return d.dirtyTID, d.dirty
}

// treePage is the common surface of leaf and internal pages: the pages that
// participate in the structural protocol and carry a parent pointer.
type treePage interface {
	storage.Page
	ParentID() storage.BTreePageID
	SetParentID(storage.BTreePageID)
}

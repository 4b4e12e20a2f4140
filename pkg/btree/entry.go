package btree

import (
	"fmt"

	"go-reldb/pkg/storage"
	"go-reldb/pkg/types"
)

// Entry is one routing entry of an internal page: a key and the children on
// either side of it. Entries produced by a page iterator remember the page
// and slot they came from, which UpdateEntry and the delete methods use to
// address them in place.
type Entry struct {
	Key        types.Field
	LeftChild  storage.BTreePageID
	RightChild storage.BTreePageID

	pid  storage.BTreePageID
	slot int
}

func NewEntry(key types.Field, left, right storage.BTreePageID) *Entry {
	return &Entry{Key: key, LeftChild: left, RightChild: right}
}

func (e *Entry) String() string {
	return fmt.Sprintf("[%v|%s|%v]", e.LeftChild.Page, e.Key, e.RightChild.Page)
}

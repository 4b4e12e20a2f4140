// Package btree implements the B+ tree file: tuples kept in key order in
// leaf pages, routed by internal pages, with a root-pointer block at the
// start of the file and a header-page chain tracking reusable pages. Insert
// and delete maintain the tree with splits, redistribution and merges.
package btree

import (
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// File is a B+ tree file sorted on one field of its schema. Structural
// operations carry a per-call map of the pages they have touched for
// writing, so that recursive steps observe each page's latest image before
// the buffer pool does.
type File struct {
	f        *os.File
	path     string
	id       int32
	desc     *tuple.Desc
	keyField int
	pool     *bufferpool.Pool

	appendMu sync.Mutex
}

// Open opens (creating if absent) the B+ tree file at path, indexed on the
// keyField-th field of desc. A fresh file gets a zeroed root-pointer block.
func Open(path string, desc *tuple.Desc, keyField int, pool *bufferpool.Pool) (*File, error) {
	if keyField < 0 || keyField >= desc.NumFields() {
		return nil, errors.Wrapf(storage.ErrTypeMismatch, "key field %d out of range", keyField)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}
	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open btree file %s", abs)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat %s", abs)
	}
	if info.Size() < RootPtrSize {
		if _, err := f.WriteAt(EmptyRootPtrData(), 0); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "failed to initialize %s", abs)
		}
	}

	h := fnv.New32a()
	h.Write([]byte(abs))
	return &File{
		f:        f,
		path:     abs,
		id:       int32(h.Sum32()),
		desc:     desc,
		keyField: keyField,
		pool:     pool,
	}, nil
}

func (bf *File) ID() int32 {
	return bf.id
}

func (bf *File) Desc() *tuple.Desc {
	return bf.desc
}

// KeyField returns the index of the field the file is sorted on.
func (bf *File) KeyField() int {
	return bf.keyField
}

// Close closes the backing file handle.
func (bf *File) Close() error {
	return errors.Wrapf(bf.f.Close(), "failed to close %s", bf.path)
}

// NumPages returns the number of data pages after the root-pointer block.
func (bf *File) NumPages() int {
	info, err := bf.f.Stat()
	if err != nil {
		logger.L.WithField("prefix", "btree").
			Warnf("failed to stat %s: %v", bf.path, err)
		return 0
	}
	return int(info.Size()-RootPtrSize) / bf.pool.PageSize()
}

func (bf *File) rootPtrPID() storage.BTreePageID {
	return storage.BTreePageID{Table: bf.id, Page: 0, Cat: storage.RootPtr}
}

func (bf *File) headerPID(no int) storage.BTreePageID {
	return storage.BTreePageID{Table: bf.id, Page: no, Cat: storage.Header}
}

// ReadPage reads and decodes the named page from disk.
func (bf *File) ReadPage(pid storage.PageID) (storage.Page, error) {
	bpid, ok := pid.(storage.BTreePageID)
	if !ok || bpid.Table != bf.id {
		return nil, errors.Wrapf(storage.ErrBadPageID, "%v is not a page of table %d", pid, bf.id)
	}

	if bpid.Cat == storage.RootPtr {
		buf := make([]byte, RootPtrSize)
		if _, err := bf.f.ReadAt(buf, 0); err != nil {
			return nil, errors.Wrapf(err, "failed to read root pointer of table %d", bf.id)
		}
		return NewRootPtrPage(bf.id, buf)
	}

	if bpid.Page < 1 || bpid.Page > bf.NumPages() {
		return nil, errors.Wrapf(storage.ErrBadPageID, "%v is out of range", pid)
	}

	pageSize := bf.pool.PageSize()
	buf := make([]byte, pageSize)
	off := RootPtrSize + int64(bpid.Page-1)*int64(pageSize)
	if _, err := bf.f.ReadAt(buf, off); err != nil {
		return nil, errors.Wrapf(err, "failed to read page %v", pid)
	}

	switch bpid.Cat {
	case storage.Leaf:
		return NewLeafPage(bpid, bf.desc, bf.keyField, pageSize, buf)
	case storage.Internal:
		return NewInternalPage(bpid, bf.desc, bf.keyField, pageSize, buf)
	case storage.Header:
		return NewHeaderPage(bpid, pageSize, buf)
	}
	return nil, errors.Wrapf(storage.ErrBadPageID, "%v has unknown category", pid)
}

// WritePage writes the page image back to its block.
func (bf *File) WritePage(p storage.Page) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize page %v", p.ID())
	}

	var off int64
	if bpid := p.ID().(storage.BTreePageID); bpid.Cat == storage.RootPtr {
		off = 0
	} else {
		off = RootPtrSize + int64(bpid.Page-1)*int64(bf.pool.PageSize())
	}
	if _, err := bf.f.WriteAt(data, off); err != nil {
		return errors.Wrapf(err, "failed to write page %v", p.ID())
	}
	return nil
}

// page serves a page for a structural operation: the operation's own dirty
// map wins over the buffer pool, and every page fetched for writing is
// remembered there.
func (bf *File) page(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	pid storage.BTreePageID,
	perm storage.Permissions,
) (storage.Page, error) {
	if pg, ok := dirty[pid]; ok {
		return pg, nil
	}
	pg, err := bf.pool.GetPage(tid, pid, perm)
	if err != nil {
		return nil, err
	}
	if perm == storage.ReadWrite {
		dirty[pid] = pg
	}
	return pg, nil
}

func (bf *File) rootPtr(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
) (*RootPtrPage, error) {
	pg, err := bf.page(tid, dirty, bf.rootPtrPID(), storage.ReadWrite)
	if err != nil {
		return nil, err
	}
	return pg.(*RootPtrPage), nil
}

func dirtyValues(dirty map[storage.PageID]storage.Page) []storage.Page {
	pages := make([]storage.Page, 0, len(dirty))
	for _, pg := range dirty {
		pages = append(pages, pg)
	}
	return pages
}

// InsertTuple adds t in key order, splitting the leaf (and any full
// ancestors) as needed. Returns every page the operation wrote.
func (bf *File) InsertTuple(tid storage.TransactionID, t *tuple.Tuple) ([]storage.Page, error) {
	key, err := t.Field(bf.keyField)
	if err != nil {
		return nil, err
	}

	dirty := map[storage.PageID]storage.Page{}
	rp, err := bf.rootPtr(tid, dirty)
	if err != nil {
		return nil, err
	}

	var leaf *LeafPage
	if rootID := rp.RootID(); rootID == nil {
		pg, err := bf.emptyPage(tid, dirty, storage.Leaf)
		if err != nil {
			return nil, err
		}
		leaf = pg.(*LeafPage)
		rp.SetRootID(leaf.pid)
		logger.L.WithField("prefix", "btree").
			Debugf("table %d: created root leaf %v", bf.id, leaf.pid)
	} else {
		leaf, err = bf.findLeafPage(tid, dirty, *rootID, storage.ReadWrite, key)
		if err != nil {
			return nil, err
		}
		if leaf.NumEmptySlots() == 0 {
			leaf, err = bf.splitLeafPage(tid, dirty, leaf, key)
			if err != nil {
				return nil, err
			}
		}
	}

	if err := leaf.InsertTuple(t); err != nil {
		return nil, err
	}
	return dirtyValues(dirty), nil
}

// DeleteTuple removes t from its leaf and rebalances the tree if the leaf
// falls under half occupancy. Returns every page the operation wrote.
func (bf *File) DeleteTuple(tid storage.TransactionID, t *tuple.Tuple) ([]storage.Page, error) {
	rid := t.RecordID()
	if rid == nil {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "tuple has no record id")
	}
	pid, ok := rid.PID.(storage.BTreePageID)
	if !ok || pid.Cat != storage.Leaf {
		return nil, errors.Wrapf(storage.ErrBadPageID, "%v is not a leaf page", rid.PID)
	}

	dirty := map[storage.PageID]storage.Page{}
	pg, err := bf.page(tid, dirty, pid, storage.ReadWrite)
	if err != nil {
		return nil, err
	}
	leaf := pg.(*LeafPage)
	if err := leaf.DeleteTuple(t); err != nil {
		return nil, err
	}

	if belowMinOccupancy(leaf.NumTuples(), leaf.NumSlots()) {
		if err := bf.handleMinOccupancyPage(tid, dirty, leaf); err != nil {
			return nil, err
		}
	}
	return dirtyValues(dirty), nil
}

// findLeafPage descends from pid to the leaf where key belongs. Internal
// pages are locked read-only; the leaf is locked with perm. A nil key
// descends to the leftmost leaf.
func (bf *File) findLeafPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	pid storage.BTreePageID,
	perm storage.Permissions,
	key types.Field,
) (*LeafPage, error) {
	if pid.Cat == storage.Leaf {
		pg, err := bf.page(tid, dirty, pid, perm)
		if err != nil {
			return nil, err
		}
		return pg.(*LeafPage), nil
	}

	pg, err := bf.page(tid, dirty, pid, storage.ReadOnly)
	if err != nil {
		return nil, err
	}
	node := pg.(*InternalPage)

	it := node.Entries()
	first := it.Next()
	if first == nil {
		return nil, errors.Wrapf(storage.ErrBadPageID, "internal page %v has no entries", pid)
	}

	child := first.LeftChild
	if key != nil {
		found := false
		last := first
		for e := first; e != nil; e = it.Next() {
			last = e
			if e.Key.Compare(types.GreaterThanOrEq, key) {
				child = e.LeftChild
				found = true
				break
			}
		}
		if !found {
			child = last.RightChild
		}
	}
	return bf.findLeafPage(tid, dirty, child, perm, key)
}

// findLeafPageReverse descends to the leaf a reverse traversal starts from:
// the rightmost leaf for a nil key, otherwise the rightmost leaf that can
// hold keys <= key.
func (bf *File) findLeafPageReverse(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	pid storage.BTreePageID,
	perm storage.Permissions,
	key types.Field,
) (*LeafPage, error) {
	if pid.Cat == storage.Leaf {
		pg, err := bf.page(tid, dirty, pid, perm)
		if err != nil {
			return nil, err
		}
		return pg.(*LeafPage), nil
	}

	pg, err := bf.page(tid, dirty, pid, storage.ReadOnly)
	if err != nil {
		return nil, err
	}
	node := pg.(*InternalPage)

	it := node.ReverseEntries()
	first := it.Next()
	if first == nil {
		return nil, errors.Wrapf(storage.ErrBadPageID, "internal page %v has no entries", pid)
	}

	child := first.RightChild
	if key != nil {
		found := false
		last := first
		for e := first; e != nil; e = it.Next() {
			last = e
			if e.Key.Compare(types.LessThanOrEq, key) {
				child = e.RightChild
				found = true
				break
			}
		}
		if !found {
			child = last.LeftChild
		}
	}
	return bf.findLeafPageReverse(tid, dirty, child, perm, key)
}

// updateParentPointer repoints child's parent to pid, fetching the child for
// writing only when the pointer actually changes.
func (bf *File) updateParentPointer(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	pid storage.BTreePageID,
	child storage.BTreePageID,
) error {
	pg, err := bf.page(tid, dirty, child, storage.ReadOnly)
	if err != nil {
		return err
	}
	if pg.(treePage).ParentID() == pid {
		return nil
	}

	pg, err = bf.page(tid, dirty, child, storage.ReadWrite)
	if err != nil {
		return err
	}
	pg.(treePage).SetParentID(pid)
	return nil
}

// updateParentPointers repoints every child of node to it.
func (bf *File) updateParentPointers(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	node *InternalPage,
) error {
	it := node.Entries()
	e := it.Next()
	if e == nil {
		return nil
	}
	if err := bf.updateParentPointer(tid, dirty, node.pid, e.LeftChild); err != nil {
		return err
	}
	for ; e != nil; e = it.Next() {
		if err := bf.updateParentPointer(tid, dirty, node.pid, e.RightChild); err != nil {
			return err
		}
	}
	return nil
}

// Iterator scans the whole file in ascending key order.
func (bf *File) Iterator(tid storage.TransactionID) tuple.Iterator {
	return &treeIterator{f: bf, tid: tid}
}

// ReverseIterator scans the whole file in descending key order.
func (bf *File) ReverseIterator(tid storage.TransactionID) tuple.Iterator {
	return &treeIterator{f: bf, tid: tid, reverse: true}
}

// IndexIterator scans only the tuples matching pred, choosing the traversal
// direction that lets the scan start at the predicate key and stop early.
func (bf *File) IndexIterator(tid storage.TransactionID, pred IndexPredicate) tuple.Iterator {
	reverse := pred.Op == types.LessThan || pred.Op == types.LessThanOrEq
	return &treeIterator{f: bf, tid: tid, pred: &pred, reverse: reverse}
}

package heap

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"

	"github.com/pkg/errors"
)

// fileIterator walks the file's pages in order, yielding the live tuples of
// each page through a nested slot iterator.
type fileIterator struct {
	f   *File
	tid storage.TransactionID

	opened bool
	pageNo int
	slots  tuple.Iterator
}

func (it *fileIterator) Open() error {
	it.opened = true
	it.pageNo = 0
	it.slots = nil
	return nil
}

func (it *fileIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}

	for {
		if it.slots == nil {
			if it.pageNo >= it.f.NumPages() {
				return false, nil
			}
			pid := storage.HeapPageID{Table: it.f.id, Page: it.pageNo}
			pg, err := it.f.pool.GetPage(it.tid, pid, storage.ReadOnly)
			if err != nil {
				return false, err
			}
			it.slots = pg.(*Page).Iterator()
			if err := it.slots.Open(); err != nil {
				return false, err
			}
		}

		has, err := it.slots.HasNext()
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}

		it.slots.Close()
		it.slots = nil
		it.pageNo++
	}
}

func (it *fileIterator) Next() (*tuple.Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	return it.slots.Next()
}

func (it *fileIterator) Rewind() error {
	it.Close()
	return it.Open()
}

func (it *fileIterator) Close() {
	if it.slots != nil {
		it.slots.Close()
		it.slots = nil
	}
	it.opened = false
}

package btree

import (
	"io"

	"go-reldb/pkg/storage"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// emptyPageNo returns the number of a page free for reuse, scanning the
// header chain first and growing the file only when no freed page exists.
func (bf *File) emptyPageNo(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
) (int, error) {
	rp, err := bf.rootPtr(tid, dirty)
	if err != nil {
		return 0, err
	}

	slotsPer := HeaderSlots(bf.pool.PageSize())
	headerIdx := 0
	for no := rp.HeaderPageNo(); no != 0; headerIdx++ {
		pg, err := bf.page(tid, dirty, bf.headerPID(no), storage.ReadWrite)
		if err != nil {
			return 0, err
		}
		hp := pg.(*HeaderPage)
		if slot := hp.FirstFreeSlot(); slot >= 0 {
			hp.MarkSlotUsed(slot, true)
			pageNo := headerIdx*slotsPer + slot
			logger.L.WithField("prefix", "btree").
				Debugf("table %d: reusing page %d", bf.id, pageNo)
			return pageNo, nil
		}
		no = hp.NextPageNo()
	}

	return bf.appendBlock()
}

// appendBlock grows the backing file by one zeroed block and returns its
// page number.
func (bf *File) appendBlock() (int, error) {
	bf.appendMu.Lock()
	defer bf.appendMu.Unlock()

	pageNo := bf.NumPages() + 1
	if _, err := bf.f.Seek(0, io.SeekEnd); err != nil {
		return 0, errors.Wrapf(err, "failed to seek %s", bf.path)
	}
	if _, err := bf.f.Write(make([]byte, bf.pool.PageSize())); err != nil {
		return 0, errors.Wrapf(err, "failed to grow %s", bf.path)
	}
	return pageNo, nil
}

// emptyPage allocates a fresh in-memory page of the given category on a free
// page number. Any stale pool image of that number is dropped; the new page
// lives in the operation's dirty map until flushed.
func (bf *File) emptyPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	cat storage.PageCategory,
) (storage.Page, error) {
	no, err := bf.emptyPageNo(tid, dirty)
	if err != nil {
		return nil, err
	}

	pid := storage.BTreePageID{Table: bf.id, Page: no, Cat: cat}
	var pg storage.Page
	switch cat {
	case storage.Leaf:
		pg = NewEmptyLeafPage(pid, bf.desc, bf.keyField, bf.pool.PageSize())
	case storage.Internal:
		pg = NewEmptyInternalPage(pid, bf.desc, bf.keyField, bf.pool.PageSize())
	case storage.Header:
		pg = NewEmptyHeaderPage(pid, bf.pool.PageSize())
	default:
		return nil, errors.Wrapf(storage.ErrBadPageID, "cannot allocate a %s page", cat)
	}

	bf.pool.DiscardPage(pid)
	dirty[pid] = pg
	return pg, nil
}

// setEmptyPage records pageNo as reusable in the header chain, extending the
// chain (and creating it on first use) to cover the page number.
func (bf *File) setEmptyPage(
	tid storage.TransactionID,
	dirty map[storage.PageID]storage.Page,
	pageNo int,
) error {
	rp, err := bf.rootPtr(tid, dirty)
	if err != nil {
		return err
	}

	slotsPer := HeaderSlots(bf.pool.PageSize())

	headerNo := rp.HeaderPageNo()
	if headerNo == 0 {
		pg, err := bf.emptyPage(tid, dirty, storage.Header)
		if err != nil {
			return err
		}
		hp := pg.(*HeaderPage)
		headerNo = hp.pid.Page
		rp.SetHeaderPageNo(headerNo)
	}

	targetIdx := pageNo / slotsPer
	slot := pageNo % slotsPer

	no := headerNo
	for i := 0; ; i++ {
		pg, err := bf.page(tid, dirty, bf.headerPID(no), storage.ReadWrite)
		if err != nil {
			return err
		}
		hp := pg.(*HeaderPage)
		if i == targetIdx {
			hp.MarkSlotUsed(slot, false)
			logger.L.WithField("prefix", "btree").
				Debugf("table %d: freed page %d", bf.id, pageNo)
			return nil
		}

		next := hp.NextPageNo()
		if next == 0 {
			npg, err := bf.emptyPage(tid, dirty, storage.Header)
			if err != nil {
				return err
			}
			nh := npg.(*HeaderPage)
			nh.SetPrevPageNo(no)
			hp.SetNextPageNo(nh.pid.Page)
			next = nh.pid.Page
		}
		no = next
	}
}

package heap

import (
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// File is a heap file: numPages fixed-size Page blocks with no file header.
// Page i occupies bytes [i*pageSize, (i+1)*pageSize). All page access of a
// live transaction goes through the buffer pool; only growing the file
// bypasses it, guarded by appendMu.
type File struct {
	f    *os.File
	path string
	id   int32
	desc *tuple.Desc
	pool *bufferpool.Pool

	appendMu sync.Mutex
}

// Open opens (creating if absent) the heap file at path. A file whose length
// is not a multiple of the page size is rejected.
func Open(path string, desc *tuple.Desc, pool *bufferpool.Pool) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve %s", path)
	}
	f, err := os.OpenFile(abs, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open heap file %s", abs)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "failed to stat %s", abs)
	}
	if info.Size()%int64(pool.PageSize()) != 0 {
		f.Close()
		return nil, errors.Errorf("heap file %s: length %d is not a multiple of the page size %d",
			abs, info.Size(), pool.PageSize())
	}
	return &File{
		f:    f,
		path: abs,
		id:   fileID(abs),
		desc: desc,
		pool: pool,
	}, nil
}

// fileID fingerprints the absolute backing-file path into a table id.
func fileID(abs string) int32 {
	h := fnv.New32a()
	h.Write([]byte(abs))
	return int32(h.Sum32())
}

func (hf *File) ID() int32 {
	return hf.id
}

func (hf *File) Desc() *tuple.Desc {
	return hf.desc
}

// Close closes the backing file handle.
func (hf *File) Close() error {
	return errors.Wrapf(hf.f.Close(), "failed to close %s", hf.path)
}

// NumPages returns the current page count. The file length is kept an exact
// multiple of the page size.
func (hf *File) NumPages() int {
	info, err := hf.f.Stat()
	if err != nil {
		logger.L.WithField("prefix", "heap").
			Warnf("failed to stat %s: %v", hf.path, err)
		return 0
	}
	return int(info.Size()) / hf.pool.PageSize()
}

// ReadPage reads the named page image from disk.
func (hf *File) ReadPage(pid storage.PageID) (storage.Page, error) {
	hpid, ok := pid.(storage.HeapPageID)
	if !ok || hpid.Table != hf.id {
		return nil, errors.Wrapf(storage.ErrBadPageID, "%v is not a page of table %d", pid, hf.id)
	}
	if hpid.Page < 0 || hpid.Page >= hf.NumPages() {
		return nil, errors.Wrapf(storage.ErrBadPageID, "%v is out of range", pid)
	}

	pageSize := hf.pool.PageSize()
	buf := make([]byte, pageSize)
	if _, err := hf.f.ReadAt(buf, int64(hpid.Page)*int64(pageSize)); err != nil {
		return nil, errors.Wrapf(err, "failed to read page %v", pid)
	}
	return NewPage(hpid, hf.desc, pageSize, buf)
}

// WritePage writes the page image back to its block.
func (hf *File) WritePage(p storage.Page) error {
	data, err := p.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "failed to serialize page %v", p.ID())
	}
	off := int64(p.ID().PageNo()) * int64(hf.pool.PageSize())
	if _, err := hf.f.WriteAt(data, off); err != nil {
		return errors.Wrapf(err, "failed to write page %v", p.ID())
	}
	return nil
}

// InsertTuple probes pages in order for a free slot, releasing the lock on
// every full page it skipped. When all pages are full a zeroed block is
// appended outside the pool, then filled through it.
func (hf *File) InsertTuple(tid storage.TransactionID, t *tuple.Tuple) ([]storage.Page, error) {
	for i := 0; i < hf.NumPages(); i++ {
		pid := storage.HeapPageID{Table: hf.id, Page: i}
		pg, err := hf.pool.GetPage(tid, pid, storage.ReadWrite)
		if err != nil {
			return nil, err
		}
		hp := pg.(*Page)
		if hp.NumEmptySlots() == 0 {
			hf.pool.ReleasePage(tid, pid)
			continue
		}
		if err := hp.InsertTuple(t); err != nil {
			return nil, err
		}
		return []storage.Page{hp}, nil
	}

	pid, err := hf.appendEmptyPage()
	if err != nil {
		return nil, err
	}
	pg, err := hf.pool.GetPage(tid, pid, storage.ReadWrite)
	if err != nil {
		return nil, err
	}
	hp := pg.(*Page)
	if err := hp.InsertTuple(t); err != nil {
		return nil, err
	}
	return []storage.Page{hp}, nil
}

// appendEmptyPage grows the file by one zeroed block and returns its id.
func (hf *File) appendEmptyPage() (storage.HeapPageID, error) {
	hf.appendMu.Lock()
	defer hf.appendMu.Unlock()

	pageNo := hf.NumPages()
	if _, err := hf.f.Seek(0, io.SeekEnd); err != nil {
		return storage.HeapPageID{}, errors.Wrapf(err, "failed to seek %s", hf.path)
	}
	if _, err := hf.f.Write(EmptyPageData(hf.pool.PageSize())); err != nil {
		return storage.HeapPageID{}, errors.Wrapf(err, "failed to grow %s", hf.path)
	}

	logger.L.WithField("prefix", "heap").
		Debugf("appended page %d to table %d", pageNo, hf.id)
	return storage.HeapPageID{Table: hf.id, Page: pageNo}, nil
}

// DeleteTuple removes t from the page its record id names.
func (hf *File) DeleteTuple(tid storage.TransactionID, t *tuple.Tuple) ([]storage.Page, error) {
	rid := t.RecordID()
	if rid == nil {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "tuple has no record id")
	}

	pg, err := hf.pool.GetPage(tid, rid.PID, storage.ReadWrite)
	if err != nil {
		return nil, err
	}
	hp := pg.(*Page)
	if err := hp.DeleteTuple(t); err != nil {
		return nil, err
	}
	return []storage.Page{hp}, nil
}

// Iterator scans every live tuple of the file, page by page, under
// read-only locks.
func (hf *File) Iterator(tid storage.TransactionID) tuple.Iterator {
	return &fileIterator{f: hf, tid: tid}
}

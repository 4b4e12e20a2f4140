// Package bufferpool implements the shared page cache. Every page access of
// a live transaction goes through the pool: GetPage acquires the page lock,
// then serves the cached image or loads it from the owning file. The pool is
// no-steal: dirty pages are never evicted, and a transaction's dirty pages
// are flushed on commit or discarded on abort.
package bufferpool

import (
	"sync"

	"go-reldb/pkg/lock"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// DefaultPages is the default pool capacity in pages.
const DefaultPages = 50

// DbFile is a file of tuples: a heap file or a B+ tree file. Page ids of a
// file translate to offsets in its backing file; InsertTuple and DeleteTuple
// return every page they dirtied.
type DbFile interface {
	ID() int32
	Desc() *tuple.Desc
	ReadPage(pid storage.PageID) (storage.Page, error)
	WritePage(p storage.Page) error
	NumPages() int
	InsertTuple(tid storage.TransactionID, t *tuple.Tuple) ([]storage.Page, error)
	DeleteTuple(tid storage.TransactionID, t *tuple.Tuple) ([]storage.Page, error)
	Iterator(tid storage.TransactionID) tuple.Iterator
}

// FileResolver maps a table id to its DbFile. The catalog implements this.
type FileResolver interface {
	DatabaseFile(tableID int32) (DbFile, error)
}

// Pool is the buffer pool: a bounded PageID -> Page cache fronted by the
// lock manager.
type Pool struct {
	pageSize int
	capacity int
	locks    *lock.Manager
	files    FileResolver

	mu    sync.Mutex
	pages map[storage.PageID]storage.Page
}

func New(pageSize, capacity int, files FileResolver) *Pool {
	if capacity <= 0 {
		capacity = DefaultPages
	}
	return &Pool{
		pageSize: pageSize,
		capacity: capacity,
		locks:    lock.NewManager(),
		files:    files,
		pages:    make(map[storage.PageID]storage.Page, capacity),
	}
}

// PageSize returns the page size of the database, in bytes.
func (p *Pool) PageSize() int {
	return p.pageSize
}

// GetPage returns the page named by pid, locked for tid with the given
// permission. Blocks until the lock is granted; a detected deadlock aborts
// with storage.ErrTransactionAborted.
func (p *Pool) GetPage(tid storage.TransactionID, pid storage.PageID, perm storage.Permissions) (storage.Page, error) {
	if err := p.locks.Acquire(tid, pid, perm); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if pg, ok := p.pages[pid]; ok {
		return pg, nil
	}

	f, err := p.files.DatabaseFile(pid.TableID())
	if err != nil {
		return nil, err
	}
	pg, err := f.ReadPage(pid)
	if err != nil {
		return nil, err
	}

	if err := p.makeRoom(); err != nil {
		return nil, err
	}
	p.pages[pid] = pg
	return pg, nil
}

// ReleasePage unconditionally drops tid's lock on pid. Only safe when the
// transaction mutated nothing on the page; used to back out of a full-page
// insert probe.
func (p *Pool) ReleasePage(tid storage.TransactionID, pid storage.PageID) {
	p.locks.Release(tid, pid)
}

// HoldsLock reports whether tid holds a lock on pid.
func (p *Pool) HoldsLock(tid storage.TransactionID, pid storage.PageID) bool {
	return p.locks.HoldsLock(tid, pid)
}

// InsertTuple adds t to the named table on behalf of tid, marking every
// page the file dirtied.
func (p *Pool) InsertTuple(tid storage.TransactionID, tableID int32, t *tuple.Tuple) error {
	f, err := p.files.DatabaseFile(tableID)
	if err != nil {
		return err
	}

	dirtied, err := f.InsertTuple(tid, t)
	if err != nil {
		return err
	}
	p.admitDirty(tid, dirtied)
	return nil
}

// DeleteTuple removes t from its table on behalf of tid. The tuple must
// carry a record id.
func (p *Pool) DeleteTuple(tid storage.TransactionID, t *tuple.Tuple) error {
	rid := t.RecordID()
	if rid == nil {
		return errors.Wrap(storage.ErrNoSuchTuple, "tuple has no record id")
	}

	f, err := p.files.DatabaseFile(rid.PID.TableID())
	if err != nil {
		return err
	}

	dirtied, err := f.DeleteTuple(tid, t)
	if err != nil {
		return err
	}
	p.admitDirty(tid, dirtied)
	return nil
}

func (p *Pool) admitDirty(tid storage.TransactionID, pages []storage.Page) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range pages {
		pg.MarkDirty(true, tid)
		p.pages[pg.ID()] = pg
	}
}

// TransactionComplete ends tid. On commit the pages it dirtied are flushed
// and kept; on abort they are discarded so the next access reloads them
// from disk. All of tid's locks are released either way.
func (p *Pool) TransactionComplete(tid storage.TransactionID, commit bool) error {
	p.mu.Lock()
	for pid, pg := range p.pages {
		by, dirty := pg.DirtiedBy()
		if !dirty || by != tid {
			continue
		}

		if commit {
			if err := p.flushLocked(pg); err != nil {
				p.mu.Unlock()
				return err
			}
			pg.SetBeforeImage()
		} else {
			delete(p.pages, pid)
		}
	}
	p.mu.Unlock()

	p.locks.ReleaseAll(tid)
	return nil
}

// FlushAllPages writes every dirty cached page to disk and marks it clean.
func (p *Pool) FlushAllPages() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range p.pages {
		if _, dirty := pg.DirtiedBy(); !dirty {
			continue
		}
		if err := p.flushLocked(pg); err != nil {
			return err
		}
	}
	return nil
}

// FlushPage writes the named page if cached and dirty.
func (p *Pool) FlushPage(pid storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pg, ok := p.pages[pid]
	if !ok {
		return nil
	}
	if _, dirty := pg.DirtiedBy(); !dirty {
		return nil
	}
	return p.flushLocked(pg)
}

func (p *Pool) flushLocked(pg storage.Page) error {
	f, err := p.files.DatabaseFile(pg.ID().TableID())
	if err != nil {
		return err
	}
	if err := f.WritePage(pg); err != nil {
		return errors.Wrapf(err, "failed to flush page %v", pg.ID())
	}
	pg.MarkDirty(false, storage.TransactionID{})
	return nil
}

// DiscardPage drops pid from the cache without writing it. Lock state is
// untouched.
func (p *Pool) DiscardPage(pid storage.PageID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pages, pid)
}

// makeRoom evicts one clean page if the cache is full. Never steals a dirty
// page: if every cached page is dirty the pool is exhausted.
func (p *Pool) makeRoom() error {
	if len(p.pages) < p.capacity {
		return nil
	}

	for pid, pg := range p.pages {
		if _, dirty := pg.DirtiedBy(); dirty {
			continue
		}
		delete(p.pages, pid)
		logger.L.WithField("prefix", "bufferpool").Debugf("evicted clean page %v", pid)
		return nil
	}
	return errors.WithStack(storage.ErrPoolExhausted)
}

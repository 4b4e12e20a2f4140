// Package lock implements the page-granular lock table of the engine.
// Transactions take shared or exclusive locks on page ids and hold them
// until commit or abort (strict two-phase locking). A single monitor
// serializes all grant decisions; waiters poll with a short backoff and run
// wait-for-graph deadlock detection before every retry.
package lock

import (
	"sync"
	"time"

	"go-reldb/pkg/storage"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// Mode is the strength of a held lock.
type Mode uint8

const (
	Shared Mode = iota
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "X"
	}
	return "S"
}

// retryBackoff is the sleep between grant attempts of a blocked waiter.
const retryBackoff = 2 * time.Millisecond

type holder struct {
	tid  storage.TransactionID
	mode Mode
}

// Manager is the lock table. All mutating methods serialize under mu.
type Manager struct {
	mu sync.Mutex

	// holders maps a page to the transactions currently holding it.
	holders map[storage.PageID][]holder

	// waiting records, for each blocked transaction, the page it waits on.
	// Edges of the wait-for graph are read from here during detection.
	waiting map[storage.TransactionID]storage.PageID
}

func NewManager() *Manager {
	return &Manager{
		holders: map[storage.PageID][]holder{},
		waiting: map[storage.TransactionID]storage.PageID{},
	}
}

func modeFor(perm storage.Permissions) Mode {
	if perm == storage.ReadWrite {
		return Exclusive
	}
	return Shared
}

// Acquire blocks until tid holds a lock of the requested strength on pid,
// or deadlock is detected, in which case storage.ErrTransactionAborted is
// returned and the caller is expected to abort the transaction.
func (m *Manager) Acquire(tid storage.TransactionID, pid storage.PageID, perm storage.Permissions) error {
	mode := modeFor(perm)

	for {
		m.mu.Lock()
		if m.tryGrant(tid, pid, mode) {
			delete(m.waiting, tid)
			m.mu.Unlock()
			return nil
		}

		m.waiting[tid] = pid
		if m.deadlocked(tid, pid) {
			delete(m.waiting, tid)
			m.mu.Unlock()
			logger.L.WithField("prefix", "lock").
				Debugf("deadlock: %s aborted waiting for %v", tid, pid)
			return errors.Wrapf(storage.ErrTransactionAborted,
				"deadlock detected while %s waited for %s on %v", tid, mode, pid)
		}
		m.mu.Unlock()

		time.Sleep(retryBackoff)
	}
}

// tryGrant applies the grant table under mu. Returns true if the lock is
// now held by tid at (at least) the requested strength.
func (m *Manager) tryGrant(tid storage.TransactionID, pid storage.PageID, mode Mode) bool {
	hs := m.holders[pid]
	if len(hs) == 0 {
		m.holders[pid] = append(hs, holder{tid: tid, mode: mode})
		return true
	}

	for i, h := range hs {
		if h.tid != tid {
			continue
		}

		if h.mode == mode {
			return true
		}
		if h.mode == Exclusive {
			// Held X, asked S: X is strictly stronger, treat as granted.
			return true
		}
		// Held S, asked X: upgrade only as the sole holder.
		if len(hs) == 1 {
			hs[i].mode = Exclusive
			return true
		}
		return false
	}

	// Some other transaction holds the page.
	for _, h := range hs {
		if h.mode == Exclusive {
			return false
		}
	}
	if mode == Exclusive {
		return false
	}
	m.holders[pid] = append(hs, holder{tid: tid, mode: Shared})
	return true
}

// deadlocked reports whether granting tid's wait on pid would close a cycle
// in the wait-for graph: some transaction holding pid is itself (possibly
// transitively) waiting on a page tid holds.
func (m *Manager) deadlocked(tid storage.TransactionID, pid storage.PageID) bool {
	held := m.pagesHeldBy(tid)
	if len(held) == 0 {
		return false
	}

	visited := map[storage.TransactionID]struct{}{tid: {}}
	for _, h := range m.holders[pid] {
		if h.tid != tid && m.waitsOn(h.tid, held, visited) {
			return true
		}
	}
	return false
}

// waitsOn walks the wait-for graph from t by DFS, looking for any page in
// target.
func (m *Manager) waitsOn(
	t storage.TransactionID,
	target map[storage.PageID]struct{},
	visited map[storage.TransactionID]struct{},
) bool {
	if _, seen := visited[t]; seen {
		return false
	}
	visited[t] = struct{}{}

	wp, ok := m.waiting[t]
	if !ok {
		return false
	}
	if _, hit := target[wp]; hit {
		return true
	}

	for _, h := range m.holders[wp] {
		if m.waitsOn(h.tid, target, visited) {
			return true
		}
	}
	return false
}

func (m *Manager) pagesHeldBy(tid storage.TransactionID) map[storage.PageID]struct{} {
	held := map[storage.PageID]struct{}{}
	for pid, hs := range m.holders {
		for _, h := range hs {
			if h.tid == tid {
				held[pid] = struct{}{}
				break
			}
		}
	}
	return held
}

// Release drops all locks tid holds on pid.
func (m *Manager) Release(tid storage.TransactionID, pid storage.PageID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release(tid, pid)
}

func (m *Manager) release(tid storage.TransactionID, pid storage.PageID) {
	hs := m.holders[pid]
	kept := hs[:0]
	for _, h := range hs {
		if h.tid != tid {
			kept = append(kept, h)
		}
	}
	if len(kept) == 0 {
		delete(m.holders, pid)
	} else {
		m.holders[pid] = kept
	}
}

// ReleaseAll drops every lock tid holds, on every page.
func (m *Manager) ReleaseAll(tid storage.TransactionID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.waiting, tid)
	for pid := range m.holders {
		m.release(tid, pid)
	}
}

// HoldsLock reports whether tid holds any lock on pid.
func (m *Manager) HoldsLock(tid storage.TransactionID, pid storage.PageID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range m.holders[pid] {
		if h.tid == tid {
			return true
		}
	}
	return false
}

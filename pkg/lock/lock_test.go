package lock

import (
	"sync"
	"testing"
	"time"

	"go-reldb/pkg/storage"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func pid(n int) storage.PageID {
	return storage.HeapPageID{Table: 1, Page: n}
}

func TestSharedLocksCoexist(t *testing.T) {
	m := NewManager()
	t1 := storage.NewTransactionID()
	t2 := storage.NewTransactionID()

	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadOnly))
	require.NoError(t, m.Acquire(t2, pid(0), storage.ReadOnly))
	require.True(t, m.HoldsLock(t1, pid(0)))
	require.True(t, m.HoldsLock(t2, pid(0)))
}

func TestExclusiveBlocksOthers(t *testing.T) {
	m := NewManager()
	t1 := storage.NewTransactionID()
	t2 := storage.NewTransactionID()

	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadWrite))

	done := make(chan error, 1)
	go func() {
		done <- m.Acquire(t2, pid(0), storage.ReadOnly)
	}()

	select {
	case <-done:
		t.Fatal("shared lock granted while exclusive held")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(t1, pid(0))
	require.NoError(t, <-done)
}

func TestUpgradeAsSoleHolder(t *testing.T) {
	m := NewManager()
	t1 := storage.NewTransactionID()

	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadOnly))
	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadWrite))
	require.True(t, m.HoldsLock(t1, pid(0)))

	// Downgrade request on a held exclusive lock is a no-op grant.
	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadOnly))
}

func TestUpgradeBlockedBySecondReader(t *testing.T) {
	m := NewManager()
	t1 := storage.NewTransactionID()
	t2 := storage.NewTransactionID()

	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadOnly))
	require.NoError(t, m.Acquire(t2, pid(0), storage.ReadOnly))

	done := make(chan error, 1)
	go func() {
		done <- m.Acquire(t1, pid(0), storage.ReadWrite)
	}()

	select {
	case <-done:
		t.Fatal("upgrade granted with a second reader present")
	case <-time.After(50 * time.Millisecond):
	}

	m.Release(t2, pid(0))
	require.NoError(t, <-done)
}

func TestDeadlockDetected(t *testing.T) {
	m := NewManager()
	t1 := storage.NewTransactionID()
	t2 := storage.NewTransactionID()

	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadWrite))
	require.NoError(t, m.Acquire(t2, pid(1), storage.ReadWrite))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := m.Acquire(t1, pid(1), storage.ReadWrite)
		if err != nil {
			m.ReleaseAll(t1)
		}
		errs <- err
	}()
	go func() {
		defer wg.Done()
		err := m.Acquire(t2, pid(0), storage.ReadWrite)
		if err != nil {
			m.ReleaseAll(t2)
		}
		errs <- err
	}()
	wg.Wait()
	close(errs)

	aborted := 0
	for err := range errs {
		if err != nil {
			require.True(t, errors.Is(err, storage.ErrTransactionAborted))
			aborted++
		}
	}
	require.GreaterOrEqual(t, aborted, 1)
}

func TestReleaseAll(t *testing.T) {
	m := NewManager()
	t1 := storage.NewTransactionID()

	require.NoError(t, m.Acquire(t1, pid(0), storage.ReadWrite))
	require.NoError(t, m.Acquire(t1, pid(1), storage.ReadOnly))

	m.ReleaseAll(t1)
	require.False(t, m.HoldsLock(t1, pid(0)))
	require.False(t, m.HoldsLock(t1, pid(1)))

	t2 := storage.NewTransactionID()
	require.NoError(t, m.Acquire(t2, pid(0), storage.ReadWrite))
}

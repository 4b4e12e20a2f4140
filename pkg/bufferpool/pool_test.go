package bufferpool_test

import (
	"path/filepath"
	"testing"

	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/catalog"
	"go-reldb/pkg/heap"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testPageSize = 256

func newTable(t *testing.T, poolPages int) (*heap.File, *bufferpool.Pool) {
	t.Helper()
	cat := catalog.New()
	pool := bufferpool.New(testPageSize, poolPages, cat)
	desc := tuple.MustDesc([]types.Type{types.IntType}, []string{"v"})
	f, err := heap.Open(filepath.Join(t.TempDir(), "t.dat"), desc, pool)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	cat.AddTable(f, "t", "v")
	return f, pool
}

func intTuple(t *testing.T, d *tuple.Desc, v int32) *tuple.Tuple {
	t.Helper()
	tp := tuple.NewTuple(d)
	require.NoError(t, tp.SetField(0, types.NewIntField(v)))
	return tp
}

func TestGetPageLocksAndCaches(t *testing.T) {
	f, pool := newTable(t, 8)
	tid := storage.NewTransactionID()
	require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), 1)))
	require.NoError(t, pool.TransactionComplete(tid, true))

	tid2 := storage.NewTransactionID()
	pid := storage.HeapPageID{Table: f.ID(), Page: 0}
	pg, err := pool.GetPage(tid2, pid, storage.ReadOnly)
	require.NoError(t, err)
	require.Equal(t, storage.PageID(pid), pg.ID())
	require.True(t, pool.HoldsLock(tid2, pid))

	pg2, err := pool.GetPage(tid2, pid, storage.ReadOnly)
	require.NoError(t, err)
	require.Same(t, pg, pg2)

	pool.ReleasePage(tid2, pid)
	require.False(t, pool.HoldsLock(tid2, pid))
}

func TestTransactionCompleteReleasesLocks(t *testing.T) {
	f, pool := newTable(t, 8)
	tid := storage.NewTransactionID()
	require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), 1)))

	pid := storage.HeapPageID{Table: f.ID(), Page: 0}
	require.True(t, pool.HoldsLock(tid, pid))
	require.NoError(t, pool.TransactionComplete(tid, true))
	require.False(t, pool.HoldsLock(tid, pid))

	// A second writer can now take the page.
	tid2 := storage.NewTransactionID()
	_, err := pool.GetPage(tid2, pid, storage.ReadWrite)
	require.NoError(t, err)
	require.NoError(t, pool.TransactionComplete(tid2, true))
}

func TestPoolNeverStealsDirtyPages(t *testing.T) {
	f, pool := newTable(t, 1)
	tid := storage.NewTransactionID()

	perPage := heap.NumSlots(testPageSize, 4)
	var lastErr error
	for i := 0; i <= perPage; i++ {
		lastErr = pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), int32(i)))
		if lastErr != nil {
			break
		}
	}
	require.Error(t, lastErr)
	require.True(t, errors.Is(lastErr, storage.ErrPoolExhausted))
}

func TestFlushAllPages(t *testing.T) {
	f, pool := newTable(t, 8)
	tid := storage.NewTransactionID()
	require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), 7)))

	require.NoError(t, pool.FlushAllPages())

	pid := storage.HeapPageID{Table: f.ID(), Page: 0}
	pg, err := f.ReadPage(pid)
	require.NoError(t, err)
	hp := pg.(*heap.Page)
	require.Equal(t, hp.NumSlots()-1, hp.NumEmptySlots())
	require.NoError(t, pool.TransactionComplete(tid, true))
}

func TestAbortRevertsToLastCommit(t *testing.T) {
	f, pool := newTable(t, 8)

	tid := storage.NewTransactionID()
	require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), 1)))
	require.NoError(t, pool.TransactionComplete(tid, true))

	tid2 := storage.NewTransactionID()
	require.NoError(t, pool.InsertTuple(tid2, f.ID(), intTuple(t, f.Desc(), 2)))
	require.NoError(t, pool.TransactionComplete(tid2, false))

	it := f.Iterator(storage.NewTransactionID())
	require.NoError(t, it.Open())
	count := 0
	for {
		has, err := it.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		_, err = it.Next()
		require.NoError(t, err)
		count++
	}
	it.Close()
	require.Equal(t, 1, count)
}

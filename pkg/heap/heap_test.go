package heap

import (
	"path/filepath"
	"testing"

	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/catalog"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testPageSize = 256

func intDesc() *tuple.Desc {
	return tuple.MustDesc([]types.Type{types.IntType}, []string{"v"})
}

func intTuple(t *testing.T, d *tuple.Desc, v int32) *tuple.Tuple {
	t.Helper()
	tp := tuple.NewTuple(d)
	require.NoError(t, tp.SetField(0, types.NewIntField(v)))
	return tp
}

func newTestFile(t *testing.T) (*File, *bufferpool.Pool) {
	t.Helper()
	cat := catalog.New()
	pool := bufferpool.New(testPageSize, 32, cat)
	f, err := Open(filepath.Join(t.TempDir(), "t.dat"), intDesc(), pool)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	cat.AddTable(f, "t", "v")
	return f, pool
}

func TestNumSlots(t *testing.T) {
	// 256 bytes * 8 bits / (4*8 data bits + 1 header bit) per tuple.
	require.Equal(t, 62, NumSlots(testPageSize, 4))
}

func TestPageInsertIterateDelete(t *testing.T) {
	d := intDesc()
	pid := storage.HeapPageID{Table: 1, Page: 0}
	p, err := NewPage(pid, d, testPageSize, EmptyPageData(testPageSize))
	require.NoError(t, err)
	require.Equal(t, p.NumSlots(), p.NumEmptySlots())

	for i := int32(0); i < 5; i++ {
		require.NoError(t, p.InsertTuple(intTuple(t, d, i)))
	}
	require.Equal(t, p.NumSlots()-5, p.NumEmptySlots())

	it := p.Iterator()
	require.NoError(t, it.Open())
	var got []int32
	for {
		has, err := it.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tp, err := it.Next()
		require.NoError(t, err)
		require.NotNil(t, tp.RecordID())
		f, err := tp.Field(0)
		require.NoError(t, err)
		got = append(got, f.(types.IntField).Value)
	}
	it.Close()
	require.Len(t, got, 5)

	it = p.Iterator()
	require.NoError(t, it.Open())
	victim, err := it.Next()
	require.NoError(t, err)
	it.Close()

	require.NoError(t, p.DeleteTuple(victim))
	require.Equal(t, p.NumSlots()-4, p.NumEmptySlots())

	err = p.DeleteTuple(victim)
	require.True(t, errors.Is(err, storage.ErrSlotEmpty))
}

func TestPageRoundTrip(t *testing.T) {
	d := intDesc()
	pid := storage.HeapPageID{Table: 1, Page: 0}
	p, err := NewPage(pid, d, testPageSize, EmptyPageData(testPageSize))
	require.NoError(t, err)

	for i := int32(10); i < 20; i++ {
		require.NoError(t, p.InsertTuple(intTuple(t, d, i)))
	}

	data, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, testPageSize)

	p2, err := NewPage(pid, d, testPageSize, data)
	require.NoError(t, err)
	require.Equal(t, p.NumEmptySlots(), p2.NumEmptySlots())
}

func TestPageFull(t *testing.T) {
	d := intDesc()
	pid := storage.HeapPageID{Table: 1, Page: 0}
	p, err := NewPage(pid, d, testPageSize, EmptyPageData(testPageSize))
	require.NoError(t, err)

	for i := 0; i < p.NumSlots(); i++ {
		require.NoError(t, p.InsertTuple(intTuple(t, d, int32(i))))
	}
	err = p.InsertTuple(intTuple(t, d, -1))
	require.True(t, errors.Is(err, storage.ErrPageFull))
}

func TestFileInsertSpansPages(t *testing.T) {
	f, pool := newTestFile(t)
	tid := storage.NewTransactionID()

	perPage := NumSlots(testPageSize, 4)
	n := perPage + 10
	for i := 0; i < n; i++ {
		require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), int32(i))))
	}
	require.GreaterOrEqual(t, f.NumPages(), 2)

	it := f.Iterator(tid)
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
	require.Equal(t, n, count)

	require.NoError(t, pool.TransactionComplete(tid, true))
}

func TestFileDeleteTuple(t *testing.T) {
	f, pool := newTestFile(t)
	tid := storage.NewTransactionID()

	for i := int32(0); i < 10; i++ {
		require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), i)))
	}

	it := f.Iterator(tid)
	require.NoError(t, it.Open())
	victim, err := it.Next()
	require.NoError(t, err)
	it.Close()

	require.NoError(t, pool.DeleteTuple(tid, victim))

	it = f.Iterator(tid)
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
	require.Equal(t, 9, count)

	require.NoError(t, pool.TransactionComplete(tid, true))
}

func TestCommitPersistsAcrossPools(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.dat")

	cat := catalog.New()
	pool := bufferpool.New(testPageSize, 32, cat)
	f, err := Open(path, intDesc(), pool)
	require.NoError(t, err)
	cat.AddTable(f, "t", "v")

	tid := storage.NewTransactionID()
	for i := int32(0); i < 5; i++ {
		require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), i)))
	}
	require.NoError(t, pool.TransactionComplete(tid, true))
	require.NoError(t, f.Close())

	cat2 := catalog.New()
	pool2 := bufferpool.New(testPageSize, 32, cat2)
	f2, err := Open(path, intDesc(), pool2)
	require.NoError(t, err)
	defer f2.Close()
	cat2.AddTable(f2, "t", "v")

	it := f2.Iterator(storage.NewTransactionID())
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
	require.Equal(t, 5, count)
}

func TestAbortDiscardsChanges(t *testing.T) {
	f, pool := newTestFile(t)

	tid := storage.NewTransactionID()
	require.NoError(t, pool.InsertTuple(tid, f.ID(), intTuple(t, f.Desc(), 1)))
	require.NoError(t, pool.TransactionComplete(tid, false))

	it := f.Iterator(storage.NewTransactionID())
	require.NoError(t, it.Open())
	has, err := it.HasNext()
	require.NoError(t, err)
	require.False(t, has)
	it.Close()
}

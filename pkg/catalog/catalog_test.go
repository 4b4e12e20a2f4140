package catalog

import (
	"path/filepath"
	"testing"

	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/heap"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/stretchr/testify/require"
)

func newHeapFile(t *testing.T, cat *Catalog, pool *bufferpool.Pool, name string) *heap.File {
	t.Helper()
	desc := tuple.MustDesc([]types.Type{types.IntType}, []string{"id"})
	f, err := heap.Open(filepath.Join(t.TempDir(), name+".dat"), desc, pool)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAddAndLookup(t *testing.T) {
	cat := New()
	pool := bufferpool.New(256, 8, cat)
	f := newHeapFile(t, cat, pool, "users")
	cat.AddTable(f, "users", "id")

	id, err := cat.TableID("users")
	require.NoError(t, err)
	require.Equal(t, f.ID(), id)

	got, err := cat.DatabaseFile(id)
	require.NoError(t, err)
	require.Equal(t, f.ID(), got.ID())

	name, err := cat.TableName(id)
	require.NoError(t, err)
	require.Equal(t, "users", name)

	pk, err := cat.PrimaryKey(id)
	require.NoError(t, err)
	require.Equal(t, "id", pk)

	d, err := cat.TupleDesc(id)
	require.NoError(t, err)
	require.True(t, d.Equal(f.Desc()))
}

func TestLookupUnknown(t *testing.T) {
	cat := New()

	_, err := cat.TableID("missing")
	require.Error(t, err)
	_, err = cat.DatabaseFile(12345)
	require.Error(t, err)
	_, err = cat.TableName(12345)
	require.Error(t, err)
}

func TestAddReplacesByName(t *testing.T) {
	cat := New()
	pool := bufferpool.New(256, 8, cat)
	a := newHeapFile(t, cat, pool, "a")
	b := newHeapFile(t, cat, pool, "b")

	cat.AddTable(a, "users", "id")
	cat.AddTable(b, "users", "id")

	id, err := cat.TableID("users")
	require.NoError(t, err)
	require.Equal(t, b.ID(), id)

	_, err = cat.DatabaseFile(a.ID())
	require.Error(t, err)
	require.Equal(t, []int32{b.ID()}, cat.TableIDs())
}

func TestAddReplacesByID(t *testing.T) {
	cat := New()
	pool := bufferpool.New(256, 8, cat)
	f := newHeapFile(t, cat, pool, "a")

	cat.AddTable(f, "old", "id")
	cat.AddTable(f, "new", "id")

	_, err := cat.TableID("old")
	require.Error(t, err)

	id, err := cat.TableID("new")
	require.NoError(t, err)
	require.Equal(t, f.ID(), id)
	require.Len(t, cat.TableIDs(), 1)
}

func TestClear(t *testing.T) {
	cat := New()
	pool := bufferpool.New(256, 8, cat)
	f := newHeapFile(t, cat, pool, "a")
	cat.AddTable(f, "users", "id")

	cat.Clear()
	require.Empty(t, cat.TableIDs())
	_, err := cat.TableID("users")
	require.Error(t, err)
}

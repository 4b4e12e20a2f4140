package database

import (
	"testing"

	"go-reldb/config"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.Default()
	cfg.PageSize = 1024
	cfg.PoolPages = 64
	cfg.DataDir = t.TempDir()
	return cfg
}

func TestHeapTableLifecycle(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	desc := tuple.MustDesc([]types.Type{types.IntType, types.StringType}, []string{"id", "name"})
	f, err := db.CreateHeapTable("users", desc, "id")
	require.NoError(t, err)

	id, err := db.Catalog().TableID("users")
	require.NoError(t, err)
	require.Equal(t, f.ID(), id)

	tid := db.Begin()
	for i := int32(1); i <= 3; i++ {
		tp := tuple.NewTuple(desc)
		require.NoError(t, tp.SetField(0, types.NewIntField(i)))
		require.NoError(t, tp.SetField(1, types.NewStringField("u")))
		require.NoError(t, db.Pool().InsertTuple(tid, f.ID(), tp))
	}
	require.NoError(t, db.Commit(tid))

	it := f.Iterator(db.Begin())
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
	require.Equal(t, 3, count)
}

func TestBTreeTableLifecycle(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	desc := tuple.MustDesc([]types.Type{types.IntType, types.IntType}, []string{"key", "val"})
	f, err := db.CreateBTreeTable("idx", desc, 0)
	require.NoError(t, err)

	pk, err := db.Catalog().PrimaryKey(f.ID())
	require.NoError(t, err)
	require.Equal(t, "key", pk)

	tid := db.Begin()
	for i := int32(5); i >= 1; i-- {
		tp := tuple.NewTuple(desc)
		require.NoError(t, tp.SetField(0, types.NewIntField(i)))
		require.NoError(t, tp.SetField(1, types.NewIntField(i)))
		require.NoError(t, db.Pool().InsertTuple(tid, f.ID(), tp))
	}
	require.NoError(t, db.Commit(tid))

	tid = db.Begin()
	it := f.Iterator(tid)
	require.NoError(t, it.Open())
	var keys []int32
	for {
		has, err := it.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tp, err := it.Next()
		require.NoError(t, err)
		k, err := tp.Field(0)
		require.NoError(t, err)
		keys = append(keys, k.(types.IntField).Value)
	}
	it.Close()
	require.Equal(t, []int32{1, 2, 3, 4, 5}, keys)
	require.NoError(t, db.Abort(tid))
}

func TestAbortRollsBack(t *testing.T) {
	db, err := New(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	desc := tuple.MustDesc([]types.Type{types.IntType}, []string{"v"})
	f, err := db.CreateHeapTable("t", desc, "")
	require.NoError(t, err)

	tid := db.Begin()
	tp := tuple.NewTuple(desc)
	require.NoError(t, tp.SetField(0, types.NewIntField(1)))
	require.NoError(t, db.Pool().InsertTuple(tid, f.ID(), tp))
	require.NoError(t, db.Abort(tid))

	it := f.Iterator(db.Begin())
	require.NoError(t, it.Open())
	has, err := it.HasNext()
	require.NoError(t, err)
	require.False(t, has)
	it.Close()
}

package executor

import (
	"path/filepath"
	"testing"

	"go-reldb/pkg/btree"
	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/catalog"
	"go-reldb/pkg/executor/aggregator"
	"go-reldb/pkg/heap"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/stretchr/testify/require"
)

const testPageSize = 1024

// sliceOp adapts a materialized tuple slice into a leaf operator.
type sliceOp struct {
	desc *tuple.Desc
	it   tuple.Iterator
}

func newSliceOp(desc *tuple.Desc, tuples []*tuple.Tuple) *sliceOp {
	return &sliceOp{desc: desc, it: tuple.NewSliceIterator(tuples)}
}

func (s *sliceOp) Open() error                { return s.it.Open() }
func (s *sliceOp) HasNext() (bool, error)     { return s.it.HasNext() }
func (s *sliceOp) Next() (*tuple.Tuple, error) { return s.it.Next() }
func (s *sliceOp) Rewind() error              { return s.it.Rewind() }
func (s *sliceOp) Close()                     { s.it.Close() }
func (s *sliceOp) Desc() *tuple.Desc          { return s.desc }
func (s *sliceOp) Children() []OpIterator     { return nil }
func (s *sliceOp) SetChildren(c []OpIterator) {}

type fixture struct {
	cat  *catalog.Catalog
	pool *bufferpool.Pool
	dir  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat := catalog.New()
	return &fixture{
		cat:  cat,
		pool: bufferpool.New(testPageSize, 64, cat),
		dir:  t.TempDir(),
	}
}

func (fx *fixture) newTable(t *testing.T, name string, desc *tuple.Desc) *heap.File {
	t.Helper()
	f, err := heap.Open(filepath.Join(fx.dir, name+".dat"), desc, fx.pool)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	fx.cat.AddTable(f, name, "")
	return f
}

var userDesc = tuple.MustDesc(
	[]types.Type{types.IntType, types.StringType},
	[]string{"id", "name"},
)

func userRow(t *testing.T, id int32, name string) *tuple.Tuple {
	t.Helper()
	tp := tuple.NewTuple(userDesc)
	require.NoError(t, tp.SetField(0, types.NewIntField(id)))
	require.NoError(t, tp.SetField(1, types.NewStringField(name)))
	return tp
}

func loadUsers(t *testing.T, fx *fixture, f *heap.File, tid storage.TransactionID) {
	t.Helper()
	rows := []struct {
		id   int32
		name string
	}{
		{1, "alice"}, {2, "bob"}, {3, "carol"}, {4, "dave"}, {5, "bob"},
	}
	for _, r := range rows {
		require.NoError(t, fx.pool.InsertTuple(tid, f.ID(), userRow(t, r.id, r.name)))
	}
}

func drainField0(t *testing.T, op OpIterator) []int32 {
	t.Helper()
	require.NoError(t, op.Open())
	defer op.Close()

	var out []int32
	for {
		has, err := op.HasNext()
		require.NoError(t, err)
		if !has {
			return out
		}
		tp, err := op.Next()
		require.NoError(t, err)
		f, err := tp.Field(0)
		require.NoError(t, err)
		out = append(out, f.(types.IntField).Value)
	}
}

func TestSeqScanAlias(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()
	loadUsers(t, fx, f, tid)

	scan := NewSeqScan(tid, f, "u")
	i, err := scan.Desc().FieldIndex("u.id")
	require.NoError(t, err)
	require.Equal(t, 0, i)

	ids := drainField0(t, scan)
	require.ElementsMatch(t, []int32{1, 2, 3, 4, 5}, ids)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestFilter(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()
	loadUsers(t, fx, f, tid)

	filter := NewFilter(
		NewPredicate(0, types.GreaterThan, types.NewIntField(3)),
		NewSeqScan(tid, f, ""),
	)
	ids := drainField0(t, filter)
	require.ElementsMatch(t, []int32{4, 5}, ids)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestJoin(t *testing.T) {
	fx := newFixture(t)
	users := fx.newTable(t, "users", userDesc)

	orderDesc := tuple.MustDesc([]types.Type{types.IntType, types.IntType}, []string{"user_id", "amount"})
	orders := fx.newTable(t, "orders", orderDesc)

	tid := storage.NewTransactionID()
	loadUsers(t, fx, users, tid)
	for _, o := range [][2]int32{{1, 100}, {2, 50}, {1, 25}, {9, 70}} {
		tp := tuple.NewTuple(orderDesc)
		require.NoError(t, tp.SetField(0, types.NewIntField(o[0])))
		require.NoError(t, tp.SetField(1, types.NewIntField(o[1])))
		require.NoError(t, fx.pool.InsertTuple(tid, orders.ID(), tp))
	}

	j := NewJoin(
		NewJoinPredicate(0, types.Equals, 0),
		NewSeqScan(tid, users, "u"),
		NewSeqScan(tid, orders, "o"),
	)
	require.Equal(t, 4, j.Desc().NumFields())

	require.NoError(t, j.Open())
	count := 0
	for {
		has, err := j.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tp, err := j.Next()
		require.NoError(t, err)
		uid, err := tp.Field(0)
		require.NoError(t, err)
		oid, err := tp.Field(2)
		require.NoError(t, err)
		require.True(t, uid.Compare(types.Equals, oid))
		count++
	}
	j.Close()
	require.Equal(t, 3, count)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestAggregateCountGrouped(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()
	loadUsers(t, fx, f, tid)

	// count(name) grouped by name: two bobs, everyone else once.
	agg, err := NewAggregate(NewSeqScan(tid, f, ""), 1, 1, aggregator.Count)
	require.NoError(t, err)

	require.NoError(t, agg.Open())
	counts := map[string]int32{}
	for {
		has, err := agg.HasNext()
		require.NoError(t, err)
		if !has {
			break
		}
		tp, err := agg.Next()
		require.NoError(t, err)
		g, err := tp.Field(0)
		require.NoError(t, err)
		v, err := tp.Field(1)
		require.NoError(t, err)
		counts[g.(types.StringField).Value] = v.(types.IntField).Value
	}
	agg.Close()
	require.Equal(t, map[string]int32{"alice": 1, "bob": 2, "carol": 1, "dave": 1}, counts)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestAggregateSumUngrouped(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()
	loadUsers(t, fx, f, tid)

	agg, err := NewAggregate(NewSeqScan(tid, f, ""), 0, aggregator.NoGrouping, aggregator.Sum)
	require.NoError(t, err)
	require.Equal(t, []int32{15}, drainField0(t, agg))
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestAggregateRejectsStringSum(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()

	_, err := NewAggregate(NewSeqScan(tid, f, ""), 1, aggregator.NoGrouping, aggregator.Sum)
	require.Error(t, err)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestIndexScan(t *testing.T) {
	fx := newFixture(t)
	idxDesc := tuple.MustDesc([]types.Type{types.IntType, types.IntType}, []string{"key", "val"})
	f, err := btree.Open(filepath.Join(fx.dir, "idx.idx"), idxDesc, 0, fx.pool)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	fx.cat.AddTable(f, "idx", "key")

	tid := storage.NewTransactionID()
	for i := int32(1); i <= 50; i++ {
		tp := tuple.NewTuple(idxDesc)
		require.NoError(t, tp.SetField(0, types.NewIntField(i)))
		require.NoError(t, tp.SetField(1, types.NewIntField(i*10)))
		require.NoError(t, fx.pool.InsertTuple(tid, f.ID(), tp))
	}

	scan := NewIndexScan(tid, f,
		btree.IndexPredicate{Op: types.GreaterThanOrEq, Value: types.NewIntField(48)}, "i")
	require.Equal(t, []int32{48, 49, 50}, drainField0(t, scan))

	rev := NewIndexScan(tid, f,
		btree.IndexPredicate{Op: types.LessThan, Value: types.NewIntField(4)}, "i")
	require.Equal(t, []int32{3, 2, 1}, drainField0(t, rev))
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestOrderBy(t *testing.T) {
	d := tuple.MustDesc([]types.Type{types.IntType}, []string{"v"})
	mk := func(v int32) *tuple.Tuple {
		tp := tuple.NewTuple(d)
		tp.SetField(0, types.NewIntField(v))
		return tp
	}
	child := newSliceOp(d, []*tuple.Tuple{mk(3), mk(1), mk(2)})

	asc := NewOrderBy(child, 0, true)
	require.Equal(t, []int32{1, 2, 3}, drainField0(t, asc))

	child = newSliceOp(d, []*tuple.Tuple{mk(3), mk(1), mk(2)})
	desc := NewOrderBy(child, 0, false)
	require.Equal(t, []int32{3, 2, 1}, drainField0(t, desc))
}

func TestInsertOperator(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()

	rows := []*tuple.Tuple{
		userRow(t, 1, "alice"), userRow(t, 2, "bob"), userRow(t, 3, "carol"),
	}
	ins := NewInsert(tid, fx.pool, f.ID(), newSliceOp(userDesc, rows))

	require.NoError(t, ins.Open())
	out, err := ins.Next()
	require.NoError(t, err)
	n, err := out.Field(0)
	require.NoError(t, err)
	require.Equal(t, int32(3), n.(types.IntField).Value)

	has, err := ins.HasNext()
	require.NoError(t, err)
	require.False(t, has)
	ins.Close()

	ids := drainField0(t, NewSeqScan(tid, f, ""))
	require.ElementsMatch(t, []int32{1, 2, 3}, ids)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

func TestDeleteOperator(t *testing.T) {
	fx := newFixture(t)
	f := fx.newTable(t, "users", userDesc)
	tid := storage.NewTransactionID()
	loadUsers(t, fx, f, tid)

	del := NewDelete(tid, fx.pool, NewFilter(
		NewPredicate(0, types.LessThanOrEq, types.NewIntField(2)),
		NewSeqScan(tid, f, ""),
	))

	require.NoError(t, del.Open())
	out, err := del.Next()
	require.NoError(t, err)
	n, err := out.Field(0)
	require.NoError(t, err)
	require.Equal(t, int32(2), n.(types.IntField).Value)
	del.Close()

	ids := drainField0(t, NewSeqScan(tid, f, ""))
	require.ElementsMatch(t, []int32{3, 4, 5}, ids)
	require.NoError(t, fx.pool.TransactionComplete(tid, true))
}

package executor

import (
	"go-reldb/pkg/btree"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"

	"github.com/pkg/errors"
)

// IndexScan reads a table through its B+ tree, visiting only the tuples whose
// key satisfies the predicate. The tree picks the traversal direction from
// the predicate operator, so results arrive key-ordered either way.
type IndexScan struct {
	tid   storage.TransactionID
	file  *btree.File
	pred  btree.IndexPredicate
	alias string

	desc *tuple.Desc
	it   tuple.Iterator
}

func NewIndexScan(tid storage.TransactionID, file *btree.File, pred btree.IndexPredicate, alias string) *IndexScan {
	return &IndexScan{
		tid:   tid,
		file:  file,
		pred:  pred,
		alias: alias,
		desc:  aliasDesc(file.Desc(), alias),
	}
}

func (s *IndexScan) Open() error {
	s.it = s.file.IndexIterator(s.tid, s.pred)
	return s.it.Open()
}

func (s *IndexScan) HasNext() (bool, error) {
	if s.it == nil {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return s.it.HasNext()
}

func (s *IndexScan) Next() (*tuple.Tuple, error) {
	if s.it == nil {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return s.it.Next()
}

func (s *IndexScan) Rewind() error {
	if s.it == nil {
		return errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return s.it.Rewind()
}

func (s *IndexScan) Close() {
	if s.it != nil {
		s.it.Close()
		s.it = nil
	}
}

func (s *IndexScan) Desc() *tuple.Desc {
	return s.desc
}

func (s *IndexScan) Children() []OpIterator {
	return nil
}

func (s *IndexScan) SetChildren(children []OpIterator) {}

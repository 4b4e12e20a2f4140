package executor

import (
	"go-reldb/pkg/bufferpool"
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// SeqScan reads every tuple of a table in physical order. Field names in the
// output schema are prefixed with the table alias.
type SeqScan struct {
	tid   storage.TransactionID
	file  bufferpool.DbFile
	alias string

	desc *tuple.Desc
	it   tuple.Iterator
}

func NewSeqScan(tid storage.TransactionID, file bufferpool.DbFile, alias string) *SeqScan {
	return &SeqScan{
		tid:   tid,
		file:  file,
		alias: alias,
		desc:  aliasDesc(file.Desc(), alias),
	}
}

// aliasDesc rebuilds d with every field name prefixed "alias.name". Unnamed
// fields stay unnamed.
func aliasDesc(d *tuple.Desc, alias string) *tuple.Desc {
	if alias == "" {
		return d
	}
	ft := make([]types.Type, d.NumFields())
	fn := make([]string, d.NumFields())
	for i := 0; i < d.NumFields(); i++ {
		ft[i], _ = d.TypeAt(i)
		name, _ := d.NameAt(i)
		if name != "" {
			fn[i] = alias + "." + name
		}
	}
	return tuple.MustDesc(ft, fn)
}

func (s *SeqScan) Open() error {
	s.it = s.file.Iterator(s.tid)
	return s.it.Open()
}

func (s *SeqScan) HasNext() (bool, error) {
	if s.it == nil {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return s.it.HasNext()
}

func (s *SeqScan) Next() (*tuple.Tuple, error) {
	if s.it == nil {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return s.it.Next()
}

func (s *SeqScan) Rewind() error {
	if s.it == nil {
		return errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	return s.it.Rewind()
}

func (s *SeqScan) Close() {
	if s.it != nil {
		s.it.Close()
		s.it = nil
	}
}

func (s *SeqScan) Desc() *tuple.Desc {
	return s.desc
}

func (s *SeqScan) Children() []OpIterator {
	return nil
}

func (s *SeqScan) SetChildren(children []OpIterator) {}

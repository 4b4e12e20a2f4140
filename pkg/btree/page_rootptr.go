package btree

import (
	"go-reldb/pkg/storage"

	"github.com/pkg/errors"
)

// RootPtrPage is the 8-byte block at the start of the file. It stores a
// reference to the root page (page number in the low three bytes, the root's
// category in the high byte) and the page number of the first header page.
// Zero means "no such page" in both fields.
type RootPtrPage struct {
	dirtyState

	pid      storage.BTreePageID
	rootNo   int
	rootCat  storage.PageCategory
	headerNo int

	before []byte
}

func NewRootPtrPage(table int32, data []byte) (*RootPtrPage, error) {
	if len(data) != RootPtrSize {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"root pointer block: have %d bytes, want %d", len(data), RootPtrSize)
	}
	ref := bin.Uint32(data[0:4])
	return &RootPtrPage{
		pid:      storage.BTreePageID{Table: table, Page: 0, Cat: storage.RootPtr},
		rootNo:   int(ref & 0x00ffffff),
		rootCat:  storage.PageCategory(ref >> 24),
		headerNo: int(bin.Uint32(data[4:8])),
	}, nil
}

// EmptyRootPtrData is the image of a root pointer with no root and no
// header chain.
func EmptyRootPtrData() []byte {
	return make([]byte, RootPtrSize)
}

func (p *RootPtrPage) ID() storage.PageID {
	return p.pid
}

func (p *RootPtrPage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RootPtrSize)
	bin.PutUint32(buf[0:4], uint32(p.rootNo)|uint32(p.rootCat)<<24)
	bin.PutUint32(buf[4:8], uint32(p.headerNo))
	return buf, nil
}

// RootID returns the id of the root page, or nil if the tree is empty.
func (p *RootPtrPage) RootID() *storage.BTreePageID {
	if p.rootNo == 0 {
		return nil
	}
	return &storage.BTreePageID{Table: p.pid.Table, Page: p.rootNo, Cat: p.rootCat}
}

func (p *RootPtrPage) SetRootID(id storage.BTreePageID) {
	p.rootNo = id.Page
	p.rootCat = id.Cat
}

// HeaderPageNo returns the page number of the first header page, 0 if none.
func (p *RootPtrPage) HeaderPageNo() int {
	return p.headerNo
}

func (p *RootPtrPage) SetHeaderPageNo(no int) {
	p.headerNo = no
}

func (p *RootPtrPage) SetBeforeImage() {
	data, _ := p.MarshalBinary()
	p.before = data
}

func (p *RootPtrPage) BeforeImage() storage.Page {
	data := p.before
	if data == nil {
		data = EmptyRootPtrData()
	}
	img, _ := NewRootPtrPage(p.pid.Table, data)
	return img
}

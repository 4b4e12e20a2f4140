package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/util/helpers"

	"github.com/pkg/errors"
)

// headerPageHeader is the fixed prefix of a header page: category byte plus
// the previous and next page numbers of the doubly linked header chain.
const headerPageHeader = 1 + 2*indexSize

// HeaderSlots returns how many page numbers one header page tracks.
func HeaderSlots(pageSize int) int {
	return (pageSize - headerPageHeader) * 8
}

// HeaderPage is one link of the free-page chain. Bit i of the bitmap marks
// whether the page it maps to is in use; a clear bit is a reusable page.
type HeaderPage struct {
	dirtyState

	pid      storage.BTreePageID
	pageSize int
	prev     int
	next     int
	slots    []byte

	before []byte
}

func NewHeaderPage(pid storage.BTreePageID, pageSize int, data []byte) (*HeaderPage, error) {
	if len(data) != pageSize {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: have %d bytes, want %d", pid, len(data), pageSize)
	}
	if storage.PageCategory(data[0]) != storage.Header {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: stored category is %s", pid, storage.PageCategory(data[0]))
	}
	return &HeaderPage{
		pid:      pid,
		pageSize: pageSize,
		prev:     int(bin.Uint32(data[1:5])),
		next:     int(bin.Uint32(data[5:9])),
		slots:    append([]byte(nil), data[headerPageHeader:]...),
	}, nil
}

// NewEmptyHeaderPage builds a fresh header page with every slot marked in
// use; slots are freed individually as pages are released.
func NewEmptyHeaderPage(pid storage.BTreePageID, pageSize int) *HeaderPage {
	p := &HeaderPage{
		pid:      pid,
		pageSize: pageSize,
		slots:    make([]byte, pageSize-headerPageHeader),
	}
	p.Init()
	return p
}

// Init marks every slot used.
func (p *HeaderPage) Init() {
	for i := range p.slots {
		p.slots[i] = 0xff
	}
}

func (p *HeaderPage) ID() storage.PageID {
	return p.pid
}

func (p *HeaderPage) NumSlots() int {
	return len(p.slots) * 8
}

func (p *HeaderPage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.pageSize)
	buf[0] = byte(storage.Header)
	bin.PutUint32(buf[1:5], uint32(p.prev))
	bin.PutUint32(buf[5:9], uint32(p.next))
	copy(buf[headerPageHeader:], p.slots)
	return buf, nil
}

func (p *HeaderPage) PrevPageNo() int       { return p.prev }
func (p *HeaderPage) SetPrevPageNo(no int)  { p.prev = no }
func (p *HeaderPage) NextPageNo() int       { return p.next }
func (p *HeaderPage) SetNextPageNo(no int)  { p.next = no }

func (p *HeaderPage) SlotUsed(i int) bool {
	return helpers.GetBit(p.slots[i/8], i%8)
}

func (p *HeaderPage) MarkSlotUsed(i int, used bool) {
	helpers.SetBit(&p.slots[i/8], i%8, used)
}

// FirstFreeSlot returns the lowest clear bit, or -1 if every slot is used.
func (p *HeaderPage) FirstFreeSlot() int {
	for i, b := range p.slots {
		if b == 0xff {
			continue
		}
		for j := 0; j < 8; j++ {
			if !helpers.GetBit(b, j) {
				return i*8 + j
			}
		}
	}
	return -1
}

func (p *HeaderPage) SetBeforeImage() {
	data, err := p.MarshalBinary()
	if err != nil {
		return
	}
	p.before = data
}

func (p *HeaderPage) BeforeImage() storage.Page {
	if p.before == nil {
		return NewEmptyHeaderPage(p.pid, p.pageSize)
	}
	img, err := NewHeaderPage(p.pid, p.pageSize, p.before)
	if err != nil {
		return nil
	}
	return img
}

// Package heap implements the heap file: an unordered sequence of fixed-size
// pages, each a slot bitmap followed by tuple slots. Pages are created by
// appending zeroed blocks at the end of the backing file.
package heap

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/util/helpers"
	"go-reldb/util/logger"

	"github.com/pkg/errors"
)

// NumSlots returns how many tuples of the given size fit on one page,
// accounting for the one header bit each slot costs.
func NumSlots(pageSize, tupleSize int) int {
	return pageSize * 8 / (tupleSize*8 + 1)
}

// EmptyPageData returns the serialized form of a page with no tuples.
func EmptyPageData(pageSize int) []byte {
	return make([]byte, pageSize)
}

// Page is one heap page: a bitmap of occupied slots, then numSlots slots of
// desc.Size() bytes each. Slot i's bit is bit i%8 of header byte i/8.
type Page struct {
	pid      storage.HeapPageID
	desc     *tuple.Desc
	pageSize int
	numSlots int

	header []byte
	tuples []*tuple.Tuple

	dirty    bool
	dirtyTID storage.TransactionID
	before   []byte
}

// NewPage decodes a page image read from disk.
func NewPage(pid storage.HeapPageID, desc *tuple.Desc, pageSize int, data []byte) (*Page, error) {
	if len(data) != pageSize {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: have %d bytes, want %d", pid, len(data), pageSize)
	}

	numSlots := NumSlots(pageSize, desc.Size())
	headerSize := helpers.CeilDiv(numSlots, 8)

	p := &Page{
		pid:      pid,
		desc:     desc,
		pageSize: pageSize,
		numSlots: numSlots,
		header:   append([]byte(nil), data[:headerSize]...),
		tuples:   make([]*tuple.Tuple, numSlots),
	}

	for i := 0; i < numSlots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		off := headerSize + i*desc.Size()
		t, err := tuple.ReadTuple(desc, data[off:])
		if err != nil {
			return nil, errors.Wrapf(err, "page %v slot %d", pid, i)
		}
		t.SetRecordID(&tuple.RecordID{PID: pid, Slot: i})
		p.tuples[i] = t
	}
	return p, nil
}

func (p *Page) ID() storage.PageID {
	return p.pid
}

func (p *Page) Desc() *tuple.Desc {
	return p.desc
}

func (p *Page) NumSlots() int {
	return p.numSlots
}

// NumEmptySlots returns how many slots are free.
func (p *Page) NumEmptySlots() int {
	n := 0
	for i := 0; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			n++
		}
	}
	return n
}

func (p *Page) slotUsed(i int) bool {
	return helpers.GetBit(p.header[i/8], i%8)
}

func (p *Page) setSlotUsed(i int, used bool) {
	helpers.SetBit(&p.header[i/8], i%8, used)
}

// MarshalBinary serializes the page to exactly pageSize bytes. Free slots
// are zero-filled.
func (p *Page) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.pageSize)
	copy(buf, p.header)

	headerSize := len(p.header)
	size := p.desc.Size()
	for i, t := range p.tuples {
		if t == nil {
			continue
		}
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "page %v slot %d", p.pid, i)
		}
		copy(buf[headerSize+i*size:], b)
	}
	return buf, nil
}

// InsertTuple stores t in the first free slot and stamps its record id.
func (p *Page) InsertTuple(t *tuple.Tuple) error {
	if !p.desc.Equal(t.Desc()) {
		return errors.Wrapf(storage.ErrTypeMismatch,
			"tuple schema %v does not match page schema %v", t.Desc(), p.desc)
	}

	for i := 0; i < p.numSlots; i++ {
		if p.slotUsed(i) {
			continue
		}
		p.setSlotUsed(i, true)
		t.SetRecordID(&tuple.RecordID{PID: p.pid, Slot: i})
		p.tuples[i] = t
		return nil
	}
	return errors.Wrapf(storage.ErrPageFull, "page %v", p.pid)
}

// DeleteTuple clears the slot named by t's record id.
func (p *Page) DeleteTuple(t *tuple.Tuple) error {
	rid := t.RecordID()
	if rid == nil || rid.PID != storage.PageID(p.pid) {
		return errors.Wrapf(storage.ErrNoSuchTuple, "tuple is not on page %v", p.pid)
	}
	if rid.Slot < 0 || rid.Slot >= p.numSlots || !p.slotUsed(rid.Slot) {
		return errors.Wrapf(storage.ErrSlotEmpty, "page %v slot %d", p.pid, rid.Slot)
	}

	p.setSlotUsed(rid.Slot, false)
	p.tuples[rid.Slot] = nil
	return nil
}

func (p *Page) MarkDirty(dirty bool, tid storage.TransactionID) {
	p.dirty = dirty
	if dirty {
		p.dirtyTID = tid
	} else {
		p.dirtyTID = storage.TransactionID{}
	}
}

func (p *Page) DirtiedBy() (storage.TransactionID, bool) {
	return p.dirtyTID, p.dirty
}

// SetBeforeImage captures the current page image as the pre-transaction
// state.
func (p *Page) SetBeforeImage() {
	data, err := p.MarshalBinary()
	if err != nil {
		logger.L.WithField("prefix", "heap").
			Warnf("failed to capture before image of %v: %v", p.pid, err)
		return
	}
	p.before = data
}

// BeforeImage returns the page as it was at the last SetBeforeImage, or the
// zero page if none was captured.
func (p *Page) BeforeImage() storage.Page {
	data := p.before
	if data == nil {
		data = EmptyPageData(p.pageSize)
	}
	img, err := NewPage(p.pid, p.desc, p.pageSize, data)
	if err != nil {
		logger.L.WithField("prefix", "heap").
			Warnf("failed to decode before image of %v: %v", p.pid, err)
		return nil
	}
	return img
}

// Iterator iterates the live tuples of the page in slot order.
func (p *Page) Iterator() tuple.Iterator {
	return &slotIterator{page: p}
}

type slotIterator struct {
	page   *Page
	next   int
	opened bool
}

func (it *slotIterator) Open() error {
	it.next = 0
	it.opened = true
	return nil
}

func (it *slotIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	for it.next < it.page.numSlots {
		if it.page.slotUsed(it.next) {
			return true, nil
		}
		it.next++
	}
	return false, nil
}

func (it *slotIterator) Next() (*tuple.Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	t := it.page.tuples[it.next]
	it.next++
	return t, nil
}

func (it *slotIterator) Rewind() error {
	return it.Open()
}

func (it *slotIterator) Close() {
	it.opened = false
}

package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"
	"go-reldb/util/helpers"

	"github.com/pkg/errors"
)

// leafPageHeader is the fixed prefix of a leaf page: category byte, parent
// page number and the left/right sibling page numbers.
const leafPageHeader = 1 + 3*indexSize

// MaxLeafTuples returns how many tuples of the given size fit on one leaf
// page, accounting for the one header bit each slot costs.
func MaxLeafTuples(pageSize, tupleSize int) int {
	return (pageSize - leafPageHeader) * 8 / (tupleSize*8 + 1)
}

// LeafPage holds tuples in key order. Slots may have gaps; the bitmap names
// the live ones, and inserts shift neighbors to keep the used slots sorted.
type LeafPage struct {
	dirtyState

	pid      storage.BTreePageID
	desc     *tuple.Desc
	keyField int
	pageSize int
	numSlots int

	parent int
	left   int
	right  int

	header []byte
	tuples []*tuple.Tuple

	before []byte
}

func NewLeafPage(pid storage.BTreePageID, desc *tuple.Desc, keyField, pageSize int, data []byte) (*LeafPage, error) {
	if len(data) != pageSize {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: have %d bytes, want %d", pid, len(data), pageSize)
	}
	if storage.PageCategory(data[0]) != storage.Leaf {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: stored category is %s", pid, storage.PageCategory(data[0]))
	}

	p := NewEmptyLeafPage(pid, desc, keyField, pageSize)
	p.parent = int(bin.Uint32(data[1:5]))
	p.left = int(bin.Uint32(data[5:9]))
	p.right = int(bin.Uint32(data[9:13]))

	headerSize := len(p.header)
	copy(p.header, data[leafPageHeader:leafPageHeader+headerSize])

	size := desc.Size()
	for i := 0; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		off := leafPageHeader + headerSize + i*size
		t, err := tuple.ReadTuple(desc, data[off:])
		if err != nil {
			return nil, errors.Wrapf(err, "page %v slot %d", pid, i)
		}
		t.SetRecordID(&tuple.RecordID{PID: pid, Slot: i})
		p.tuples[i] = t
	}
	return p, nil
}

func NewEmptyLeafPage(pid storage.BTreePageID, desc *tuple.Desc, keyField, pageSize int) *LeafPage {
	numSlots := MaxLeafTuples(pageSize, desc.Size())
	return &LeafPage{
		pid:      pid,
		desc:     desc,
		keyField: keyField,
		pageSize: pageSize,
		numSlots: numSlots,
		header:   make([]byte, helpers.CeilDiv(numSlots, 8)),
		tuples:   make([]*tuple.Tuple, numSlots),
	}
}

func (p *LeafPage) ID() storage.PageID {
	return p.pid
}

func (p *LeafPage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.pageSize)
	buf[0] = byte(storage.Leaf)
	bin.PutUint32(buf[1:5], uint32(p.parent))
	bin.PutUint32(buf[5:9], uint32(p.left))
	bin.PutUint32(buf[9:13], uint32(p.right))
	copy(buf[leafPageHeader:], p.header)

	base := leafPageHeader + len(p.header)
	size := p.desc.Size()
	for i, t := range p.tuples {
		if t == nil {
			continue
		}
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "page %v slot %d", p.pid, i)
		}
		copy(buf[base+i*size:], b)
	}
	return buf, nil
}

// ParentID returns the id of the parent page; the root's parent is the
// root-pointer block.
func (p *LeafPage) ParentID() storage.BTreePageID {
	if p.parent == 0 {
		return storage.BTreePageID{Table: p.pid.Table, Page: 0, Cat: storage.RootPtr}
	}
	return storage.BTreePageID{Table: p.pid.Table, Page: p.parent, Cat: storage.Internal}
}

func (p *LeafPage) SetParentID(id storage.BTreePageID) {
	p.parent = id.Page
}

// LeftSiblingID returns the left sibling leaf, nil at the left edge.
func (p *LeafPage) LeftSiblingID() *storage.BTreePageID {
	if p.left == 0 {
		return nil
	}
	return &storage.BTreePageID{Table: p.pid.Table, Page: p.left, Cat: storage.Leaf}
}

// RightSiblingID returns the right sibling leaf, nil at the right edge.
func (p *LeafPage) RightSiblingID() *storage.BTreePageID {
	if p.right == 0 {
		return nil
	}
	return &storage.BTreePageID{Table: p.pid.Table, Page: p.right, Cat: storage.Leaf}
}

func (p *LeafPage) SetLeftSiblingNo(no int)  { p.left = no }
func (p *LeafPage) SetRightSiblingNo(no int) { p.right = no }

func (p *LeafPage) NumSlots() int {
	return p.numSlots
}

func (p *LeafPage) NumTuples() int {
	n := 0
	for i := 0; i < p.numSlots; i++ {
		if p.slotUsed(i) {
			n++
		}
	}
	return n
}

func (p *LeafPage) NumEmptySlots() int {
	return p.numSlots - p.NumTuples()
}

func (p *LeafPage) slotUsed(i int) bool {
	return helpers.GetBit(p.header[i/8], i%8)
}

func (p *LeafPage) setSlotUsed(i int, used bool) {
	helpers.SetBit(&p.header[i/8], i%8, used)
}

func (p *LeafPage) key(i int) types.Field {
	f, _ := p.tuples[i].Field(p.keyField)
	return f
}

// FirstTuple returns the lowest-keyed live tuple, nil when empty.
func (p *LeafPage) FirstTuple() *tuple.Tuple {
	for i := 0; i < p.numSlots; i++ {
		if p.slotUsed(i) {
			return p.tuples[i]
		}
	}
	return nil
}

// LastTuple returns the highest-keyed live tuple, nil when empty.
func (p *LeafPage) LastTuple() *tuple.Tuple {
	for i := p.numSlots - 1; i >= 0; i-- {
		if p.slotUsed(i) {
			return p.tuples[i]
		}
	}
	return nil
}

// InsertTuple places t in key order, shifting neighbors toward the nearest
// free slot to open a gap.
func (p *LeafPage) InsertTuple(t *tuple.Tuple) error {
	if !p.desc.Equal(t.Desc()) {
		return errors.Wrapf(storage.ErrTypeMismatch,
			"tuple schema %v does not match page schema %v", t.Desc(), p.desc)
	}

	emptySlot := -1
	for i := 0; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			emptySlot = i
			break
		}
	}
	if emptySlot < 0 {
		return errors.Wrapf(storage.ErrPageFull, "page %v", p.pid)
	}

	key, err := t.Field(p.keyField)
	if err != nil {
		return err
	}

	// Last used slot whose key is <= the incoming key.
	lessOrEq := -1
	for i := 0; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		if p.key(i).Compare(types.LessThanOrEq, key) {
			lessOrEq = i
		} else {
			break
		}
	}

	var goodSlot int
	if emptySlot < lessOrEq {
		for i := emptySlot; i < lessOrEq; i++ {
			p.moveTuple(i+1, i)
		}
		goodSlot = lessOrEq
	} else {
		for i := emptySlot; i > lessOrEq+1; i-- {
			p.moveTuple(i-1, i)
		}
		goodSlot = lessOrEq + 1
	}

	p.setSlotUsed(goodSlot, true)
	t.SetRecordID(&tuple.RecordID{PID: p.pid, Slot: goodSlot})
	p.tuples[goodSlot] = t
	return nil
}

func (p *LeafPage) moveTuple(from, to int) {
	if !p.slotUsed(from) || p.slotUsed(to) {
		return
	}
	p.tuples[to] = p.tuples[from]
	p.tuples[to].SetRecordID(&tuple.RecordID{PID: p.pid, Slot: to})
	p.tuples[from] = nil
	p.setSlotUsed(to, true)
	p.setSlotUsed(from, false)
}

// DeleteTuple clears the slot named by t's record id.
func (p *LeafPage) DeleteTuple(t *tuple.Tuple) error {
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

func (p *LeafPage) SetBeforeImage() {
	data, err := p.MarshalBinary()
	if err != nil {
		return
	}
	p.before = data
}

func (p *LeafPage) BeforeImage() storage.Page {
	if p.before == nil {
		return NewEmptyLeafPage(p.pid, p.desc, p.keyField, p.pageSize)
	}
	img, err := NewLeafPage(p.pid, p.desc, p.keyField, p.pageSize, p.before)
	if err != nil {
		return nil
	}
	return img
}

// Iterator yields the live tuples in ascending key order.
func (p *LeafPage) Iterator() tuple.Iterator {
	return &leafSlotIterator{page: p}
}

// ReverseIterator yields the live tuples in descending key order.
func (p *LeafPage) ReverseIterator() tuple.Iterator {
	return &leafSlotIterator{page: p, reverse: true}
}

type leafSlotIterator struct {
	page    *LeafPage
	reverse bool
	next    int
	opened  bool
}

func (it *leafSlotIterator) Open() error {
	it.opened = true
	if it.reverse {
		it.next = it.page.numSlots - 1
	} else {
		it.next = 0
	}
	return nil
}

func (it *leafSlotIterator) HasNext() (bool, error) {
	if !it.opened {
		return false, errors.Wrap(storage.ErrNoSuchTuple, "iterator not open")
	}
	if it.reverse {
		for it.next >= 0 {
			if it.page.slotUsed(it.next) {
				return true, nil
			}
			it.next--
		}
	} else {
		for it.next < it.page.numSlots {
			if it.page.slotUsed(it.next) {
				return true, nil
			}
			it.next++
		}
	}
	return false, nil
}

func (it *leafSlotIterator) Next() (*tuple.Tuple, error) {
	has, err := it.HasNext()
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.Wrap(storage.ErrNoSuchTuple, "iterator exhausted")
	}
	t := it.page.tuples[it.next]
	if it.reverse {
		it.next--
	} else {
		it.next++
	}
	return t, nil
}

func (it *leafSlotIterator) Rewind() error {
	return it.Open()
}

func (it *leafSlotIterator) Close() {
	it.opened = false
}

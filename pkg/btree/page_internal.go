package btree

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"
	"go-reldb/util/helpers"

	"github.com/pkg/errors"
)

// internalPageHeader is the fixed prefix of an internal page: category byte,
// parent page number and the shared category of the children.
const internalPageHeader = 1 + indexSize + 1

// MaxInternalEntries returns how many routing entries fit on one internal
// page. Each entry costs one key, one child reference and a header bit; one
// extra child reference and bit pay for the leftmost child.
func MaxInternalEntries(pageSize, keySize int) int {
	return ((pageSize-internalPageHeader)*8 - (indexSize*8 + 1) - 7) / (keySize*8 + indexSize*8 + 1)
}

// InternalPage routes key lookups to its children. Slot 0 carries only the
// leftmost child; slots 1..n carry a key and the child to its right. Used
// slots are kept in key order with gaps allowed, so a held Entry stays valid
// across deletes of other entries.
type InternalPage struct {
	dirtyState

	pid      storage.BTreePageID
	desc     *tuple.Desc
	keyField int
	keyType  types.Type
	pageSize int
	numSlots int

	parent   int
	childCat storage.PageCategory

	header   []byte
	keys     []types.Field
	children []int

	before []byte
}

func NewInternalPage(pid storage.BTreePageID, desc *tuple.Desc, keyField, pageSize int, data []byte) (*InternalPage, error) {
	if len(data) != pageSize {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: have %d bytes, want %d", pid, len(data), pageSize)
	}
	if storage.PageCategory(data[0]) != storage.Internal {
		return nil, errors.Wrapf(storage.ErrBadPageID,
			"page %v: stored category is %s", pid, storage.PageCategory(data[0]))
	}

	p := NewEmptyInternalPage(pid, desc, keyField, pageSize)
	p.parent = int(bin.Uint32(data[1:5]))
	p.childCat = storage.PageCategory(data[5])

	headerSize := len(p.header)
	copy(p.header, data[internalPageHeader:internalPageHeader+headerSize])

	keySize := p.keyType.Len()
	keysOff := internalPageHeader + headerSize
	childrenOff := keysOff + (p.numSlots-1)*keySize

	for i := 1; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		f, err := types.ReadField(p.keyType, data[keysOff+(i-1)*keySize:])
		if err != nil {
			return nil, errors.Wrapf(err, "page %v slot %d", pid, i)
		}
		p.keys[i] = f
	}
	for i := 0; i < p.numSlots; i++ {
		p.children[i] = int(bin.Uint32(data[childrenOff+i*indexSize:]))
	}
	return p, nil
}

func NewEmptyInternalPage(pid storage.BTreePageID, desc *tuple.Desc, keyField, pageSize int) *InternalPage {
	keyType, _ := desc.TypeAt(keyField)
	numSlots := MaxInternalEntries(pageSize, keyType.Len()) + 1
	return &InternalPage{
		pid:      pid,
		desc:     desc,
		keyField: keyField,
		keyType:  keyType,
		pageSize: pageSize,
		numSlots: numSlots,
		childCat: storage.Leaf,
		header:   make([]byte, helpers.CeilDiv(numSlots, 8)),
		keys:     make([]types.Field, numSlots),
		children: make([]int, numSlots),
	}
}

func (p *InternalPage) ID() storage.PageID {
	return p.pid
}

func (p *InternalPage) MarshalBinary() ([]byte, error) {
	buf := make([]byte, p.pageSize)
	buf[0] = byte(storage.Internal)
	bin.PutUint32(buf[1:5], uint32(p.parent))
	buf[5] = byte(p.childCat)
	copy(buf[internalPageHeader:], p.header)

	keySize := p.keyType.Len()
	keysOff := internalPageHeader + len(p.header)
	childrenOff := keysOff + (p.numSlots-1)*keySize

	for i := 1; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		b, err := p.keys[i].MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "page %v slot %d", p.pid, i)
		}
		copy(buf[keysOff+(i-1)*keySize:], b)
	}
	for i := 0; i < p.numSlots; i++ {
		bin.PutUint32(buf[childrenOff+i*indexSize:], uint32(p.children[i]))
	}
	return buf, nil
}

func (p *InternalPage) ParentID() storage.BTreePageID {
	if p.parent == 0 {
		return storage.BTreePageID{Table: p.pid.Table, Page: 0, Cat: storage.RootPtr}
	}
	return storage.BTreePageID{Table: p.pid.Table, Page: p.parent, Cat: storage.Internal}
}

func (p *InternalPage) SetParentID(id storage.BTreePageID) {
	p.parent = id.Page
}

func (p *InternalPage) ChildCategory() storage.PageCategory {
	return p.childCat
}

// MaxEntries returns the routing-entry capacity of the page.
func (p *InternalPage) MaxEntries() int {
	return p.numSlots - 1
}

// NumEntries counts the live routing entries (slot 0 excluded).
func (p *InternalPage) NumEntries() int {
	n := 0
	for i := 1; i < p.numSlots; i++ {
		if p.slotUsed(i) {
			n++
		}
	}
	return n
}

func (p *InternalPage) NumEmptySlots() int {
	return p.MaxEntries() - p.NumEntries()
}

func (p *InternalPage) slotUsed(i int) bool {
	return helpers.GetBit(p.header[i/8], i%8)
}

func (p *InternalPage) setSlotUsed(i int, used bool) {
	helpers.SetBit(&p.header[i/8], i%8, used)
}

// prevUsedSlot returns the highest used slot strictly below i, or -1.
func (p *InternalPage) prevUsedSlot(i int) int {
	for j := i - 1; j >= 0; j-- {
		if p.slotUsed(j) {
			return j
		}
	}
	return -1
}

func (p *InternalPage) childID(no int) storage.BTreePageID {
	return storage.BTreePageID{Table: p.pid.Table, Page: no, Cat: p.childCat}
}

// InsertEntry places e in key order. One of the entry's children must
// already be a child of this page (it anchors the position); the other child
// is placed on the side of it the entry names.
func (p *InternalPage) InsertEntry(e *Entry) error {
	if e.Key.Type() != p.keyType {
		return errors.Wrapf(storage.ErrTypeMismatch,
			"key is %s, page indexes %s", e.Key.Type(), p.keyType)
	}
	if e.LeftChild.Table != p.pid.Table || e.RightChild.Table != p.pid.Table {
		return errors.Wrapf(storage.ErrBadPageID, "entry children are not pages of table %d", p.pid.Table)
	}
	if e.LeftChild.Cat != e.RightChild.Cat {
		return errors.Wrapf(storage.ErrBadPageID,
			"entry children differ in category: %s vs %s", e.LeftChild.Cat, e.RightChild.Cat)
	}

	if p.NumEntries() == 0 && !p.slotUsed(0) {
		p.childCat = e.LeftChild.Cat
		p.children[0] = e.LeftChild.Page
		p.children[1] = e.RightChild.Page
		p.keys[1] = e.Key
		p.setSlotUsed(0, true)
		p.setSlotUsed(1, true)
		e.pid = p.pid
		e.slot = 1
		return nil
	}

	if e.LeftChild.Cat != p.childCat {
		return errors.Wrapf(storage.ErrBadPageID,
			"entry children are %s pages, page holds %s children", e.LeftChild.Cat, p.childCat)
	}

	emptySlot := -1
	for i := 1; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			emptySlot = i
			break
		}
	}
	if emptySlot < 0 {
		return errors.Wrapf(storage.ErrPageFull, "page %v", p.pid)
	}

	// Find the slot whose child pointer the new entry hangs off. If the
	// matched pointer is the entry's right child, it becomes the left child
	// and the new entry's right child takes its place one slot over.
	anchor := -1
	for i := 0; i < p.numSlots; i++ {
		if !p.slotUsed(i) {
			continue
		}
		if p.children[i] == e.LeftChild.Page || p.children[i] == e.RightChild.Page {
			anchor = i
			if p.children[i] == e.RightChild.Page {
				p.children[i] = e.LeftChild.Page
			}
		} else if anchor != -1 {
			break
		}
	}
	if anchor == -1 {
		return errors.Wrapf(storage.ErrBadPageID,
			"entry children %d/%d are not children of page %v",
			e.LeftChild.Page, e.RightChild.Page, p.pid)
	}

	var goodSlot int
	if emptySlot < anchor {
		for i := emptySlot; i < anchor; i++ {
			p.moveEntry(i+1, i)
		}
		goodSlot = anchor
	} else {
		for i := emptySlot; i > anchor+1; i-- {
			p.moveEntry(i-1, i)
		}
		goodSlot = anchor + 1
	}

	p.setSlotUsed(goodSlot, true)
	p.keys[goodSlot] = e.Key
	p.children[goodSlot] = e.RightChild.Page
	e.pid = p.pid
	e.slot = goodSlot
	return nil
}

func (p *InternalPage) moveEntry(from, to int) {
	if !p.slotUsed(from) || p.slotUsed(to) {
		return
	}
	p.keys[to] = p.keys[from]
	p.children[to] = p.children[from]
	p.keys[from] = nil
	p.setSlotUsed(to, true)
	p.setSlotUsed(from, false)
}

func (p *InternalPage) checkEntrySlot(e *Entry) error {
	if e.pid != p.pid || e.slot < 1 || e.slot >= p.numSlots || !p.slotUsed(e.slot) {
		return errors.Wrapf(storage.ErrSlotEmpty, "entry does not address a live slot of page %v", p.pid)
	}
	return nil
}

// DeleteKeyAndRightChild removes e's key and the child to its right.
func (p *InternalPage) DeleteKeyAndRightChild(e *Entry) error {
	if err := p.checkEntrySlot(e); err != nil {
		return err
	}
	p.setSlotUsed(e.slot, false)
	p.keys[e.slot] = nil
	return nil
}

// DeleteKeyAndLeftChild removes e's key and the child to its left; the right
// child slides into the left child's position.
func (p *InternalPage) DeleteKeyAndLeftChild(e *Entry) error {
	if err := p.checkEntrySlot(e); err != nil {
		return err
	}
	prev := p.prevUsedSlot(e.slot)
	if prev < 0 {
		return errors.Wrapf(storage.ErrBadPageID, "entry at slot %d has no left child slot", e.slot)
	}
	p.children[prev] = p.children[e.slot]
	p.setSlotUsed(e.slot, false)
	p.keys[e.slot] = nil
	return nil
}

// UpdateEntry rewrites the key and right child of the slot e addresses.
func (p *InternalPage) UpdateEntry(e *Entry) error {
	if err := p.checkEntrySlot(e); err != nil {
		return err
	}
	p.keys[e.slot] = e.Key
	p.children[e.slot] = e.RightChild.Page
	return nil
}

// Entries iterates the live routing entries in ascending key order.
func (p *InternalPage) Entries() *EntryIterator {
	return &EntryIterator{page: p, slot: 1}
}

// ReverseEntries iterates the live routing entries in descending key order.
func (p *InternalPage) ReverseEntries() *EntryIterator {
	return &EntryIterator{page: p, slot: p.numSlots - 1, reverse: true}
}

// FirstEntry returns the lowest-keyed entry, nil when the page is empty.
func (p *InternalPage) FirstEntry() *Entry {
	return p.Entries().Next()
}

// LastEntry returns the highest-keyed entry, nil when the page is empty.
func (p *InternalPage) LastEntry() *Entry {
	return p.ReverseEntries().Next()
}

// EntryIterator walks the used slots of an internal page. Next returns nil
// when the entries are exhausted.
type EntryIterator struct {
	page    *InternalPage
	slot    int
	reverse bool
}

func (it *EntryIterator) Next() *Entry {
	p := it.page
	step := 1
	if it.reverse {
		step = -1
	}
	for it.slot >= 1 && it.slot < p.numSlots {
		i := it.slot
		it.slot += step
		if !p.slotUsed(i) {
			continue
		}
		prev := p.prevUsedSlot(i)
		if prev < 0 {
			continue
		}
		return &Entry{
			Key:        p.keys[i],
			LeftChild:  p.childID(p.children[prev]),
			RightChild: p.childID(p.children[i]),
			pid:        p.pid,
			slot:       i,
		}
	}
	return nil
}

func (p *InternalPage) SetBeforeImage() {
	data, err := p.MarshalBinary()
	if err != nil {
		return
	}
	p.before = data
}

func (p *InternalPage) BeforeImage() storage.Page {
	if p.before == nil {
		return NewEmptyInternalPage(p.pid, p.desc, p.keyField, p.pageSize)
	}
	img, err := NewInternalPage(p.pid, p.desc, p.keyField, p.pageSize, p.before)
	if err != nil {
		return nil
	}
	return img
}

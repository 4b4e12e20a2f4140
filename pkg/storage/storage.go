// Package storage holds the identifiers and capability contracts shared by
// every layer of the engine: page ids, the page contract, permissions and
// transaction identity. It deliberately has no dependency on the tuple or
// file layers so that any package can name a page or a transaction.
package storage

import (
	"encoding"

	"github.com/google/uuid"
)

// Permissions is the lock strength a caller requests on a page.
type Permissions uint8

const (
	ReadOnly Permissions = iota
	ReadWrite
)

func (p Permissions) String() string {
	if p == ReadWrite {
		return "READ_WRITE"
	}
	return "READ_ONLY"
}

// TransactionID names one logical transaction. It is a plain comparable
// value; two ids compare equal iff they name the same transaction.
type TransactionID struct {
	id uuid.UUID
}

func NewTransactionID() TransactionID {
	return TransactionID{id: uuid.New()}
}

func (t TransactionID) String() string {
	return t.id.String()
}

// Zero reports whether the id is the unset value.
func (t TransactionID) Zero() bool {
	return t.id == uuid.Nil
}

// Page is the unit of I/O, caching and locking. Implementations own a
// mutable in-memory image and can serialize themselves to a fixed-size
// block via MarshalBinary.
type Page interface {
	encoding.BinaryMarshaler

	ID() PageID

	// MarkDirty records (or clears) the transaction that mutated the page.
	MarkDirty(dirty bool, tid TransactionID)

	// DirtiedBy returns the dirtying transaction, if any.
	DirtiedBy() (TransactionID, bool)

	// BeforeImage returns the page as of the last SetBeforeImage call.
	BeforeImage() Page

	// SetBeforeImage snapshots the current image.
	SetBeforeImage()
}

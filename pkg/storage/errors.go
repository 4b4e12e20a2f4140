package storage

import "errors"

var (
	// ErrTransactionAborted is returned when deadlock detection (or a
	// forced abort) kills a transaction. The only expected recovery is to
	// complete the transaction with commit=false.
	ErrTransactionAborted = errors.New("transaction aborted")

	// ErrPoolExhausted is returned when the buffer pool needs a slot but
	// every cached page is dirty. Dirty pages are never stolen.
	ErrPoolExhausted = errors.New("buffer pool exhausted: no clean page to evict")

	// ErrPageFull is returned when a page has no free slot for an insert.
	ErrPageFull = errors.New("page is full")

	// ErrNoSuchTuple is returned when a delete names a tuple that is not
	// on the page its record id points to.
	ErrNoSuchTuple = errors.New("tuple is not on this page")

	// ErrSlotEmpty is returned when a slot addressed by a record id is not
	// marked occupied.
	ErrSlotEmpty = errors.New("slot is empty")

	// ErrBadPageID is returned for a page id whose category or number does
	// not match the file being addressed.
	ErrBadPageID = errors.New("invalid page id")

	// ErrTypeMismatch is returned when a field or tuple does not conform
	// to the schema it is used against.
	ErrTypeMismatch = errors.New("type mismatch")
)

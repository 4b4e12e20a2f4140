package tuple

import (
	"fmt"
	"strings"

	"go-reldb/pkg/storage"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// RecordID is the physical address of a tuple: the page holding it and the
// slot index within that page. Equal by component equality.
type RecordID struct {
	PID  storage.PageID
	Slot int
}

func (r RecordID) String() string {
	return fmt.Sprintf("%v#%d", r.PID, r.Slot)
}

// Tuple is a fixed-length ordered sequence of fields conforming to a Desc,
// plus the record id of its physical residence once stored. Field slots are
// mutable; the field values themselves are immutable.
type Tuple struct {
	desc   *Desc
	fields []types.Field
	rid    *RecordID
}

func NewTuple(desc *Desc) *Tuple {
	return &Tuple{
		desc:   desc,
		fields: make([]types.Field, desc.NumFields()),
	}
}

func (t *Tuple) Desc() *Desc {
	return t.desc
}

func (t *Tuple) SetField(i int, f types.Field) error {
	ft, err := t.desc.TypeAt(i)
	if err != nil {
		return err
	}
	if f.Type() != ft {
		return errors.Wrapf(storage.ErrTypeMismatch,
			"field %d is %s, got %s", i, ft, f.Type())
	}
	t.fields[i] = f
	return nil
}

func (t *Tuple) Field(i int) (types.Field, error) {
	if i < 0 || i >= len(t.fields) {
		return nil, errors.Wrapf(storage.ErrTypeMismatch, "field index %d out of range", i)
	}
	return t.fields[i], nil
}

func (t *Tuple) RecordID() *RecordID {
	return t.rid
}

func (t *Tuple) SetRecordID(rid *RecordID) {
	t.rid = rid
}

// MarshalBinary serializes the tuple as the concatenation of its fields.
func (t *Tuple) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, t.desc.Size())
	for i, f := range t.fields {
		if f == nil {
			return nil, errors.Wrapf(storage.ErrTypeMismatch, "field %d is unset", i)
		}
		b, err := f.MarshalBinary()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal field %d", i)
		}
		buf = append(buf, b...)
	}
	return buf, nil
}

// ReadTuple decodes one tuple of the given schema from the front of data.
func ReadTuple(desc *Desc, data []byte) (*Tuple, error) {
	if len(data) < desc.Size() {
		return nil, errors.Wrapf(storage.ErrTypeMismatch,
			"short tuple data: have %d bytes, want %d", len(data), desc.Size())
	}

	t := NewTuple(desc)
	off := 0
	for i := 0; i < desc.NumFields(); i++ {
		ft, _ := desc.TypeAt(i)
		f, err := types.ReadField(ft, data[off:])
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read field %d", i)
		}
		t.fields[i] = f
		off += ft.Len()
	}
	return t, nil
}

func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		if f == nil {
			parts[i] = "<nil>"
		} else {
			parts[i] = f.String()
		}
	}
	return strings.Join(parts, "\t")
}

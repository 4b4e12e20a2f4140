// Package tuple implements the schema and record containers of the engine:
// tuple descriptors, tuples and record ids, plus the pull iterator contract
// file scans and operators share.
package tuple

import (
	"strings"

	"go-reldb/pkg/storage"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// Desc describes the schema of a tuple: an ordered list of field types with
// optional names. Two descriptors are equal iff their types match pairwise;
// names do not participate in equality.
type Desc struct {
	fieldTypes []types.Type
	fieldNames []string
}

func NewDesc(fieldTypes []types.Type, fieldNames []string) (*Desc, error) {
	if len(fieldTypes) == 0 {
		return nil, errors.Wrap(storage.ErrTypeMismatch, "descriptor needs at least one field")
	}
	if fieldNames != nil && len(fieldNames) != len(fieldTypes) {
		return nil, errors.Wrapf(storage.ErrTypeMismatch,
			"field name count %d does not match type count %d", len(fieldNames), len(fieldTypes))
	}

	if fieldNames == nil {
		fieldNames = make([]string, len(fieldTypes))
	}
	return &Desc{
		fieldTypes: append([]types.Type(nil), fieldTypes...),
		fieldNames: append([]string(nil), fieldNames...),
	}, nil
}

// MustDesc is NewDesc that panics on malformed input. Intended for tests and
// static schemas.
func MustDesc(fieldTypes []types.Type, fieldNames []string) *Desc {
	d, err := NewDesc(fieldTypes, fieldNames)
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Desc) NumFields() int {
	return len(d.fieldTypes)
}

func (d *Desc) TypeAt(i int) (types.Type, error) {
	if i < 0 || i >= len(d.fieldTypes) {
		return 0, errors.Wrapf(storage.ErrTypeMismatch, "field index %d out of range", i)
	}
	return d.fieldTypes[i], nil
}

func (d *Desc) NameAt(i int) (string, error) {
	if i < 0 || i >= len(d.fieldNames) {
		return "", errors.Wrapf(storage.ErrTypeMismatch, "field index %d out of range", i)
	}
	return d.fieldNames[i], nil
}

// FieldIndex returns the index of the named field.
func (d *Desc) FieldIndex(name string) (int, error) {
	for i, n := range d.fieldNames {
		if n != "" && n == name {
			return i, nil
		}
	}
	return 0, errors.Wrapf(storage.ErrTypeMismatch, "no field named %q", name)
}

// Size returns the number of bytes a tuple of this schema occupies on disk.
func (d *Desc) Size() int {
	size := 0
	for _, t := range d.fieldTypes {
		size += t.Len()
	}
	return size
}

// Merge concatenates two descriptors into a new one.
func Merge(a, b *Desc) *Desc {
	ft := make([]types.Type, 0, len(a.fieldTypes)+len(b.fieldTypes))
	fn := make([]string, 0, len(a.fieldNames)+len(b.fieldNames))
	ft = append(append(ft, a.fieldTypes...), b.fieldTypes...)
	fn = append(append(fn, a.fieldNames...), b.fieldNames...)
	return &Desc{fieldTypes: ft, fieldNames: fn}
}

func (d *Desc) Equal(other *Desc) bool {
	if other == nil || len(d.fieldTypes) != len(other.fieldTypes) {
		return false
	}
	for i := range d.fieldTypes {
		if d.fieldTypes[i] != other.fieldTypes[i] {
			return false
		}
	}
	return true
}

func (d *Desc) String() string {
	parts := make([]string, len(d.fieldTypes))
	for i, t := range d.fieldTypes {
		parts[i] = t.String()
		if d.fieldNames[i] != "" {
			parts[i] += "(" + d.fieldNames[i] + ")"
		}
	}
	return strings.Join(parts, ",")
}

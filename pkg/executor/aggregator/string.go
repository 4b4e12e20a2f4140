package aggregator

import (
	"go-reldb/pkg/storage"
	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"

	"github.com/pkg/errors"
)

// StringAggregator counts string fields, optionally grouped by another field.
// Count is the only operation defined over strings.
type StringAggregator struct {
	gbField int
	gbType  types.Type
	aField  int

	counts map[types.Field]int32
	order  []types.Field
}

func NewStringAggregator(gbField int, gbType types.Type, aField int, op Op) (*StringAggregator, error) {
	if op != Count {
		return nil, errors.Wrapf(storage.ErrTypeMismatch, "%s is not defined over strings", op)
	}
	return &StringAggregator{
		gbField: gbField,
		gbType:  gbType,
		aField:  aField,
		counts:  map[types.Field]int32{},
	}, nil
}

func (a *StringAggregator) Merge(t *tuple.Tuple) error {
	var key types.Field
	if a.gbField != NoGrouping {
		f, err := t.Field(a.gbField)
		if err != nil {
			return err
		}
		if f.Type() != a.gbType {
			return errors.Wrapf(storage.ErrTypeMismatch,
				"group field is %s, expected %s", f.Type(), a.gbType)
		}
		key = f
	}

	f, err := t.Field(a.aField)
	if err != nil {
		return err
	}
	if _, ok := f.(types.StringField); !ok {
		return errors.Wrapf(storage.ErrTypeMismatch, "aggregate field is %s, expected STRING", f.Type())
	}

	if _, ok := a.counts[key]; !ok {
		a.order = append(a.order, key)
	}
	a.counts[key]++
	return nil
}

func (a *StringAggregator) Iterator() tuple.Iterator {
	var desc *tuple.Desc
	if a.gbField == NoGrouping {
		desc = tuple.MustDesc([]types.Type{types.IntType}, []string{"aggVal"})
	} else {
		desc = tuple.MustDesc([]types.Type{a.gbType, types.IntType}, []string{"groupVal", "aggVal"})
	}

	results := make([]*tuple.Tuple, 0, len(a.order))
	for _, key := range a.order {
		t := tuple.NewTuple(desc)
		if a.gbField == NoGrouping {
			t.SetField(0, types.NewIntField(a.counts[key]))
		} else {
			t.SetField(0, key)
			t.SetField(1, types.NewIntField(a.counts[key]))
		}
		results = append(results, t)
	}
	return tuple.NewSliceIterator(results)
}

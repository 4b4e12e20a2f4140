package executor

import (
	"fmt"

	"go-reldb/pkg/tuple"
	"go-reldb/pkg/types"
)

// Predicate compares one field of a tuple against a constant.
type Predicate struct {
	field   int
	op      types.Op
	operand types.Field
}

func NewPredicate(field int, op types.Op, operand types.Field) Predicate {
	return Predicate{field: field, op: op, operand: operand}
}

// Matches reports whether t satisfies the predicate. A tuple whose field
// cannot be read does not match and the read error is returned.
func (p Predicate) Matches(t *tuple.Tuple) (bool, error) {
	f, err := t.Field(p.field)
	if err != nil {
		return false, err
	}
	return f.Compare(p.op, p.operand), nil
}

func (p Predicate) String() string {
	return fmt.Sprintf("f%d %s %s", p.field, p.op, p.operand)
}

// JoinPredicate compares a field of one tuple against a field of another.
type JoinPredicate struct {
	field1 int
	field2 int
	op     types.Op
}

func NewJoinPredicate(field1 int, op types.Op, field2 int) JoinPredicate {
	return JoinPredicate{field1: field1, field2: field2, op: op}
}

// Matches reports whether (t1.field1 op t2.field2) holds.
func (p JoinPredicate) Matches(t1, t2 *tuple.Tuple) (bool, error) {
	f1, err := t1.Field(p.field1)
	if err != nil {
		return false, err
	}
	f2, err := t2.Field(p.field2)
	if err != nil {
		return false, err
	}
	return f1.Compare(p.op, f2), nil
}

func (p JoinPredicate) String() string {
	return fmt.Sprintf("left.f%d %s right.f%d", p.field1, p.op, p.field2)
}

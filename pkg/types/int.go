package types

import "strconv"

// IntField is a 32-bit signed integer value.
type IntField struct {
	Value int32
}

func NewIntField(v int32) IntField {
	return IntField{Value: v}
}

func (f IntField) Type() Type {
	return IntType
}

func (f IntField) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 4)
	bin.PutUint32(buf, uint32(f.Value))
	return buf, nil
}

func (f IntField) Compare(op Op, other Field) bool {
	o, ok := other.(IntField)
	if !ok {
		return false
	}

	switch op {
	case Equals:
		return f.Value == o.Value
	case NotEquals:
		return f.Value != o.Value
	case GreaterThan:
		return f.Value > o.Value
	case GreaterThanOrEq:
		return f.Value >= o.Value
	case LessThan:
		return f.Value < o.Value
	case LessThanOrEq:
		return f.Value <= o.Value
	}
	return false
}

func (f IntField) String() string {
	return strconv.Itoa(int(f.Value))
}

package types

// StringField is a fixed-capacity string value. Values longer than StringLen
// are truncated at construction.
type StringField struct {
	Value string
}

func NewStringField(v string) StringField {
	if len(v) > StringLen {
		v = v[:StringLen]
	}
	return StringField{Value: v}
}

func (f StringField) Type() Type {
	return StringType
}

func (f StringField) MarshalBinary() ([]byte, error) {
	buf := make([]byte, StringLen+4)
	bin.PutUint32(buf, uint32(len(f.Value)))
	copy(buf[4:], f.Value)
	return buf, nil
}

func (f StringField) Compare(op Op, other Field) bool {
	o, ok := other.(StringField)
	if !ok {
		return false
	}

	cmp := 0
	if f.Value < o.Value {
		cmp = -1
	} else if f.Value > o.Value {
		cmp = 1
	}

	switch op {
	case Equals:
		return cmp == 0
	case NotEquals:
		return cmp != 0
	case GreaterThan:
		return cmp > 0
	case GreaterThanOrEq:
		return cmp >= 0
	case LessThan:
		return cmp < 0
	case LessThanOrEq:
		return cmp <= 0
	}
	return false
}

func (f StringField) String() string {
	return f.Value
}

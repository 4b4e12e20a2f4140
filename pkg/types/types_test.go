package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntFieldCompare(t *testing.T) {
	a := NewIntField(3)
	b := NewIntField(7)

	require.True(t, a.Compare(LessThan, b))
	require.True(t, a.Compare(LessThanOrEq, b))
	require.True(t, a.Compare(NotEquals, b))
	require.False(t, a.Compare(Equals, b))
	require.False(t, a.Compare(GreaterThan, b))
	require.True(t, b.Compare(GreaterThanOrEq, a))
	require.True(t, a.Compare(Equals, NewIntField(3)))
}

func TestStringFieldCompare(t *testing.T) {
	a := NewStringField("apple")
	b := NewStringField("banana")

	require.True(t, a.Compare(LessThan, b))
	require.True(t, b.Compare(GreaterThan, a))
	require.True(t, a.Compare(Equals, NewStringField("apple")))
	require.True(t, a.Compare(NotEquals, b))
}

func TestCompareMismatchedTypes(t *testing.T) {
	i := NewIntField(1)
	s := NewStringField("1")

	require.False(t, i.Compare(Equals, s))
	require.False(t, s.Compare(Equals, i))
	require.False(t, i.Compare(NotEquals, s))
}

func TestIntFieldRoundTrip(t *testing.T) {
	f := NewIntField(-42)
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, IntType.Len())

	got, err := ReadField(IntType, data)
	require.NoError(t, err)
	require.True(t, f.Compare(Equals, got))
}

func TestStringFieldRoundTrip(t *testing.T) {
	f := NewStringField("hello world")
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, StringType.Len())

	got, err := ReadField(StringType, data)
	require.NoError(t, err)
	require.True(t, f.Compare(Equals, got))
	require.Equal(t, "hello world", got.(StringField).Value)
}

func TestStringFieldTruncates(t *testing.T) {
	long := make([]byte, StringLen+10)
	for i := range long {
		long[i] = 'x'
	}
	f := NewStringField(string(long))
	data, err := f.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, StringType.Len())

	got, err := ReadField(StringType, data)
	require.NoError(t, err)
	require.Len(t, got.(StringField).Value, StringLen)
}

func TestReadFieldShortData(t *testing.T) {
	_, err := ReadField(IntType, []byte{1, 2})
	require.Error(t, err)
}

func TestTypeLen(t *testing.T) {
	require.Equal(t, 4, IntType.Len())
	require.Equal(t, StringLen+4, StringType.Len())
}

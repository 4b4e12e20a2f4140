package helpers

import "golang.org/x/exp/constraints"

func Min[T constraints.Ordered](numbers ...T) T {
	var min T = numbers[0]
	for _, n := range numbers {
		if n < min {
			min = n
		}
	}
	return min
}

func Max[T constraints.Ordered](numbers ...T) T {
	var max T = numbers[0]
	for _, n := range numbers {
		if n > max {
			max = n
		}
	}
	return max
}

// CeilDiv returns ceil(a / b) for positive integers.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}

func GetBit(b uint8, n int) bool {
	return b&(1<<uint(n)) != 0
}

func SetBit(b *uint8, n int, value bool) {
	if value {
		*b |= 1 << uint(n)
	} else {
		*b &^= 1 << uint(n)
	}
}

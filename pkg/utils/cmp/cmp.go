package cmp

type BiPredicator[V any, U any] func(a V, b U) bool

func SliceEq[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for nth, va := range a {
		if va != b[nth] {
			return false
		}
	}
	return true
}

func SliceEqWith[T any, U any](a []T, b []U, pred BiPredicator[T, U]) bool {
	if len(a) != len(b) {
		return false
	}
	for nth := range a {
		if !pred(a[nth], b[nth]) {
			return false
		}
	}
	return true
}

// SliceContentEq checks two slices hold the same elements, ignoring order.
func SliceContentEq[T comparable](a []T, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	counts := map[T]int{}
	for _, va := range a {
		counts[va] += 1
	}
	for _, vb := range b {
		counts[vb] -= 1
		if counts[vb] < 0 {
			return false
		}
	}
	return true
}

func MapEq[K comparable, V comparable](a map[K]V, b map[K]V) bool {
	if len(a) != len(b) {
		return false
	}
	for ka, va := range a {
		vb, ok := b[ka]
		if !ok || vb != va {
			return false
		}
	}
	return true
}

func MapEqWith[K comparable, V any, U any](a map[K]V, b map[K]U, pred BiPredicator[V, U]) bool {
	if len(a) != len(b) {
		return false
	}
	for ka, va := range a {
		vb, ok := b[ka]
		if !ok || !pred(va, vb) {
			return false
		}
	}
	return true
}

// *a == *b, treating nils as equal only to each other.
func PEqEq[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func PEqualWith[T any](a, b *T, pred func(T, T) bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return pred(*a, *b)
}

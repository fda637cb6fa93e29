package slices

// Map applies f to each element and collects the results.
func Map[T any, R any](sli []T, f func(T) R) []R {
	ret := make([]R, len(sli))
	for i, v := range sli {
		ret[i] = f(v)
	}
	return ret
}

// ToMap indexes elements by the key keyOf extracts.
// The last element wins when keys collide.
func ToMap[T any, K comparable](sli []T, keyOf func(T) K) map[K]T {
	ret := make(map[K]T, len(sli))
	for _, v := range sli {
		ret[keyOf(v)] = v
	}
	return ret
}

// First returns the first element satisfying pred, and whether it was found.
func First[T any](sli []T, pred func(T) bool) (T, bool) {
	for _, v := range sli {
		if pred(v) {
			return v, true
		}
	}
	return *new(T), false
}

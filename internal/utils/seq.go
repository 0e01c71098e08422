package utils

// Uniq filters duplicates while preserving order. A plain set covers most
// uses, but keeping order makes scan reports stable.
func Uniq[T comparable](s []T) []T {
	seen := make(map[T]struct{}, len(s))
	out := make([]T, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Partition splits s into the items for which f is true and the rest,
// preserving order in both halves.
func Partition[T any](s []T, f func(T) bool) (yes, no []T) {
	for _, v := range s {
		if f(v) {
			yes = append(yes, v)
		} else {
			no = append(no, v)
		}
	}
	return yes, no
}

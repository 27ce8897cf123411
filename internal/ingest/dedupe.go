package ingest

// KeepPolicy decides which record survives when several share a business key.
type KeepPolicy int

const (
	// KeepFirst keeps the first-seen record and drops later duplicates whole.
	KeepFirst KeepPolicy = iota
	// KeepLast replaces earlier records with the last-seen duplicate.
	KeepLast
)

// Dedupe collapses records sharing a business key. Kept records preserve the
// relative order in which their key was first seen, so merged feeds stay in
// feed order regardless of policy.
func Dedupe[T any, K comparable](items []T, key func(T) K, policy KeepPolicy) []T {
	out := make([]T, 0, len(items))
	seen := make(map[K]int, len(items))

	for _, item := range items {
		k := key(item)
		if idx, ok := seen[k]; ok {
			if policy == KeepLast {
				out[idx] = item
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, item)
	}

	return out
}

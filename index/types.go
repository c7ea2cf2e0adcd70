package index

type PAGE_TYPE = int

const (
	INVALID_PAGE PAGE_TYPE = iota
	INTERNAL_PAGE
	LEAF_PAGE
)

// Comparator imposes the key order: negative when a < b, zero when equal,
// positive when a > b.
type Comparator[K any] func(a, b K) int

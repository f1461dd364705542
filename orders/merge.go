package orders

import (
	mapset "github.com/deckarep/golang-set/v2"
)

type MergeResult struct {
	Orders       []Order
	FromFast     int
	FromThorough int
}

// Merge combines the fast-pass order list (extracted from raw dictation) with
// the thorough-pass list (extracted from the finalized note). The fast list is
// already visible to the provider, so it is never silently replaced: first seen
// wins on a dedup key conflict. The result never contains two orders with the
// same key.
func Merge(fast, thorough []Order) MergeResult {
	seen := mapset.NewThreadUnsafeSet[string]()
	result := MergeResult{
		Orders: make([]Order, 0, len(fast)+len(thorough)),
	}

	for _, order := range fast {
		key := order.DedupKey()
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		result.Orders = append(result.Orders, order)
		result.FromFast++
	}

	for _, order := range thorough {
		key := order.DedupKey()
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		result.Orders = append(result.Orders, order)
		result.FromThorough++
	}

	return result
}

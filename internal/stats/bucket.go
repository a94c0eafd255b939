// Package stats holds the grouped-count reducer used when the storage
// backend cannot group records itself.
package stats

// Bucket is one distinct key and the number of items that carried it.
type Bucket[K comparable] struct {
	Key   K
	Count int64
}

// CountBy groups items by key and counts each group. Buckets are returned in
// the order their key was first seen; keys that never occur are absent.
func CountBy[T any, K comparable](items []T, key func(T) K) []Bucket[K] {
	index := make(map[K]int)
	var buckets []Bucket[K]
	for _, item := range items {
		k := key(item)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, Bucket[K]{Key: k})
		}
		buckets[i].Count++
	}
	return buckets
}

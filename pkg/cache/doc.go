// Package cache provides a small thread-safe LRU cache.
//
// The delivery worker uses it to memoize webhook subscription lookups inside
// a sweep so a burst of deliveries to the same endpoint does not hammer the
// subscription store. Capacity is fixed at construction; the least recently
// used entry is evicted when the cache is full.
package cache

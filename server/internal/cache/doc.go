// Package cache decorates a store.Customers with an LRU read cache.
//
// Reads that feed listings and statistics are cached; any successful write
// empties the cache completely. Failed writes leave it untouched.
package cache

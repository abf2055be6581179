// Package cache provides a byte-budgeted LRU for immutable blobs.
//
// The cache charges each entry by the length of its value and evicts from
// the cold end until the total fits the capacity. Values larger than the
// whole capacity are never admitted.
package cache

// Package cmap provides a sharded concurrent map.
//
// Transfer sessions live entirely in memory and are touched by every
// protocol round trip, so the map is sharded with a per-shard RWMutex
// to keep contention low under concurrent readers. Keys are spread
// across shards with hash/maphash, seeded per map.
package cmap

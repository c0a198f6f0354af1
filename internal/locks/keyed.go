// Package locks provides sharded per-key mutexes for serializing writes
// to a single (player, key) pair without global locking.
package locks

import (
	"hash/fnv"
	"sync"
)

const shardCount = 64

// KeyedMutex serializes access per key by hashing keys onto a fixed set
// of mutex shards. Two different keys may share a shard; that only costs
// contention, never correctness.
type KeyedMutex struct {
	shards [shardCount]sync.Mutex
}

// NewKeyedMutex creates a sharded keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the shard for key and returns the unlock function.
//
//	defer km.Lock(key)()
func (m *KeyedMutex) Lock(key string) func() {
	shard := &m.shards[shardIndex(key)]
	shard.Lock()
	return shard.Unlock
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

package chainstore

import (
	"sync"

	"github.com/bchsuite/bchd/chaincfg/chainhash"
)

// numHashBuckets is the bucket count for the in-memory hash index,
// partitioned by the first two bytes of the hash so bucket granularity
// bounds lock contention.
const numHashBuckets = 65536

// location names where one block lives: which file, and at what height.
type location struct {
	fileID uint32
	height int32
}

// hashIndex is a 65,536-bucket, mutex-per-bucket map from block hash to
// its (fileId, height) location.
type hashIndex struct {
	buckets [numHashBuckets]struct {
		mu      sync.RWMutex
		entries map[chainhash.Hash]location
	}
}

func newHashIndex() *hashIndex {
	idx := &hashIndex{}
	for i := range idx.buckets {
		idx.buckets[i].entries = make(map[chainhash.Hash]location)
	}
	return idx
}

func bucketFor(hash chainhash.Hash) int {
	return int(hash[0])<<8 | int(hash[1])
}

func (idx *hashIndex) put(hash chainhash.Hash, loc location) {
	b := &idx.buckets[bucketFor(hash)]
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[hash] = loc
}

func (idx *hashIndex) get(hash chainhash.Hash) (location, bool) {
	b := &idx.buckets[bucketFor(hash)]
	b.mu.RLock()
	defer b.mu.RUnlock()
	loc, ok := b.entries[hash]
	return loc, ok
}

func (idx *hashIndex) delete(hash chainhash.Hash) {
	b := &idx.buckets[bucketFor(hash)]
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, hash)
}
